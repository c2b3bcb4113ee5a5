package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadProfile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultProfile("home")
	cfg.Router.Password = "hunter2"
	require.NoError(t, Save(filepath.Join(dir, FileName), cfg))

	info, err := os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadProfile(dir)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	raw := `
profileName = "office"

[router]
address = "10.0.0.1"
password = "pw"

[poll]
interval = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "office", cfg.ProfileName)
	require.Equal(t, "10.0.0.1", cfg.Router.Address)
	require.Equal(t, "root", cfg.Router.Username)
	require.Equal(t, 30*time.Second, cfg.Poll.Interval.Duration)
	require.Equal(t, 5*time.Minute, cfg.Poll.MaxBackoff.Duration)
	require.Equal(t, "state.db", cfg.Storage.DBPath)
	require.Equal(t, 30*24*time.Hour, cfg.Storage.Retention.Duration)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing profile":  `[router]` + "\n" + `address = "x"`,
		"bad duration":     `profileName = "p"` + "\n[poll]\ninterval = \"soon\"",
		"zero interval":    `profileName = "p"` + "\n[poll]\ninterval = \"0s\"",
		"small multiplier": `profileName = "p"` + "\n[poll]\nmultiplier = 0.5",
		"past retention":   `profileName = "p"` + "\n[storage]\nretention = \"-1h\"",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadProfileMissing(t *testing.T) {
	_, err := LoadProfile(t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRouterPassword(t *testing.T) {
	cfg := DefaultProfile("p")
	cfg.Router.PasswordEnv = "GLWATCH_TEST_PASSWORD"

	t.Setenv("GLWATCH_TEST_PASSWORD", "")
	_, err := cfg.RouterPassword()
	require.Error(t, err)

	t.Setenv("GLWATCH_TEST_PASSWORD", "from-env")
	pw, err := cfg.RouterPassword()
	require.NoError(t, err)
	require.Equal(t, "from-env", pw)

	cfg.Router.Password = "inline"
	pw, err = cfg.RouterPassword()
	require.NoError(t, err)
	require.Equal(t, "inline", pw)
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, filepath.Join("prof", "state.db"), ResolvePath("prof", "state.db"))
	require.Equal(t, "/var/lib/state.db", ResolvePath("prof", "/var/lib/state.db"))
	require.Equal(t, "", ResolvePath("prof", ""))
}
