package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the config file inside a profile directory.
const FileName = "config.toml"

// DefaultPasswordEnv is consulted when router.password is empty.
const DefaultPasswordEnv = "GLWATCH_PASSWORD"

// Duration is a time.Duration written as text ("60s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// RouterConfig locates and authenticates against the router.
type RouterConfig struct {
	Address     string   `toml:"address"`
	Username    string   `toml:"username"`
	Password    string   `toml:"password"`
	PasswordEnv string   `toml:"passwordEnv"`
	Timeout     Duration `toml:"timeout"`
}

// PollConfig defines the sampling cadence and failure backoff.
type PollConfig struct {
	Interval       Duration `toml:"interval"`
	InitialBackoff Duration `toml:"initialBackoff"`
	MaxBackoff     Duration `toml:"maxBackoff"`
	Multiplier     float64  `toml:"multiplier"`
	Jitter         bool     `toml:"jitter"`
}

// StorageConfig defines SQLite tuning options. Samples older than Retention
// are dropped after each record; zero keeps everything.
type StorageConfig struct {
	DBPath      string   `toml:"dbPath"`
	JournalMode string   `toml:"journalMode"`
	Synchronous string   `toml:"synchronous"`
	Retention   Duration `toml:"retention"`
}

// JournalConfig defines the JSON-lines sample log.
type JournalConfig struct {
	Path      string `toml:"path"`
	MaxSizeMB int    `toml:"maxSizeMB"`
}

// IPCConfig defines socket settings.
type IPCConfig struct {
	SocketPath string `toml:"socketPath"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
}

// ProfileConfig aggregates service configuration for a profile.
type ProfileConfig struct {
	ProfileName string        `toml:"profileName"`
	Router      RouterConfig  `toml:"router"`
	Poll        PollConfig    `toml:"poll"`
	Storage     StorageConfig `toml:"storage"`
	Journal     JournalConfig `toml:"journal"`
	IPC         IPCConfig     `toml:"ipc"`
	Logging     LoggingConfig `toml:"logging"`
}

// DefaultProfile returns the configuration written by "glwatch init".
func DefaultProfile(name string) *ProfileConfig {
	return &ProfileConfig{
		ProfileName: name,
		Router: RouterConfig{
			Address:     "192.168.8.1",
			Username:    "root",
			PasswordEnv: DefaultPasswordEnv,
			Timeout:     Duration{10 * time.Second},
		},
		Poll: PollConfig{
			Interval:       Duration{time.Minute},
			InitialBackoff: Duration{5 * time.Second},
			MaxBackoff:     Duration{5 * time.Minute},
			Multiplier:     2,
			Jitter:         true,
		},
		Storage: StorageConfig{
			DBPath:      "state.db",
			JournalMode: "WAL",
			Synchronous: "NORMAL",
			Retention:   Duration{30 * 24 * time.Hour},
		},
		Journal: JournalConfig{
			Path:      "log.txt",
			MaxSizeMB: 10,
		},
		IPC: IPCConfig{
			SocketPath: "ipc.sock",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a config.toml from the provided path.
func Load(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultProfile("")
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadProfile reads config.toml from a profile directory.
func LoadProfile(dir string) (*ProfileConfig, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes cfg as TOML, replacing any existing file.
func Save(path string, cfg *ProfileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	// The file may hold the router password.
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ResolvePath resolves p relative to the profile directory unless absolute.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

// RouterPassword returns router.password, falling back to the passwordEnv variable.
func (cfg *ProfileConfig) RouterPassword() (string, error) {
	if cfg.Router.Password != "" {
		return cfg.Router.Password, nil
	}
	env := cfg.Router.PasswordEnv
	if env == "" {
		env = DefaultPasswordEnv
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("router password not set (set router.password or $%s)", env)
}

func (cfg *ProfileConfig) validate() error {
	if strings.TrimSpace(cfg.ProfileName) == "" {
		return fmt.Errorf("profileName required")
	}
	if strings.TrimSpace(cfg.Router.Address) == "" {
		return fmt.Errorf("router.address required")
	}
	if strings.TrimSpace(cfg.Router.Username) == "" {
		return fmt.Errorf("router.username required")
	}
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.dbPath required")
	}
	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socketPath required")
	}
	if cfg.Poll.Interval.Duration <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if cfg.Poll.Multiplier != 0 && cfg.Poll.Multiplier < 1 {
		return fmt.Errorf("poll.multiplier must be >= 1")
	}
	if cfg.Storage.Retention.Duration < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}
	if cfg.Router.Timeout.Duration < 0 {
		return fmt.Errorf("router.timeout must not be negative")
	}
	return nil
}
