package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rexliu/glwatch/pkg/config"
	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/glinet"
	"github.com/rexliu/glwatch/pkg/ipc"
)

const version = "0.1.0"

const defaultProfile = "./_dev_profile"

var stdout io.Writer = os.Stdout

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	commands := map[string]func(context.Context, []string) error{
		"init":    initCommand,
		"diag":    diagCommand,
		"ping":    pingCommand,
		"latest":  latestCommand,
		"history": historyCommand,
		"watch":   watchCommand,
		"probe":   probeCommand,
	}
	name := os.Args[1]
	switch name {
	case "version":
		fmt.Fprintf(stdout, "glwatch %s\n", version)
		return
	case "help", "-h", "--help":
		usage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", name)
		usage()
		os.Exit(1)
	}
	if err := cmd(ctx, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", name, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: glwatch <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Initialize a local profile (writes config.toml)")
	fmt.Println("  diag      Print profile configuration paths")
	fmt.Println("  ping      Call the daemon ping endpoint via IPC")
	fmt.Println("  latest    Show the most recent uplink sample")
	fmt.Println("  history   List recorded samples, newest first")
	fmt.Println("  watch     Stream samples from the daemon as they are recorded")
	fmt.Println("  probe     Log in to the router directly and print uplink status")
	fmt.Println("  version   Print CLI version")
}

func newFlagSet(name string) (*pflag.FlagSet, *string, *string) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	profile := fs.StringP("profile", "p", defaultProfile, "Profile directory")
	socket := fs.String("socket", "", "Override socket path")
	return fs, profile, socket
}

func initCommand(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("init", pflag.ExitOnError)
	profilePath := fs.StringP("profile", "p", defaultProfile, "Profile directory")
	name := fs.String("name", "dev", "Profile name")
	address := fs.String("address", glinet.DefaultAddress, "Router address")
	username := fs.String("username", glinet.DefaultUsername, "Router username")
	force := fs.Bool("force", false, "Overwrite existing config if present")
	_ = fs.Parse(args)

	if err := os.MkdirAll(*profilePath, 0o700); err != nil {
		return err
	}
	configPath := filepath.Join(*profilePath, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}
	cfg := config.DefaultProfile(*name)
	cfg.Router.Address = *address
	cfg.Router.Username = *username
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "initialized profile %s at %s\n", cfg.ProfileName, *profilePath)
	fmt.Fprintf(stdout, "set router.password in %s or export %s\n", configPath, cfg.Router.PasswordEnv)
	return nil
}

func diagCommand(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("diag", pflag.ExitOnError)
	profile := fs.StringP("profile", "p", defaultProfile, "Profile directory")
	_ = fs.Parse(args)
	cfg, err := loadProfile(*profile)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Profile: %s\n", cfg.ProfileName)
	fmt.Fprintf(stdout, "Config: %s\n", filepath.Join(*profile, config.FileName))
	fmt.Fprintf(stdout, "Router: %s@%s (timeout %s)\n", cfg.Router.Username, cfg.Router.Address, cfg.Router.Timeout.Duration)
	fmt.Fprintf(stdout, "Password: %s\n", passwordSource(cfg))
	fmt.Fprintf(stdout, "Poll Interval: %s\n", cfg.Poll.Interval.Duration)
	fmt.Fprintf(stdout, "DB Path: %s (retention %s)\n", config.ResolvePath(*profile, cfg.Storage.DBPath), cfg.Storage.Retention.Duration)
	fmt.Fprintf(stdout, "Journal: %s\n", config.ResolvePath(*profile, cfg.Journal.Path))
	fmt.Fprintf(stdout, "Socket: %s\n", config.ResolvePath(*profile, cfg.IPC.SocketPath))
	if cfg.Logging.FilePath != "" {
		fmt.Fprintf(stdout, "Log File: %s\n", config.ResolvePath(*profile, cfg.Logging.FilePath))
	}
	return nil
}

func passwordSource(cfg *config.ProfileConfig) string {
	switch {
	case cfg.Router.Password != "":
		return "config file"
	case cfg.Router.PasswordEnv != "" && os.Getenv(cfg.Router.PasswordEnv) != "":
		return "$" + cfg.Router.PasswordEnv
	default:
		return "missing"
	}
}

func pingCommand(ctx context.Context, args []string) error {
	fs, profile, socket := newFlagSet("ping")
	_ = fs.Parse(args)

	resp, err := rpcCall(ctx, *profile, *socket, "ping", nil)
	if err != nil {
		return err
	}
	var data struct {
		Now           int64  `json:"now"`
		Username      string `json:"username"`
		Authenticated bool   `json:"authenticated"`
		Subscribers   int    `json:"subscribers"`
	}
	if err := json.Unmarshal(resp.Result, &data); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	fmt.Fprintf(stdout, "daemon responded: now=%d user=%s authenticated=%t subscribers=%d\n", data.Now, data.Username, data.Authenticated, data.Subscribers)
	return nil
}

func latestCommand(ctx context.Context, args []string) error {
	fs, profile, socket := newFlagSet("latest")
	asJSON := fs.Bool("json", false, "Print the raw sample as JSON")
	_ = fs.Parse(args)

	resp, err := rpcCall(ctx, *profile, *socket, "latest", nil)
	if err != nil {
		return err
	}
	var data struct {
		Sample core.Sample `json:"sample"`
	}
	if err := json.Unmarshal(resp.Result, &data); err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}
	if *asJSON {
		return printJSON(data.Sample)
	}
	printSample(data.Sample)
	return nil
}

func historyCommand(ctx context.Context, args []string) error {
	fs, profile, socket := newFlagSet("history")
	since := fs.String("since", "", "Only samples newer than this (duration like 2h, or RFC3339)")
	limit := fs.IntP("limit", "n", core.DefaultHistoryLimit, fmt.Sprintf("Maximum results (1-%d)", core.MaxHistoryLimit))
	asJSON := fs.Bool("json", false, "Print samples as JSON")
	_ = fs.Parse(args)

	query := core.HistoryQuery{Limit: *limit}
	if *since != "" {
		ts, err := parseSince(*since, time.Now())
		if err != nil {
			return err
		}
		query.Since = ts
	}
	resp, err := rpcCall(ctx, *profile, *socket, "history", query)
	if err != nil {
		return err
	}
	var data struct {
		Samples []core.Sample `json:"samples"`
	}
	if err := json.Unmarshal(resp.Result, &data); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	if *asJSON {
		return printJSON(data.Samples)
	}
	for _, sample := range data.Samples {
		printSample(sample)
	}
	return nil
}

func watchCommand(ctx context.Context, args []string) error {
	fs, profile, socket := newFlagSet("watch")
	_ = fs.Parse(args)

	socketPath, err := resolveSocketPath(*profile, *socket)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Subscribed to samples (Ctrl+C to exit)")
	return ipc.Subscribe(ctx, socketPath, "subscribe_samples", nil, func(frame []byte) error {
		var event struct {
			Sample core.Sample `json:"sample"`
		}
		if err := json.Unmarshal(frame, &event); err != nil {
			fmt.Fprintln(stdout, string(frame))
			return nil
		}
		printSample(event.Sample)
		return nil
	})
}

func probeCommand(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("probe", pflag.ExitOnError)
	profile := fs.StringP("profile", "p", "", "Profile directory to read router settings from")
	address := fs.String("address", "", "Router address (overrides profile)")
	username := fs.String("username", "", "Router username (overrides profile)")
	password := fs.String("password", "", "Router password (overrides profile and environment)")
	timeout := fs.Duration("timeout", 0, "Request timeout (overrides profile)")
	detail := fs.Bool("detail", false, "Also fetch detailed cable and tethering status")
	_ = fs.Parse(args)

	cfg := config.DefaultProfile("probe")
	if *profile != "" {
		loaded, err := loadProfile(*profile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *address != "" {
		cfg.Router.Address = *address
	}
	if *username != "" {
		cfg.Router.Username = *username
	}
	if *timeout > 0 {
		cfg.Router.Timeout = config.Duration{Duration: *timeout}
	}
	if *password != "" {
		cfg.Router.Password = *password
	}
	pw, err := cfg.RouterPassword()
	if err != nil {
		return err
	}

	client := glinet.NewClient(cfg.Router.Address, cfg.Router.Username, cfg.Router.Timeout.Duration)
	if err := client.Login(ctx, pw); err != nil {
		return probeError("login", err)
	}
	uplinks, err := client.Uplinks(ctx)
	if err != nil {
		return probeError("system status", err)
	}
	fmt.Fprintf(stdout, "ethernet:  up=%t online=%t\n", uplinks.Ethernet.Up, uplinks.Ethernet.Online)
	fmt.Fprintf(stdout, "tethering: up=%t online=%t\n", uplinks.Tethering.Up, uplinks.Tethering.Online)
	if !*detail {
		return nil
	}
	eth, err := client.DetailedEthernetStatus(ctx)
	if err != nil {
		return probeError("cable status", err)
	}
	teth, err := client.DetailedTetheringStatus(ctx)
	if err != nil {
		return probeError("tethering status", err)
	}
	return printJSON(map[string]any{"cable": eth, "tethering": teth})
}

func probeError(step string, err error) error {
	return fmt.Errorf("%s failed (%s): %w", step, glinet.Classify(err), err)
}

func printSample(sample core.Sample) {
	fmt.Fprintf(stdout, "%s  active=%-9s ethernet=%s tethering=%s\n",
		sample.Timestamp.Local().Format(time.RFC3339), sample.Active(),
		linkString(sample.Ethernet), linkString(sample.Tethering))
}

func linkString(l core.LinkState) string {
	switch {
	case l.Used:
		return "used"
	case l.Available:
		return "standby"
	default:
		return "down"
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

// parseSince accepts a lookback duration ("90m") or an absolute RFC3339 time.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("--since must not be negative")
		}
		return now.Add(-d), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q: want a duration or RFC3339 time", value)
	}
	return ts, nil
}

func rpcCall(ctx context.Context, profile, socketOverride, method string, params any) (*ipc.Response, error) {
	socketPath, err := resolveSocketPath(profile, socketOverride)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return ipc.Call(ctx, socketPath, method, params)
}

func loadProfile(profile string) (*config.ProfileConfig, error) {
	cfg, err := config.LoadProfile(profile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config not found in %s (run 'glwatch init --profile %s')", profile, profile)
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func resolveSocketPath(profile, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := loadProfile(profile)
	if err != nil {
		return "", err
	}
	return config.ResolvePath(profile, cfg.IPC.SocketPath), nil
}
