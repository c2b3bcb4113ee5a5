package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rexliu/glwatch/pkg/config"
	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/glinet"
	"github.com/rexliu/glwatch/pkg/ipc"
	"github.com/rexliu/glwatch/pkg/logging"
	"github.com/rexliu/glwatch/pkg/monitor"
	"github.com/rexliu/glwatch/pkg/storage/journal"
	"github.com/rexliu/glwatch/pkg/storage/sqlite"
)

func main() {
	profile := pflag.StringP("profile", "p", "./_dev_profile", "Path to profile directory")
	socket := pflag.String("socket", "", "Override IPC socket path (optional)")
	pflag.Parse()

	logger := logging.New("glwatchd")
	logger.Info().Str("profile", *profile).Msg("starting daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *profile, *socket, logger); err != nil {
		logger.Error().Err(err).Msg("fatal error")
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

type daemon struct {
	profileDir string
	store      *sqlite.Store
	retention  time.Duration
	client     *glinet.Client
	hub        *eventHub
	logger     *logging.Logger
}

func run(ctx context.Context, profileDir, socketOverride string, logger *logging.Logger) error {
	cfg, err := config.LoadProfile(profileDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config not found in %s (run 'glwatch init --profile %s')", profileDir, profileDir)
		}
		return fmt.Errorf("load config: %w", err)
	}
	logCfg := cfg.Logging
	if logCfg.FilePath != "" {
		logCfg.FilePath = config.ResolvePath(profileDir, logCfg.FilePath)
	}
	if err := logger.Configure(logCfg); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	password, err := cfg.RouterPassword()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(config.ResolvePath(profileDir, cfg.Storage.DBPath))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()
	tuning := sqlite.Tuning{JournalMode: cfg.Storage.JournalMode, Synchronous: cfg.Storage.Synchronous}
	if err := store.Init(ctx, tuning); err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}

	jrnl, err := journal.Open(config.ResolvePath(profileDir, cfg.Journal.Path), cfg.Journal.MaxSizeMB)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jrnl.Close()

	d := &daemon{
		profileDir: profileDir,
		store:      store,
		retention:  cfg.Storage.Retention.Duration,
		client:     glinet.NewClient(cfg.Router.Address, cfg.Router.Username, cfg.Router.Timeout.Duration),
		hub:        newEventHub(logger),
		logger:     logger,
	}
	poller := monitor.New(d.client, d.sinks(jrnl), monitor.Config{
		Password: password,
		Interval: cfg.Poll.Interval.Duration,
		Backoff: monitor.BackoffConfig{
			InitialDelay: cfg.Poll.InitialBackoff.Duration,
			MaxDelay:     cfg.Poll.MaxBackoff.Duration,
			Multiplier:   cfg.Poll.Multiplier,
			Jitter:       cfg.Poll.Jitter,
		},
	}, logger.With().Str("router", cfg.Router.Address).Logger())

	socketPath := socketOverride
	if socketPath == "" {
		socketPath = config.ResolvePath(profileDir, cfg.IPC.SocketPath)
	}
	if err := cleanupSocket(socketPath); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := ipc.NewServer(logger.With().Str("socket", socketPath).Logger())
	d.registerHandlers(srv)
	if err := srv.Start(gctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer func() {
		srv.Stop()
		cleanupSocket(socketPath)
	}()
	logger.Info().Str("socket", socketPath).Msg("daemon ready")

	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		return nil
	})
	return g.Wait()
}

// sinks fans each sample out to history, journal, subscribers and the snapshot file.
func (d *daemon) sinks(jrnl *journal.Journal) monitor.Sink {
	return monitor.MultiSink{d.store, monitor.SinkFunc(d.prune), jrnl, monitor.SinkFunc(d.publish)}
}

// prune enforces storage.retention relative to the sample just recorded.
func (d *daemon) prune(ctx context.Context, sample core.Sample) error {
	if d.retention <= 0 {
		return nil
	}
	removed, err := d.store.Prune(ctx, sample.Timestamp.Add(-d.retention))
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if removed > 0 {
		d.logger.Debug().Int64("removed", removed).Msg("pruned old samples")
	}
	return nil
}

func cleanupSocket(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
