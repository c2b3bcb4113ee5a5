// Package monitor polls the router for uplink state and hands each sample to
// sinks. It owns the re-login and backoff policy the protocol layer leaves to
// its caller.
package monitor

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/glinet"
	"github.com/rexliu/glwatch/pkg/rpc"
)

// Client is the part of glinet.Client the poller needs.
type Client interface {
	Login(ctx context.Context, password string) error
	Authenticated() bool
	Uplinks(ctx context.Context) (glinet.Uplinks, error)
}

// Config controls the poll cadence.
type Config struct {
	Password string
	Interval time.Duration
	Backoff  BackoffConfig
}

// Poller runs the sampling loop.
type Poller struct {
	client Client
	sink   Sink
	cfg    Config
	logger zerolog.Logger
	rng    *rand.Rand
	now    func() time.Time
}

// New returns a poller. A zero Interval defaults to one minute and a zero
// initial backoff to five seconds.
func New(client Client, sink Sink, cfg Config, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff.InitialDelay = 5 * time.Second
	}
	if sink == nil {
		sink = MultiSink{}
	}
	return &Poller{
		client: client,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// Step takes one sample. If the session has expired it logs in again and
// retries the query once.
func (p *Poller) Step(ctx context.Context) (core.Sample, error) {
	if !p.client.Authenticated() {
		if err := p.client.Login(ctx, p.cfg.Password); err != nil {
			return core.Sample{}, err
		}
		p.logger.Info().Msg("logged in to router")
	}
	uplinks, err := p.client.Uplinks(ctx)
	if errors.Is(err, rpc.ErrUnauthorized) {
		p.logger.Info().Msg("session expired, logging in again")
		if err := p.client.Login(ctx, p.cfg.Password); err != nil {
			return core.Sample{}, err
		}
		uplinks, err = p.client.Uplinks(ctx)
	}
	if err != nil {
		return core.Sample{}, err
	}
	ts := p.now().UTC()
	return core.Sample{
		ID:        core.NewSampleID(ts),
		Timestamp: ts,
		Tethering: core.LinkState{Available: uplinks.Tethering.Up, Used: uplinks.Tethering.Online},
		Ethernet:  core.LinkState{Available: uplinks.Ethernet.Up, Used: uplinks.Ethernet.Online},
	}, nil
}

// Run polls until ctx is done. It returns nil on cancellation and an error
// only for failures no retry can fix, such as an unsupported hash algorithm.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0
	for {
		sample, err := p.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		wait := p.cfg.Interval
		if err != nil {
			kind := glinet.Classify(err)
			switch kind {
			case glinet.KindConfig:
				p.logger.Error().Err(err).Msg("cannot authenticate with this router")
				return err
			case glinet.KindInterfaceNotFound, glinet.KindRemote:
				failures = 0
				p.logger.Warn().Err(err).Str("kind", kind.String()).Msg("poll skipped")
			default:
				failures++
				wait = NextBackoffDelay(p.cfg.Backoff, failures, p.rng)
				p.logger.Warn().Err(err).Str("kind", kind.String()).Int("attempt", failures).Dur("retry_in", wait).Msg("poll failed")
			}
		} else {
			failures = 0
			p.logger.Debug().Str("id", sample.ID).Str("active", sample.Active()).Msg("sample")
			if err := p.sink.Record(ctx, sample); err != nil {
				p.logger.Error().Err(err).Msg("record sample")
			}
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
