package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/glwatch/pkg/auth"
	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/glinet"
	"github.com/rexliu/glwatch/pkg/glinet/routertest"
)

type collector struct {
	mu      sync.Mutex
	samples []core.Sample
	onCount func(n int)
}

func (c *collector) Record(ctx context.Context, sample core.Sample) error {
	c.mu.Lock()
	c.samples = append(c.samples, sample)
	n := len(c.samples)
	c.mu.Unlock()
	if c.onCount != nil {
		c.onCount(n)
	}
	return nil
}

func (c *collector) all() []core.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Sample(nil), c.samples...)
}

func fastConfig(password string) Config {
	return Config{
		Password: password,
		Interval: 5 * time.Millisecond,
		Backoff:  BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	}
}

func TestStepProducesSample(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	client := glinet.NewClient(router.URL(), "root", time.Second)
	p := New(client, nil, fastConfig("hunter2"), zerolog.Nop())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	sample, err := p.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, fixed, sample.Timestamp)
	require.NotEmpty(t, sample.ID)
	require.Equal(t, core.LinkState{Available: true, Used: true}, sample.Ethernet)
	require.Equal(t, core.LinkState{Available: true, Used: false}, sample.Tethering)
	require.Equal(t, 1, router.Count("login"))
}

func TestStepReloginsOnExpiredSession(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	client := glinet.NewClient(router.URL(), "root", time.Second)
	p := New(client, nil, fastConfig("hunter2"), zerolog.Nop())
	ctx := context.Background()

	_, err := p.Step(ctx)
	require.NoError(t, err)

	router.ExpireSessions()
	_, err = p.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, router.Count("login"))
	require.Equal(t, 3, router.Count("call"))
}

func TestStepMissingInterface(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	router.SetNetwork(glinet.NetworkStatus{Interface: "wan", Up: true, Online: true})
	client := glinet.NewClient(router.URL(), "root", time.Second)
	p := New(client, nil, fastConfig("hunter2"), zerolog.Nop())

	_, err := p.Step(context.Background())
	require.ErrorIs(t, err, glinet.ErrInterfaceNotFound)
}

func TestRunRecordsAcrossExpiry(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	client := glinet.NewClient(router.URL(), "root", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &collector{onCount: func(n int) {
		switch {
		case n == 2:
			router.ExpireSessions()
		case n >= 4:
			cancel()
		}
	}}
	p := New(client, sink, fastConfig("hunter2"), zerolog.Nop())

	require.NoError(t, p.Run(ctx))
	require.GreaterOrEqual(t, len(sink.all()), 4)
	require.Equal(t, 2, router.Count("login"))
}

func TestRunStopsOnUnsupportedAlgorithm(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	router.SetAlgorithm(auth.Algorithm(3))
	client := glinet.NewClient(router.URL(), "root", time.Second)
	p := New(client, nil, fastConfig("hunter2"), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Run(ctx)
	require.ErrorIs(t, err, auth.ErrUnsupportedAlgorithm)
}

func TestRunRecoversFromChallengeWithoutAlgorithm(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	router.ReplyNext("challenge", `{"nonce":"n1","salt":"s1"}`)
	client := glinet.NewClient(router.URL(), "root", time.Second)
	sink := &collector{}
	p := New(client, sink, fastConfig("hunter2"), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	require.GreaterOrEqual(t, router.Count("challenge"), 2)
	require.NotEmpty(t, sink.all())
}

func TestRunSurvivesWrongPasswordUntilCancelled(t *testing.T) {
	router := routertest.New("hunter2")
	defer router.Close()
	client := glinet.NewClient(router.URL(), "root", time.Second)
	p := New(client, nil, fastConfig("wrong"), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	require.Greater(t, router.Count("login"), 1)
}

func TestRunSurvivesTransportFailure(t *testing.T) {
	router := routertest.New("hunter2")
	url := router.URL()
	router.Close()
	client := glinet.NewClient(url, "root", 100*time.Millisecond)
	p := New(client, nil, fastConfig("hunter2"), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	sink := MultiSink{
		SinkFunc(func(context.Context, core.Sample) error { calls++; return boom }),
		nil,
		SinkFunc(func(context.Context, core.Sample) error { calls++; return nil }),
	}
	err := sink.Record(context.Background(), core.Sample{Timestamp: time.Now()})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	require.Equal(t, time.Second, NextBackoffDelay(cfg, 1, nil))
	require.Equal(t, 2*time.Second, NextBackoffDelay(cfg, 2, nil))
	require.Equal(t, 8*time.Second, NextBackoffDelay(cfg, 4, nil))
	require.Equal(t, 10*time.Second, NextBackoffDelay(cfg, 9, nil))
	require.Equal(t, time.Duration(0), NextBackoffDelay(BackoffConfig{}, 3, nil))

	cfg.Jitter = true
	require.Equal(t, 500*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
}
