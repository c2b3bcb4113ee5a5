package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/logging"
)

const subscriberBuffer = 16

// sampleEvent is the frame sent to subscribe_samples clients.
type sampleEvent struct {
	Type   string      `json:"type"`
	Active string      `json:"active"`
	Sample core.Sample `json:"sample"`
}

// eventHub fans recorded samples out to stream subscribers. A subscriber that
// falls subscriberBuffer frames behind misses samples rather than stalling the poller.
type eventHub struct {
	logger *logging.Logger
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
}

type subscriber struct {
	frames  chan []byte
	dropped int
}

func newEventHub(logger *logging.Logger) *eventHub {
	return &eventHub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

func (h *eventHub) subscribe(ctx context.Context) <-chan []byte {
	sub := &subscriber{frames: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	go func() {
		<-ctx.Done()
		h.remove(sub)
	}()
	return sub.frames
}

func (h *eventHub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.frames)
	if sub.dropped > 0 {
		h.logger.Warn().Int("dropped", sub.dropped).Msg("subscriber left after missing samples")
	}
}

func (h *eventHub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *eventHub) broadcast(sample core.Sample) {
	payload, err := json.Marshal(sampleEvent{Type: "sample", Active: sample.Active(), Sample: sample})
	if err != nil {
		h.logger.Error().Err(err).Msg("encode sample event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.frames <- payload:
		default:
			sub.dropped++
		}
	}
}

// publish is the daemon's own sink: it notifies subscribers and refreshes latest.json.
func (d *daemon) publish(ctx context.Context, sample core.Sample) error {
	d.hub.broadcast(sample)
	return writeSnapshot(d.profileDir, sample)
}
