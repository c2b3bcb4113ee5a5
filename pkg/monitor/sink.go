package monitor

import (
	"context"
	"errors"

	"github.com/rexliu/glwatch/pkg/core"
)

// Sink receives every sample the poller takes.
type Sink interface {
	Record(ctx context.Context, sample core.Sample) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, sample core.Sample) error

func (f SinkFunc) Record(ctx context.Context, sample core.Sample) error {
	return f(ctx, sample)
}

// MultiSink records to each sink in order, continuing past failures.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, sample core.Sample) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
