// Package sink forwards computed power metrics to external systems.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/power"
)

const writeTimeout = 5 * time.Second

// Sink receives every newly computed record.
type Sink interface {
	Name() string
	Write(ctx context.Context, m power.Metrics) error
	Close() error
}

// Fanout delivers records to every configured sink. Failures are logged and
// counted per sink; one failing sink does not affect the others.
type Fanout struct {
	sinks   []Sink
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewFanout wraps sinks. metrics may be nil.
func NewFanout(sinks []Sink, metrics *observability.Metrics, logger zerolog.Logger) *Fanout {
	return &Fanout{
		sinks:   sinks,
		metrics: metrics,
		logger:  logger.With().Str("component", "sink").Logger(),
	}
}

// Len reports the number of sinks.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// Publish writes m to each sink with a bounded timeout.
func (f *Fanout) Publish(ctx context.Context, m power.Metrics) {
	if f == nil {
		return
	}
	for _, s := range f.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := s.Write(writeCtx, m)
		cancel()
		if err != nil {
			f.metrics.SinkFailed(s.Name())
			f.logger.Error().Err(err).Str("sink", s.Name()).Time("ts", m.Timestamp).Msg("sink write failed")
		}
	}
}

// Close closes every sink and joins their errors.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
