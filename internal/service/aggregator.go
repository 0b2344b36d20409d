// Package service runs the aggregation loop: it polls the sample store for the
// newest measurement group, derives power metrics and keeps the rolling
// window current.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/alerting"
	"smart-meter-monitor/internal/measurement"
	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/power"
	"smart-meter-monitor/internal/scheduler"
	"smart-meter-monitor/internal/sink"
	"smart-meter-monitor/internal/storage"
	"smart-meter-monitor/internal/window"
)

// Skip reasons reported for batches that produced no window entry.
const (
	SkipEmptyGroup            = "empty_group"
	SkipInconsistentTimestamp = "inconsistent_timestamp"
	SkipUndefinedPowerFactor  = "undefined_power_factor"
	SkipNonFiniteMetrics      = "non_finite_metrics"
)

// Outcome classifies one aggregation cycle.
type Outcome int

const (
	// OutcomeIdle means no samples exist or the newest timestamp was already processed.
	OutcomeIdle Outcome = iota
	// OutcomeComputed means a new record was appended to the window.
	OutcomeComputed
	// OutcomeSkipped means the batch was new but could not produce a record.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComputed:
		return observability.CycleComputed
	case OutcomeSkipped:
		return observability.CycleSkipped
	default:
		return observability.CycleIdle
	}
}

// GroupSource yields the raw samples sharing the newest stored timestamp.
type GroupSource interface {
	FetchLatestGroup(ctx context.Context) ([]measurement.RawSample, error)
}

// Broadcaster pushes fresh records to live consumers.
type Broadcaster interface {
	Broadcast(m power.Metrics)
}

// Deps are the aggregator's collaborators. Source and Window are required;
// everything else is optional.
type Deps struct {
	Source         GroupSource
	Window         *window.Rolling[power.Metrics]
	Metrics        storage.MetricsStore
	AlertStore     storage.AlertStore
	Notifier       alerting.Notifier
	Policy         *alerting.Policy
	// AlertRetention bounds how long alert records are kept, measured
	// against sample time. Zero keeps them forever.
	AlertRetention time.Duration
	Sinks          *sink.Fanout
	Energy         *power.EnergyMeter
	Broadcaster    Broadcaster
	Locker         storage.AdvisoryLocker
	LockKey        int64
	Collectors     *observability.Metrics
}

// Aggregator is the single writer of the rolling window.
type Aggregator struct {
	scheduler *scheduler.Scheduler
	deps      Deps
	logger    zerolog.Logger

	mu       sync.Mutex
	lastSeen time.Time
}

// New constructs the aggregator. sched may be nil when only RunCycle is used.
func New(sched *scheduler.Scheduler, deps Deps, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		scheduler: sched,
		deps:      deps,
		logger:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// Run begins the periodic loop and blocks until ctx is cancelled. A cycle in
// progress at cancellation completes before Run returns.
func (a *Aggregator) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	err := a.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := a.RunCycle(ctx)
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// LastSeen returns the newest group timestamp the loop has consumed.
func (a *Aggregator) LastSeen() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeen
}

// RunCycle performs one pull, group, compute and append pass. Engine failures
// (empty group, mixed timestamps, undefined power factor) are logged, counted
// and reported as OutcomeSkipped with a nil error; only I/O failures are
// returned.
func (a *Aggregator) RunCycle(ctx context.Context) (Outcome, error) {
	started := time.Now()
	outcome, err := a.runCycle(ctx)
	result := outcome.String()
	if err != nil {
		result = observability.CycleFailed
	}
	a.deps.Collectors.ObserveCycle(result, time.Since(started))
	return outcome, err
}

func (a *Aggregator) runCycle(ctx context.Context) (Outcome, error) {
	unlock, proceed, err := a.acquireLock(ctx)
	if err != nil {
		return OutcomeIdle, err
	}
	if !proceed {
		a.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return OutcomeIdle, nil
	}
	if unlock != nil {
		defer unlock()
	}

	samples, err := a.deps.Source.FetchLatestGroup(ctx)
	if err != nil {
		return OutcomeIdle, fmt.Errorf("fetch latest group: %w", err)
	}
	if len(samples) == 0 {
		a.logger.Debug().Msg("no samples yet")
		return OutcomeIdle, nil
	}

	ts := samples[0].Timestamp
	if !a.advance(ts) {
		a.logger.Debug().Time("ts", ts).Msg("no new timestamp")
		return OutcomeIdle, nil
	}

	m, reason, err := compute(samples)
	if err != nil {
		a.deps.Collectors.SkippedBatch(reason)
		a.logger.Warn().Err(err).Time("ts", ts).Int("samples", len(samples)).Str("reason", reason).Msg("batch skipped")
		return OutcomeSkipped, nil
	}

	a.deps.Window.Append(m)
	a.deps.Collectors.SetWindowSize(a.deps.Window.Len())
	a.deps.Collectors.SetPower(m.ActivePower, m.ReactivePower, m.ApparentPower, m.PowerFactor)
	a.logger.Debug().Time("ts", m.Timestamp).
		Float64("active_power", m.ActivePower).
		Float64("power_factor", m.PowerFactor).
		Msg("metrics appended")

	a.publish(ctx, m)
	return OutcomeComputed, nil
}

// advance records ts as seen. It reports false when ts is not newer than the
// last consumed timestamp. The mark moves before computation so a bad batch
// is reported once.
func (a *Aggregator) advance(ts time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.lastSeen.IsZero() && !ts.After(a.lastSeen) {
		return false
	}
	a.lastSeen = ts
	return true
}

// compute groups and evaluates samples, classifying engine failures.
func compute(samples []measurement.RawSample) (power.Metrics, string, error) {
	group, err := measurement.NewGroup(samples)
	if err != nil {
		return power.Metrics{}, classify(err), err
	}
	m, err := power.Calculate(group)
	if err != nil {
		return power.Metrics{}, classify(err), err
	}
	return m, "", nil
}

func classify(err error) string {
	var inconsistent *measurement.InconsistentTimestampError
	switch {
	case errors.As(err, &inconsistent):
		return SkipInconsistentTimestamp
	case errors.Is(err, measurement.ErrEmptyGroup):
		return SkipEmptyGroup
	case errors.Is(err, power.ErrUndefinedPowerFactor):
		return SkipUndefinedPowerFactor
	case errors.Is(err, power.ErrNonFiniteMetrics):
		return SkipNonFiniteMetrics
	default:
		return "unknown"
	}
}

// publish runs the secondary consumers of a fresh record. None of them can
// undo the window append.
func (a *Aggregator) publish(ctx context.Context, m power.Metrics) {
	if a.deps.Metrics != nil {
		if err := a.deps.Metrics.UpsertMetrics(ctx, m); err != nil {
			a.logger.Error().Err(err).Time("ts", m.Timestamp).Msg("failed to persist metrics")
		}
	}
	if a.deps.Energy != nil {
		a.deps.Energy.Add(m)
	}
	if a.deps.Broadcaster != nil {
		a.deps.Broadcaster.Broadcast(m)
	}
	a.deps.Sinks.Publish(ctx, m)
	a.maybeAlert(ctx, m)
}

func (a *Aggregator) maybeAlert(ctx context.Context, m power.Metrics) {
	if a.deps.Policy == nil || a.deps.Notifier == nil {
		return
	}
	note, due := a.deps.Policy.Evaluate(m)
	if !due {
		return
	}

	if a.deps.AlertStore != nil {
		record := storage.AlertRecord{
			SampleTS:    note.SampleTS,
			PowerFactor: note.PowerFactor,
			Threshold:   note.Threshold,
			Channels:    note.Channels,
		}
		if _, err := a.deps.AlertStore.InsertAlert(ctx, record); err != nil {
			a.logger.Error().Err(err).Time("ts", m.Timestamp).Msg("failed to persist alert record")
		}
		if a.deps.AlertRetention > 0 {
			cutoff := m.Timestamp.Add(-a.deps.AlertRetention)
			if err := a.deps.AlertStore.DeleteAlertsBefore(ctx, cutoff); err != nil {
				a.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("failed to prune alert records")
			}
		}
	}
	if err := a.deps.Notifier.Notify(ctx, note); err != nil {
		a.logger.Error().Err(err).Time("ts", m.Timestamp).Msg("failed to dispatch alert")
		return
	}
	a.deps.Collectors.AlertSent()
}

func (a *Aggregator) acquireLock(ctx context.Context) (func(), bool, error) {
	if a.deps.LockKey == 0 || a.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := a.deps.Locker.TryAdvisoryLock(ctx, a.deps.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
