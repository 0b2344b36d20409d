package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/storage"
)

// BackfillReport summarises a recompute run.
type BackfillReport struct {
	Groups   int
	Computed int
	Skipped  map[string]int
}

// Backfill recomputes metrics for every stored sample timestamp in [from, to)
// and upserts them unless dryRun is set. Engine failures are tallied per
// reason and do not stop the run.
func Backfill(ctx context.Context, samples storage.SampleStore, metrics storage.MetricsStore, from, to time.Time, dryRun bool, logger zerolog.Logger) (BackfillReport, error) {
	logger = logger.With().Str("component", "backfill").Logger()
	report := BackfillReport{Skipped: map[string]int{}}

	stamps, err := samples.ListSampleTimestamps(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("list sample timestamps: %w", err)
	}

	for _, ts := range stamps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		group, err := samples.FetchGroup(ctx, ts)
		if err != nil {
			return report, fmt.Errorf("fetch group %s: %w", ts.Format(time.RFC3339Nano), err)
		}
		report.Groups++

		m, reason, err := compute(group)
		if err != nil {
			report.Skipped[reason]++
			logger.Warn().Err(err).Time("ts", ts).Str("reason", reason).Msg("group skipped")
			continue
		}

		if dryRun {
			logger.Info().Time("ts", ts).
				Float64("active_power", m.ActivePower).
				Float64("power_factor", m.PowerFactor).
				Msg("dry-run: metrics computed")
		} else if err := metrics.UpsertMetrics(ctx, m); err != nil {
			return report, fmt.Errorf("upsert metrics %s: %w", ts.Format(time.RFC3339Nano), err)
		}
		report.Computed++
	}

	return report, nil
}
