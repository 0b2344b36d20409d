package app

import (
	"context"
	"errors"
	"time"

	"smart-meter-monitor/internal/render"
)

// Export renders stored metrics as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	panel, err := render.ParsePanel(opts.Panel)
	if err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	from, to, err := a.exportRange(opts)
	if err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := store.ListMetricsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no metrics found for export window")
		return nil
	}

	downsampled := render.Downsample(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting metrics")

	if opts.CSVPath != "" {
		if err := render.WriteCSVFile(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := render.WritePNGFile(opts.PNGPath, downsampled, panel); err != nil {
			return err
		}
	}

	return nil
}

// exportRange defaults to the span MaxPoints aggregation intervals back from now.
func (a *App) exportRange(opts ExportOptions) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Aggregator.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}
