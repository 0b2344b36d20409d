package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"smart-meter-monitor/internal/power"
	"smart-meter-monitor/internal/storage"
)

// Show prints the most recent stored power metrics.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show metrics")
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return printAlerts(os.Stdout, alerts)
	}

	rows, err := store.ListRecentMetrics(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountMetrics(ctx)
	if err != nil {
		return err
	}
	if err := printMetrics(os.Stdout, rows); err != nil {
		return err
	}
	if len(rows) > 0 {
		fmt.Fprintf(os.Stdout, "\n%d of %d stored records\n", len(rows), total)
	}
	return nil
}

func printMetrics(out io.Writer, rows []power.Metrics) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no metrics found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tV1\tV2\tV3\tI1\tI2\tI3\tP [W]\tQ [VAr]\tS [VA]\tPF")

	for _, m := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%.2f\t%.2f\t%.2f\t%.3f\t%.3f\t%.3f\t%.1f\t%.1f\t%.1f\t%.3f\n",
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			m.Voltage1, m.Voltage2, m.Voltage3,
			m.Current1, m.Current2, m.Current3,
			m.ActivePower, m.ReactivePower, m.ApparentPower,
			m.PowerFactor,
		)
	}

	return writer.Flush()
}

func printAlerts(out io.Writer, rows []storage.AlertRecord) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSample (UTC)\tPF\tThreshold\tChannels\tCreated (UTC)")

	for _, a := range rows {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.SampleTS.UTC().Format(time.RFC3339Nano),
			a.PowerFactor.StringFixed(3),
			a.Threshold.StringFixed(3),
			strings.Join(a.Channels, ","),
			a.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}
