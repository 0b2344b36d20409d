package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"smart-meter-monitor/internal/app"
)

var (
	simulateCount    int
	simulateInterval time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic three-phase telemetry over MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCount < 0 {
			return errors.New("--count cannot be negative")
		}

		opts := app.SimulateOptions{
			Count:    simulateCount,
			Interval: simulateInterval,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateCount, "count", 0, "Number of groups to publish (0 runs until interrupted)")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", 0, "Delay between groups (defaults to simulator.interval)")
}
