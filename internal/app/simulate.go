package app

import (
	"context"
	"os/signal"
	"syscall"

	"smart-meter-monitor/internal/simulator"
)

// Simulate publishes synthetic three-phase telemetry to the configured broker.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interval := opts.Interval
	if interval <= 0 {
		interval = a.Config.Simulator.Interval
	}

	pub := simulator.NewPublisher(a.Config.MQTT, simulator.NewGenerator(a.Config.Simulator), a.Logger)
	sent, err := pub.Run(ctx, opts.Count, interval)
	a.Logger.Info().Int("groups", sent).Msg("simulation finished")
	return err
}
