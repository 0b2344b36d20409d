package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"smart-meter-monitor/internal/alerting"
	"smart-meter-monitor/internal/httpapi"
	"smart-meter-monitor/internal/ingest"
	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/power"
	"smart-meter-monitor/internal/scheduler"
	"smart-meter-monitor/internal/service"
	"smart-meter-monitor/internal/storage"
	"smart-meter-monitor/internal/version"
	"smart-meter-monitor/internal/window"
)

// Run executes the long-running monitor: telemetry ingest, the aggregation
// loop and the consumer API, until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collectors := observability.New()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var (
		samples    storage.SampleStore
		metrics    storage.MetricsStore
		alertStore storage.AlertStore
		locker     storage.AdvisoryLocker
	)
	if store != nil {
		samples, metrics, alertStore, locker = store, store, store, store
	} else {
		a.Logger.Warn().Int("retention", a.Config.Database.MemoryRetention).Msg("database.dsn not configured; using in-memory store")
		mem := storage.NewMemoryStore(a.Config.Database.MemoryRetention)
		samples, metrics, alertStore = mem, mem, mem
	}
	if !a.Config.Aggregator.PersistMetrics {
		metrics = nil
	}

	win, err := window.New[power.Metrics](a.Config.Aggregator.WindowCapacity)
	if err != nil {
		return err
	}
	energy := power.NewEnergyMeter(decimal.NewFromFloat(a.Config.Energy.PricePerKWh), a.Config.Energy.MaxGap)
	hub := httpapi.NewHub(a.Config.HTTP.StreamBuffer, a.Logger)
	defer hub.Close()

	sinks := a.newSinks(collectors)
	defer func() {
		if err := sinks.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("closing sinks")
		}
	}()

	deps := service.Deps{
		Source:      samples,
		Window:      win,
		Metrics:     metrics,
		AlertStore:  alertStore,
		Sinks:       sinks,
		Energy:      energy,
		Broadcaster: hub,
		Locker:      locker,
		LockKey:     a.Config.Aggregator.AdvisoryLockKey,
		Collectors:  collectors,
	}
	if a.Config.Alerting.Enabled {
		deps.Policy = alerting.NewPolicy(a.Config.Alerting.MinPowerFactor, a.Config.Alerting.Cooldown, a.Config.Alerting.Channels)
		deps.Notifier = a.newNotifier()
		deps.AlertRetention = a.Config.Alerting.Retention
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Aggregator.Interval,
		AlignToStart: a.Config.Aggregator.AlignToTick,
		StartupDelay: a.Config.Aggregator.StartupDelay,
	}, a.Logger)
	agg := service.New(sched, deps, a.Logger)

	g, gctx := errgroup.WithContext(ctx)

	if a.Config.MQTT.EmbeddedBroker.Enabled {
		broker, err := ingest.NewEmbeddedBroker(a.Config.MQTT.EmbeddedBroker.Address, a.Logger)
		if err != nil {
			return err
		}
		if err := broker.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return broker.Close()
		})
	}

	if a.Config.MQTT.Enabled {
		sub := ingest.NewSubscriber(a.Config.MQTT, samples, collectors, a.Logger)
		g.Go(func() error { return sub.Run(gctx) })
	} else {
		a.Logger.Warn().Msg("mqtt ingest disabled; expecting samples from another writer")
	}

	g.Go(func() error { return agg.Run(gctx) })

	if a.Config.HTTP.Enabled {
		api := httpapi.NewServer(a.Config.HTTP, httpapi.Deps{
			Window:     win,
			Energy:     energy,
			Hub:        hub,
			Collectors: collectors,
			LastSeen:   agg.LastSeen,
		}, a.Logger)
		g.Go(func() error { return api.Run(gctx) })
	}

	a.Logger.Info().
		Dur("interval", sched.Interval()).
		Int("window_capacity", win.Cap()).
		Str("build", version.String()).
		Msg("starting monitor")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitor stopped")
	return nil
}
