package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/alerting"
	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/sink"
	"smart-meter-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) newSinks(collectors *observability.Metrics) *sink.Fanout {
	var sinks []sink.Sink
	if a.Config.Influx.Enabled {
		sinks = append(sinks, sink.NewInflux(a.Config.Influx, a.Config.App.Name))
		a.Logger.Info().Str("url", a.Config.Influx.URL).Str("bucket", a.Config.Influx.Bucket).Msg("influx sink enabled")
	}
	if a.Config.Kafka.Enabled {
		sinks = append(sinks, sink.NewKafka(a.Config.Kafka))
		a.Logger.Info().Strs("brokers", a.Config.Kafka.Brokers).Str("topic", a.Config.Kafka.Topic).Msg("kafka sink enabled")
	}
	if len(sinks) == 0 {
		return nil
	}
	return sink.NewFanout(sinks, collectors, a.Logger)
}

// openStore connects to PostgreSQL when a DSN is configured. It returns a nil
// store without error otherwise.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// requireStore is openStore for commands that cannot run without a database.
func (a *App) requireStore(ctx context.Context, purpose string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", purpose)
	}
	return store, closeStore, nil
}

// ExportOptions hold parameters for exporting historical metrics.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	Panel     string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// SimulateOptions configure the telemetry simulator.
type SimulateOptions struct {
	Count    int
	Interval time.Duration
}
