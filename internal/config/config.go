package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"smart-meter-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Energy     EnergyConfig     `mapstructure:"energy"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Influx     InfluxConfig     `mapstructure:"influx"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Export     ExportConfig     `mapstructure:"export"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MemoryRetention int           `mapstructure:"memory_retention"`
}

// MQTTConfig covers the telemetry broker connection.
type MQTTConfig struct {
	Enabled        bool                 `mapstructure:"enabled"`
	Host           string               `mapstructure:"host"`
	Port           int                  `mapstructure:"port"`
	Topic          string               `mapstructure:"topic"`
	ClientID       string               `mapstructure:"client_id"`
	Username       string               `mapstructure:"username"`
	Password       string               `mapstructure:"password"`
	QoS            int                  `mapstructure:"qos"`
	KeepAlive      time.Duration        `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration        `mapstructure:"connect_timeout"`
	ReconnectDelay time.Duration        `mapstructure:"reconnect_delay"`
	EmbeddedBroker EmbeddedBrokerConfig `mapstructure:"embedded_broker"`
}

// EmbeddedBrokerConfig toggles the in-process broker used for local runs.
type EmbeddedBrokerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// AggregatorConfig governs the polling cadence and rolling window.
type AggregatorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToTick     bool          `mapstructure:"align_to_tick"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	WindowCapacity  int           `mapstructure:"window_capacity"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	PersistMetrics  bool          `mapstructure:"persist_metrics"`
}

// EnergyConfig prices accumulated active energy.
type EnergyConfig struct {
	PricePerKWh float64       `mapstructure:"price_per_kwh"`
	MaxGap      time.Duration `mapstructure:"max_gap"`
}

// HTTPConfig configures the consumer API.
type HTTPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	StreamBuffer   int           `mapstructure:"stream_buffer"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// AlertingConfig defines power-factor alert thresholds and routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	MinPowerFactor float64        `mapstructure:"min_power_factor"`
	Cooldown       time.Duration  `mapstructure:"cooldown"`
	Channels       []string       `mapstructure:"channels"`
	Retention      time.Duration  `mapstructure:"retention"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// InfluxConfig configures the InfluxDB metrics sink.
type InfluxConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// KafkaConfig configures the Kafka metrics sink.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// SimulatorConfig shapes the synthetic three-phase signal.
type SimulatorConfig struct {
	Frequency        float64       `mapstructure:"frequency"`
	SamplingRate     float64       `mapstructure:"sampling_rate"`
	VoltageAmplitude float64       `mapstructure:"voltage_amplitude"`
	CurrentAmplitude float64       `mapstructure:"current_amplitude"`
	PhaseShift       float64       `mapstructure:"phase_shift"`
	SamplesPerGroup  int           `mapstructure:"samples_per_group"`
	Interval         time.Duration `mapstructure:"interval"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "meterwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.memory_retention", 10000)

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic", "smart_meter")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", "30s")
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.reconnect_delay", "5s")
	v.SetDefault("mqtt.embedded_broker.enabled", false)
	v.SetDefault("mqtt.embedded_broker.address", ":1883")

	v.SetDefault("aggregator.interval", "500ms")
	v.SetDefault("aggregator.align_to_tick", false)
	v.SetDefault("aggregator.startup_delay", "0s")
	v.SetDefault("aggregator.window_capacity", 500)
	v.SetDefault("aggregator.advisory_lock_key", int64(0))
	v.SetDefault("aggregator.persist_metrics", true)

	v.SetDefault("energy.price_per_kwh", 0.2525)
	v.SetDefault("energy.max_gap", "10s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.stream_buffer", 16)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.shutdown_grace", "5s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_power_factor", 0.85)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.retention", "720h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.measurement", "power_metrics")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "power-metrics")

	v.SetDefault("export.max_data_points", 3000)

	v.SetDefault("simulator.frequency", 50.0)
	v.SetDefault("simulator.sampling_rate", 100.0)
	v.SetDefault("simulator.voltage_amplitude", 565.69)
	v.SetDefault("simulator.current_amplitude", 70.0)
	v.SetDefault("simulator.phase_shift", 0.0)
	v.SetDefault("simulator.samples_per_group", 1)
	v.SetDefault("simulator.interval", "1s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Aggregator.Interval <= 0 {
		return fmt.Errorf("aggregator.interval must be greater than zero")
	}
	if c.Aggregator.WindowCapacity <= 0 {
		return fmt.Errorf("aggregator.window_capacity must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Energy.PricePerKWh < 0 {
		return fmt.Errorf("energy.price_per_kwh cannot be negative")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port must be a valid TCP port")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	if c.Alerting.MinPowerFactor < 0 || c.Alerting.MinPowerFactor > 1 {
		return fmt.Errorf("alerting.min_power_factor must be within [0, 1]")
	}
	if c.Alerting.Retention < 0 {
		return fmt.Errorf("alerting.retention cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx.url, influx.org and influx.bucket are required when influx is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Simulator.SamplesPerGroup <= 0 {
		return fmt.Errorf("simulator.samples_per_group must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
