package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/ingest"
	"smart-meter-monitor/internal/measurement"
)

// Publisher pushes generated groups to the telemetry topic.
type Publisher struct {
	mqtt   config.MQTTConfig
	gen    *Generator
	logger zerolog.Logger
	now    func() time.Time
}

// NewPublisher builds a publisher for the configured broker.
func NewPublisher(mqttCfg config.MQTTConfig, gen *Generator, logger zerolog.Logger) *Publisher {
	return &Publisher{
		mqtt:   mqttCfg,
		gen:    gen,
		logger: logger.With().Str("component", "simulator").Logger(),
		now:    time.Now,
	}
}

// Run publishes one group every interval. count limits the number of groups;
// zero or negative runs until ctx is cancelled. It returns the groups sent.
func (p *Publisher) Run(ctx context.Context, count int, interval time.Duration) (int, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("simulator interval must be greater than zero")
	}

	sess, err := ingest.Dial(ctx, p.mqtt, ingest.ClientID(config.MQTTConfig{}, "meterwatch-sim"), nil)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	p.logger.Info().
		Str("broker", ingest.Address(p.mqtt)).
		Str("topic", p.mqtt.Topic).
		Int("count", count).
		Dur("interval", interval).
		Msg("publishing synthetic telemetry")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		if err := p.publishGroup(ctx, sess.Client, p.gen.Group(p.now())); err != nil {
			return sent, err
		}
		sent++
		if count > 0 && sent >= count {
			return sent, nil
		}

		select {
		case <-ctx.Done():
			return sent, nil
		case err := <-sess.Lost:
			return sent, fmt.Errorf("broker connection lost: %w", err)
		case <-ticker.C:
		}
	}
}

func (p *Publisher) publishGroup(ctx context.Context, client *paho.Client, group []measurement.RawSample) error {
	for _, s := range group {
		payload, err := ingest.EncodeSample(s)
		if err != nil {
			return fmt.Errorf("encode sample: %w", err)
		}
		if _, err := client.Publish(ctx, &paho.Publish{
			Topic:   p.mqtt.Topic,
			QoS:     byte(p.mqtt.QoS),
			Payload: payload,
		}); err != nil {
			return fmt.Errorf("publish sample: %w", err)
		}
	}
	p.logger.Debug().Int("samples", len(group)).Msg("group published")
	return nil
}
