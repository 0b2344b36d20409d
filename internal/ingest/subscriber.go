// Package ingest receives three-phase telemetry over MQTT and hands decoded
// samples to the sample store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/measurement"
	"smart-meter-monitor/internal/observability"
)

const insertTimeout = 5 * time.Second

// SampleWriter persists decoded samples.
type SampleWriter interface {
	InsertSample(ctx context.Context, sample measurement.RawSample) error
}

// Subscriber keeps an MQTT subscription alive and writes every valid message
// to the store.
type Subscriber struct {
	cfg     config.MQTTConfig
	store   SampleWriter
	metrics *observability.Metrics
	logger  zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewSubscriber builds a subscriber. metrics may be nil.
func NewSubscriber(cfg config.MQTTConfig, store SampleWriter, metrics *observability.Metrics, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		logger:  logger.With().Str("component", "ingest").Logger(),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first subscription is acknowledged.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Run subscribes and reconnects after every lost session until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	clientID := ClientID(s.cfg, "meterwatch-ingest")
	for {
		err := s.session(ctx, clientID)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.cfg.ReconnectDelay).Msg("mqtt session ended")

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Subscriber) session(ctx context.Context, clientID string) error {
	sess, err := Dial(ctx, s.cfg, clientID, func(pr paho.PublishReceived) (bool, error) {
		s.HandleMessage(ctx, pr.Packet.Payload)
		return true, nil
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := sess.Client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: s.cfg.Topic,
			QoS:   byte(s.cfg.QoS),
		}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Topic, err)
	}

	s.logger.Info().
		Str("broker", Address(s.cfg)).
		Str("topic", s.cfg.Topic).
		Str("client_id", clientID).
		Msg("subscribed to telemetry")
	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-ctx.Done():
		return nil
	case err := <-sess.Lost:
		if err == nil {
			err = errors.New("connection lost")
		}
		return err
	}
}

// HandleMessage decodes one payload and stores it. Failures are logged and
// counted; they never stop the subscription.
func (s *Subscriber) HandleMessage(ctx context.Context, payload []byte) {
	sample, err := DecodeSample(payload)
	if err != nil {
		s.metrics.IngestMessage(observability.IngestInvalid)
		s.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping telemetry message")
		return
	}

	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
	defer cancel()
	if err := s.store.InsertSample(insertCtx, sample); err != nil {
		s.metrics.IngestMessage(observability.IngestFailed)
		s.logger.Error().Err(err).Time("ts", sample.Timestamp).Msg("store sample")
		return
	}
	s.metrics.IngestMessage(observability.IngestStored)
	s.logger.Debug().Time("ts", sample.Timestamp).Msg("sample stored")
}
