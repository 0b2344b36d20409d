package ingest

import (
	"fmt"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
)

// EmbeddedBroker is an in-process MQTT broker for local runs and tests.
// It accepts every client.
type EmbeddedBroker struct {
	server  *mochi.Server
	address string
	logger  zerolog.Logger
}

// NewEmbeddedBroker prepares a broker listening on address (host:port).
func NewEmbeddedBroker(address string, logger zerolog.Logger) (*EmbeddedBroker, error) {
	server := mochi.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "meterwatch-tcp",
		Address: address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("add listener %s: %w", address, err)
	}

	return &EmbeddedBroker{
		server:  server,
		address: address,
		logger:  logger.With().Str("component", "broker").Logger(),
	}, nil
}

// Start begins serving in the background.
func (b *EmbeddedBroker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("serve broker: %w", err)
	}
	b.logger.Info().Str("address", b.address).Msg("embedded mqtt broker listening")
	return nil
}

// Close stops the listeners and disconnects clients.
func (b *EmbeddedBroker) Close() error {
	b.logger.Info().Msg("embedded mqtt broker stopping")
	return b.server.Close()
}
