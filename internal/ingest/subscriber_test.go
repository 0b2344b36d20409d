package ingest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/measurement"
	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/storage"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func testMQTTConfig(t *testing.T, address string) config.MQTTConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(address)
	require.NoError(t, err)
	port, err := net.LookupPort("tcp", portStr)
	require.NoError(t, err)
	return config.MQTTConfig{
		Enabled:        true,
		Host:           host,
		Port:           port,
		Topic:          "smart_meter",
		QoS:            1,
		KeepAlive:      10 * time.Second,
		ConnectTimeout: 2 * time.Second,
		ReconnectDelay: 50 * time.Millisecond,
	}
}

func TestSubscriberStoresPublishedSamples(t *testing.T) {
	address := freeAddress(t)
	broker, err := NewEmbeddedBroker(address, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Close() })

	cfg := testMQTTConfig(t, address)
	store := storage.NewMemoryStore(0)
	sub := NewSubscriber(cfg, store, observability.New(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-sub.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber never became ready")
	}

	pub, err := Dial(context.Background(), cfg, "test-publisher", nil)
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	ts := time.Unix(1_700_000_000, 0).UTC()
	for i, body := range [][]byte{
		mustEncode(t, measurement.NewRawSample(ts, [3]float64{1, 2, 3}, [3]float64{4, 5, 6})),
		[]byte(`{"garbage":true}`),
		mustEncode(t, measurement.NewRawSample(ts, [3]float64{7, 8, 9}, [3]float64{1, 1, 1})),
	} {
		_, err := pub.Client.Publish(context.Background(), &paho.Publish{
			Topic:   cfg.Topic,
			QoS:     1,
			Payload: body,
		})
		require.NoError(t, err, "publish %d", i)
	}

	require.Eventually(t, func() bool {
		group, err := store.FetchLatestGroup(context.Background())
		return err == nil && len(group) == 2
	}, 5*time.Second, 20*time.Millisecond)

	group, err := store.FetchLatestGroup(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1.0, group[0].Voltage[0])
	require.Equal(t, 7.0, group[1].Voltage[0])
}

func TestSubscriberStopsWhileBrokerUnavailable(t *testing.T) {
	cfg := testMQTTConfig(t, freeAddress(t))
	sub := NewSubscriber(cfg, storage.NewMemoryStore(0), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, sub.Run(ctx))
}

func TestHandleMessageSkipsInvalid(t *testing.T) {
	store := storage.NewMemoryStore(0)
	sub := NewSubscriber(config.MQTTConfig{}, store, nil, zerolog.Nop())

	sub.HandleMessage(context.Background(), []byte(`{"ts":1}`))
	sub.HandleMessage(context.Background(), []byte(`{"ts":1,"v1":1,"v2":1,"v3":1,"i1":1,"i2":1,"i3":1}`))

	group, err := store.FetchLatestGroup(context.Background())
	require.NoError(t, err)
	require.Len(t, group, 1)
}

func mustEncode(t *testing.T, s measurement.RawSample) []byte {
	t.Helper()
	data, err := EncodeSample(s)
	require.NoError(t, err)
	return data
}
