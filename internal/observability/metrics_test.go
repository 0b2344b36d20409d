package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := New()

	m.ObserveCycle(CycleComputed, 2*time.Millisecond)
	m.ObserveCycle(CycleComputed, time.Millisecond)
	m.ObserveCycle(CycleIdle, 0)
	m.SkippedBatch("inconsistent_timestamp")
	m.SetWindowSize(7)
	m.SetPower(100, 20, 102, 0.98)
	m.IngestMessage(IngestStored)
	m.IngestMessage(IngestInvalid)
	m.SinkFailed("kafka")
	m.AlertSent()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues(CycleComputed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues(CycleIdle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skips.WithLabelValues("inconsistent_timestamp")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.windowSize))
	assert.Equal(t, 0.98, testutil.ToFloat64(m.powerFactor))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestMessages.WithLabelValues(IngestInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkFailures.WithLabelValues("kafka")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsSent))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCycle(CycleFailed, time.Second)
	m.SkippedBatch("x")
	m.SetWindowSize(1)
	m.SetPower(1, 1, 1, 1)
	m.IngestMessage(IngestFailed)
	m.SinkFailed("influx")
	m.AlertSent()
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ObserveCycle(CycleComputed, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `meterwatch_aggregator_cycles_total{result="computed"} 1`))
}
