package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/power"
	"smart-meter-monitor/internal/version"
	"smart-meter-monitor/internal/window"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	win    *window.Rolling[power.Metrics]
	energy *power.EnergyMeter
	hub    *Hub
	server *Server
}

func newFixture(t *testing.T, points int) *fixture {
	t.Helper()
	win, err := window.New[power.Metrics](5)
	require.NoError(t, err)
	energy := power.NewEnergyMeter(decimal.RequireFromString("0.2525"), time.Minute)
	for i := 0; i < points; i++ {
		m := metricAt(i)
		win.Append(m)
		energy.Add(m)
	}
	hub := NewHub(4, zerolog.Nop())
	cfg := config.HTTPConfig{AllowedOrigins: []string{"https://dash.example"}, ShutdownGrace: time.Second}
	server := NewServer(cfg, Deps{
		Window:     win,
		Energy:     energy,
		Hub:        hub,
		Collectors: observability.New(),
		LastSeen:   func() time.Time { return base },
	}, zerolog.Nop())
	return &fixture{win: win, energy: energy, hub: hub, server: server}
}

func metricAt(i int) power.Metrics {
	return power.Metrics{
		Timestamp:     base.Add(time.Duration(i) * time.Second),
		Voltage1:      230 + float64(i),
		Current1:      5,
		ActivePower:   1000 + float64(i),
		ReactivePower: 100,
		ApparentPower: 1200,
		PowerFactor:   0.8 + float64(i)/100,
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSnapshotOldestFirst(t *testing.T) {
	f := newFixture(t, 7)

	rec := get(t, f.server.Handler(), "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []power.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 5)
	assert.True(t, got[0].Timestamp.Equal(base.Add(2*time.Second)))
	assert.True(t, got[4].Timestamp.Equal(base.Add(6*time.Second)))
	assert.Contains(t, rec.Body.String(), `"power_factor"`)
	assert.Contains(t, rec.Body.String(), `"voltage_1"`)
}

func TestSnapshotLimit(t *testing.T) {
	f := newFixture(t, 4)

	rec := get(t, f.server.Handler(), "/api/metrics?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []power.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[1].Timestamp.Equal(base.Add(3*time.Second)))

	assert.Equal(t, http.StatusBadRequest, get(t, f.server.Handler(), "/api/metrics?limit=zero").Code)
}

func TestEmptyWindow(t *testing.T) {
	f := newFixture(t, 0)

	rec := get(t, f.server.Handler(), "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	assert.Equal(t, http.StatusNoContent, get(t, f.server.Handler(), "/api/metrics/latest").Code)
	assert.Equal(t, http.StatusNoContent, get(t, f.server.Handler(), "/api/chart.png").Code)
}

func TestLatestAndEnergy(t *testing.T) {
	f := newFixture(t, 3)

	rec := get(t, f.server.Handler(), "/api/metrics/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest power.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 1002.0, latest.ActivePower)

	rec = get(t, f.server.Handler(), "/api/energy")
	require.Equal(t, http.StatusOK, rec.Code)
	var totals struct {
		Points      int    `json:"points"`
		PricePerKWh string `json:"price_per_kwh"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	assert.Equal(t, 3, totals.Points)
	assert.Equal(t, "0.2525", totals.PricePerKWh)
}

func TestChartAndHealth(t *testing.T) {
	f := newFixture(t, 4)

	rec := get(t, f.server.Handler(), "/api/chart.png?panel=voltage")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	assert.Equal(t, http.StatusBadRequest, get(t, f.server.Handler(), "/api/chart.png?panel=nope").Code)

	rec = get(t, f.server.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, version.String(), health.Version)
	assert.Equal(t, 4, health.WindowLen)
	assert.Equal(t, 5, health.WindowCap)
	require.NotNil(t, health.LastSeen)

	rec = get(t, f.server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meterwatch_window_entries")
}

func TestCORSAllowedOrigin(t *testing.T) {
	f := newFixture(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, 1)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStreamPushesLatestThenBroadcasts(t *testing.T) {
	f := newFixture(t, 2)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/metrics/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first power.Metrics
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.True(t, first.Timestamp.Equal(base.Add(time.Second)))

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	f.hub.Broadcast(metricAt(9))

	var pushed power.Metrics
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.True(t, pushed.Timestamp.Equal(base.Add(9*time.Second)))
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, 1)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/metrics/stream"
	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWriteJSONUnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, power.Metrics{Timestamp: base, PowerFactor: math.NaN()})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "encode response")
}
