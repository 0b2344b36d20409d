package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"smart-meter-monitor/internal/measurement"
	"smart-meter-monitor/internal/power"
)

// MemoryStore keeps samples, metrics and alerts in process memory. It backs
// runs without a database and the package tests. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	retention int
	samples   []measurement.RawSample
	metrics   []power.Metrics
	alerts    []AlertRecord
	nextAlert int64
}

var (
	_ SampleStore  = (*MemoryStore)(nil)
	_ MetricsStore = (*MemoryStore)(nil)
	_ AlertStore   = (*MemoryStore)(nil)
	_ SampleStore  = (*Store)(nil)
	_ MetricsStore = (*Store)(nil)
	_ AlertStore   = (*Store)(nil)
)

// NewMemoryStore builds a store that keeps at most retention raw samples and
// metric rows. Zero or negative retention keeps everything.
func NewMemoryStore(retention int) *MemoryStore {
	return &MemoryStore{retention: retention}
}

// InsertSample appends one raw reading, evicting the oldest insert past retention.
func (m *MemoryStore) InsertSample(_ context.Context, sample measurement.RawSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	if m.retention > 0 && len(m.samples) > m.retention {
		m.samples = append([]measurement.RawSample(nil), m.samples[len(m.samples)-m.retention:]...)
	}
	return nil
}

// FetchLatestGroup returns every sample sharing the newest timestamp, in insertion order.
func (m *MemoryStore) FetchLatestGroup(_ context.Context) ([]measurement.RawSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.samples) == 0 {
		return []measurement.RawSample{}, nil
	}
	latest := m.samples[0].Timestamp
	for _, s := range m.samples[1:] {
		if s.Timestamp.After(latest) {
			latest = s.Timestamp
		}
	}
	return m.groupLocked(latest), nil
}

// FetchGroup returns the samples stored for one timestamp.
func (m *MemoryStore) FetchGroup(_ context.Context, ts time.Time) ([]measurement.RawSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupLocked(ts), nil
}

func (m *MemoryStore) groupLocked(ts time.Time) []measurement.RawSample {
	out := make([]measurement.RawSample, 0)
	for _, s := range m.samples {
		if s.Timestamp.Equal(ts) {
			out = append(out, s)
		}
	}
	return out
}

// ListSampleTimestamps lists the distinct sample timestamps within [from, to).
func (m *MemoryStore) ListSampleTimestamps(_ context.Context, from, to time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]struct{})
	stamps := make([]time.Time, 0)
	for _, s := range m.samples {
		if s.Timestamp.Before(from) || !s.Timestamp.Before(to) {
			continue
		}
		key := s.Timestamp.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		stamps = append(stamps, s.Timestamp)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps, nil
}

// UpsertMetrics stores metrics keyed by timestamp, replacing an existing row.
func (m *MemoryStore) UpsertMetrics(_ context.Context, row power.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := sort.Search(len(m.metrics), func(i int) bool {
		return !m.metrics[i].Timestamp.Before(row.Timestamp)
	})
	if idx < len(m.metrics) && m.metrics[idx].Timestamp.Equal(row.Timestamp) {
		m.metrics[idx] = row
		return nil
	}
	m.metrics = append(m.metrics, power.Metrics{})
	copy(m.metrics[idx+1:], m.metrics[idx:])
	m.metrics[idx] = row

	if m.retention > 0 && len(m.metrics) > m.retention {
		m.metrics = append([]power.Metrics(nil), m.metrics[len(m.metrics)-m.retention:]...)
	}
	return nil
}

// ListMetricsBetween lists metrics within [from, to), oldest first.
func (m *MemoryStore) ListMetricsBetween(_ context.Context, from, to time.Time) ([]power.Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]power.Metrics, 0)
	for _, row := range m.metrics {
		if row.Timestamp.Before(from) || !row.Timestamp.Before(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// ListRecentMetrics lists up to limit metrics, newest first.
func (m *MemoryStore) ListRecentMetrics(_ context.Context, limit int) ([]power.Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.metrics) {
		limit = len(m.metrics)
	}
	out := make([]power.Metrics, 0, limit)
	for i := len(m.metrics) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.metrics[i])
	}
	return out, nil
}

// CountMetrics counts stored metric rows.
func (m *MemoryStore) CountMetrics(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.metrics)), nil
}

// InsertAlert records an alert, replacing one with the same sample timestamp.
func (m *MemoryStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].SampleTS.Equal(alert.SampleTS) {
			alert.ID = m.alerts[i].ID
			alert.CreatedAt = m.alerts[i].CreatedAt
			m.alerts[i] = alert
			return alert, nil
		}
	}
	m.nextAlert++
	alert.ID = m.nextAlert
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// ListRecentAlerts lists up to limit alerts, newest first.
func (m *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AlertRecord, len(m.alerts))
	copy(out, m.alerts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// DeleteAlertsBefore drops alerts whose sample timestamp precedes olderThan.
func (m *MemoryStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if !a.SampleTS.Before(olderThan) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
	return nil
}
