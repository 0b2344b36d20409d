package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-meter-monitor/internal/measurement"
	"smart-meter-monitor/internal/power"
)

func sampleAt(ts time.Time, v float64) measurement.RawSample {
	return measurement.NewRawSample(ts, [3]float64{v, v, v}, [3]float64{1, 1, 1})
}

func TestMemoryStoreFetchLatestGroup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	group, err := store.FetchLatestGroup(ctx)
	require.NoError(t, err)
	assert.Empty(t, group)

	t1 := time.Unix(1_700_000_000, 0).UTC()
	t2 := t1.Add(500 * time.Millisecond)

	require.NoError(t, store.InsertSample(ctx, sampleAt(t1, 1)))
	require.NoError(t, store.InsertSample(ctx, sampleAt(t2, 2)))
	require.NoError(t, store.InsertSample(ctx, sampleAt(t1, 3)))
	require.NoError(t, store.InsertSample(ctx, sampleAt(t2, 4)))

	group, err = store.FetchLatestGroup(ctx)
	require.NoError(t, err)
	require.Len(t, group, 2)
	assert.True(t, group[0].Timestamp.Equal(t2))
	assert.Equal(t, 2.0, group[0].Voltage[0])
	assert.Equal(t, 4.0, group[1].Voltage[0])

	older, err := store.FetchGroup(ctx, t1)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, 1.0, older[0].Voltage[0])
	assert.Equal(t, 3.0, older[1].Voltage[0])
}

func TestMemoryStoreRetentionEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	base := time.Unix(1_700_000_000, 0).UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertSample(ctx, sampleAt(base.Add(time.Duration(i)*time.Second), float64(i))))
	}

	stamps, err := store.ListSampleTimestamps(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	assert.True(t, stamps[0].Equal(base.Add(2*time.Second)))
}

func TestMemoryStoreListSampleTimestampsDistinctSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	base := time.Unix(1_700_000_000, 0).UTC()

	for _, offset := range []int{3, 1, 1, 2, 3, 9} {
		require.NoError(t, store.InsertSample(ctx, sampleAt(base.Add(time.Duration(offset)*time.Second), 1)))
	}

	stamps, err := store.ListSampleTimestamps(ctx, base, base.Add(9*time.Second))
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	for i, want := range []int{1, 2, 3} {
		assert.True(t, stamps[i].Equal(base.Add(time.Duration(want)*time.Second)), "index %d", i)
	}
}

func TestMemoryStoreMetricsUpsertAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	base := time.Unix(1_700_000_000, 0).UTC()

	for _, offset := range []int{2, 0, 1} {
		require.NoError(t, store.UpsertMetrics(ctx, power.Metrics{Timestamp: base.Add(time.Duration(offset) * time.Second), ActivePower: float64(offset)}))
	}
	require.NoError(t, store.UpsertMetrics(ctx, power.Metrics{Timestamp: base.Add(time.Second), ActivePower: 42}))

	count, err := store.CountMetrics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	between, err := store.ListMetricsBetween(ctx, base, base.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, 0.0, between[0].ActivePower)
	assert.Equal(t, 42.0, between[1].ActivePower)

	recent, err := store.ListRecentMetrics(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2.0, recent[0].ActivePower)
	assert.Equal(t, 42.0, recent[1].ActivePower)
}

func TestMemoryStoreAlerts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	ts := time.Unix(1_700_000_000, 0).UTC()

	first, err := store.InsertAlert(ctx, AlertRecord{
		SampleTS:    ts,
		PowerFactor: decimal.RequireFromString("0.71"),
		Threshold:   decimal.RequireFromString("0.85"),
		Channels:    []string{"telegram"},
		CreatedAt:   ts,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.ID)

	again, err := store.InsertAlert(ctx, AlertRecord{
		SampleTS:    ts,
		PowerFactor: decimal.RequireFromString("0.70"),
		Threshold:   decimal.RequireFromString("0.85"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	alerts, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].PowerFactor.Equal(decimal.RequireFromString("0.70")))

	require.NoError(t, store.DeleteAlertsBefore(ctx, ts.Add(time.Second)))
	alerts, err = store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestStoreWithoutPool(t *testing.T) {
	var store *Store
	_, err := store.FetchLatestGroup(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, NewStore(nil).UpsertMetrics(context.Background(), power.Metrics{}), ErrNotConfigured)
}
