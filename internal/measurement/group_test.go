package measurement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleAt(ts time.Time, v float64) RawSample {
	return NewRawSample(ts, [Phases]float64{v, v + 1, v + 2}, [Phases]float64{1, 2, 3})
}

func TestNewGroupPreservesOrderAndCount(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	in := []RawSample{sampleAt(ts, 230), sampleAt(ts, 229), sampleAt(ts, 231)}

	g, err := NewGroup(in)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	require.True(t, g.Timestamp().Equal(ts))
	require.Equal(t, in, g.Samples())
	require.Equal(t, []float64{230, 229, 231}, g.VoltageSeries(0))
	require.Equal(t, []float64{2, 2, 2}, g.CurrentSeries(1))
}

func TestNewGroupSingleSample(t *testing.T) {
	ts := time.Unix(10, 0)
	g, err := NewGroup([]RawSample{sampleAt(ts, 1)})
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
}

func TestNewGroupEmpty(t *testing.T) {
	_, err := NewGroup(nil)
	require.ErrorIs(t, err, ErrEmptyGroup)
}

func TestNewGroupMixedTimestamps(t *testing.T) {
	ts := time.Unix(100, 0)
	in := []RawSample{sampleAt(ts, 1), sampleAt(ts, 2), sampleAt(ts.Add(time.Second), 3)}

	_, err := NewGroup(in)
	var tsErr *InconsistentTimestampError
	require.True(t, errors.As(err, &tsErr))
	require.Equal(t, 2, tsErr.Index)
	require.True(t, tsErr.Expected.Equal(ts))
	require.Contains(t, tsErr.Error(), "sample 2")
}

func TestNewGroupCopiesInput(t *testing.T) {
	ts := time.Unix(5, 0)
	in := []RawSample{sampleAt(ts, 1)}
	g, err := NewGroup(in)
	require.NoError(t, err)

	in[0].Voltage[0] = 999
	require.Equal(t, 1.0, g.Samples()[0].Voltage[0])
}

func TestTimeFromSeconds(t *testing.T) {
	got := TimeFromSeconds(1_700_000_000.25)
	require.Equal(t, int64(1_700_000_000), got.Unix())
	require.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))
	require.Equal(t, time.UTC, got.Location())

	s := NewRawSample(got, [Phases]float64{}, [Phases]float64{})
	require.InDelta(t, 1_700_000_000.25, s.Seconds(), 1e-6)
}
