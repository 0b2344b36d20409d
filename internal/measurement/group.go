package measurement

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyGroup is returned when a group would contain no samples.
var ErrEmptyGroup = errors.New("measurement: empty group")

// InconsistentTimestampError reports a sample whose timestamp differs from the
// first sample of the candidate group.
type InconsistentTimestampError struct {
	Index    int
	Expected time.Time
	Actual   time.Time
}

func (e *InconsistentTimestampError) Error() string {
	return fmt.Sprintf("measurement: sample %d has timestamp %s, group timestamp is %s",
		e.Index, e.Actual.Format(time.RFC3339Nano), e.Expected.Format(time.RFC3339Nano))
}

// Group is a non-empty, arrival-ordered set of samples sharing one timestamp.
// The zero value is not valid; use NewGroup.
type Group struct {
	timestamp time.Time
	samples   []RawSample
}

// NewGroup validates that samples is non-empty and that every sample carries the
// timestamp of the first one. The input slice is copied.
func NewGroup(samples []RawSample) (Group, error) {
	if len(samples) == 0 {
		return Group{}, ErrEmptyGroup
	}

	ts := samples[0].Timestamp
	for i := 1; i < len(samples); i++ {
		if !samples[i].Timestamp.Equal(ts) {
			return Group{}, &InconsistentTimestampError{Index: i, Expected: ts, Actual: samples[i].Timestamp}
		}
	}

	cp := make([]RawSample, len(samples))
	copy(cp, samples)
	return Group{timestamp: ts, samples: cp}, nil
}

// Timestamp is the capture instant shared by all samples.
func (g Group) Timestamp() time.Time { return g.timestamp }

// Len is the number of samples in the group.
func (g Group) Len() int { return len(g.samples) }

// Samples returns a copy of the samples in arrival order.
func (g Group) Samples() []RawSample {
	out := make([]RawSample, len(g.samples))
	copy(out, g.samples)
	return out
}

// VoltageSeries returns phase k's voltage readings (k is zero based).
func (g Group) VoltageSeries(k int) []float64 {
	out := make([]float64, len(g.samples))
	for i, s := range g.samples {
		out[i] = s.Voltage[k]
	}
	return out
}

// CurrentSeries returns phase k's current readings (k is zero based).
func (g Group) CurrentSeries(k int) []float64 {
	out := make([]float64, len(g.samples))
	for i, s := range g.samples {
		out[i] = s.Current[k]
	}
	return out
}
