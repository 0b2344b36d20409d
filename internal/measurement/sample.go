package measurement

import (
	"math"
	"time"
)

// Phases is the number of electrical phases carried by every sample.
const Phases = 3

// RawSample is one capture instant's three-phase voltage and current reading.
type RawSample struct {
	Timestamp time.Time
	Voltage   [Phases]float64
	Current   [Phases]float64
}

// NewRawSample builds a sample from per-phase voltages and currents.
func NewRawSample(ts time.Time, voltage, current [Phases]float64) RawSample {
	return RawSample{Timestamp: ts.UTC(), Voltage: voltage, Current: current}
}

// TimeFromSeconds converts epoch seconds (integer or fractional) to a UTC time
// truncated to microseconds, the resolution the sample store keeps.
func TimeFromSeconds(sec float64) time.Time {
	return time.UnixMicro(int64(math.Round(sec * 1e6))).UTC()
}

// Seconds returns the sample timestamp as fractional epoch seconds.
func (s RawSample) Seconds() float64 {
	return float64(s.Timestamp.UnixMicro()) / 1e6
}
