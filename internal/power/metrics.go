// Package power derives active, reactive and apparent power and power factor
// from a measurement group.
package power

import (
	"errors"
	"math"
	"time"

	"smart-meter-monitor/internal/measurement"
)

var (
	// ErrUndefinedPowerFactor is returned when apparent power is exactly zero.
	ErrUndefinedPowerFactor = errors.New("power: power factor undefined for zero apparent power")
	// ErrNonFiniteMetrics is returned when a reading overflows float64 or
	// yields NaN anywhere in the derived powers.
	ErrNonFiniteMetrics = errors.New("power: non-finite derived power")
)

// Metrics is the derived record for one measurement group.
type Metrics struct {
	Timestamp     time.Time `json:"timestamp"`
	Voltage1      float64   `json:"voltage_1"`
	Voltage2      float64   `json:"voltage_2"`
	Voltage3      float64   `json:"voltage_3"`
	Current1      float64   `json:"current_1"`
	Current2      float64   `json:"current_2"`
	Current3      float64   `json:"current_3"`
	ActivePower   float64   `json:"active_power"`
	ReactivePower float64   `json:"reactive_power"`
	ApparentPower float64   `json:"apparent_power"`
	PowerFactor   float64   `json:"power_factor"`
}

// Voltages returns the per-phase mean voltages.
func (m Metrics) Voltages() [measurement.Phases]float64 {
	return [measurement.Phases]float64{m.Voltage1, m.Voltage2, m.Voltage3}
}

// Currents returns the per-phase mean currents.
func (m Metrics) Currents() [measurement.Phases]float64 {
	return [measurement.Phases]float64{m.Current1, m.Current2, m.Current3}
}

// Calculate turns a group into Metrics. It holds no state and may be called
// concurrently on independent groups.
//
// Per phase, active power is the dot product of the voltage and current
// series and apparent power is rms(V)*rms(I). Display voltages and currents
// are arithmetic means.
func Calculate(g measurement.Group) (Metrics, error) {
	if g.Len() == 0 {
		return Metrics{}, measurement.ErrEmptyGroup
	}

	var (
		meanV, meanI [measurement.Phases]float64
		active       float64
		apparent     float64
	)
	for k := 0; k < measurement.Phases; k++ {
		v := g.VoltageSeries(k)
		i := g.CurrentSeries(k)

		meanV[k] = Mean(v)
		meanI[k] = Mean(i)
		active += Dot(v, i)
		apparent += RMS(v) * RMS(i)
	}

	if !finite(active, apparent) {
		return Metrics{}, ErrNonFiniteMetrics
	}

	m := Metrics{
		Timestamp:     g.Timestamp(),
		Voltage1:      meanV[0],
		Voltage2:      meanV[1],
		Voltage3:      meanV[2],
		Current1:      meanI[0],
		Current2:      meanI[1],
		Current3:      meanI[2],
		ActivePower:   active,
		ApparentPower: apparent,
		ReactivePower: ReactivePower(apparent, active),
	}

	pf, err := PowerFactor(active, apparent)
	if err != nil {
		return Metrics{}, err
	}
	if !finite(m.ReactivePower, pf) {
		return Metrics{}, ErrNonFiniteMetrics
	}
	m.PowerFactor = pf
	return m, nil
}

// Finite reports whether every derived power in m is a finite number.
func (m Metrics) Finite() bool {
	return finite(m.ActivePower, m.ReactivePower, m.ApparentPower, m.PowerFactor)
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// ReactivePower computes sqrt((S+P)(S-P)). When rounding pushes |P| above S the
// radicand turns negative; the magnitude is used and the result is negated so
// the near-unity case stays distinguishable.
func ReactivePower(apparent, active float64) float64 {
	radicand := (apparent + active) * (apparent - active)
	if radicand < 0 {
		return -math.Sqrt(-radicand)
	}
	return math.Sqrt(radicand)
}

// PowerFactor is active/apparent, or ErrUndefinedPowerFactor when apparent is zero.
func PowerFactor(active, apparent float64) (float64, error) {
	if apparent == 0 {
		return 0, ErrUndefinedPowerFactor
	}
	return active / apparent, nil
}

// Mean is the arithmetic mean of xs, zero for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// RMS is sqrt(mean(x^2)), zero for an empty slice.
func RMS(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x * x
	}
	return math.Sqrt(s / float64(len(xs)))
}

// Dot is the scalar product of two equal-length series.
func Dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
