// Package simulator produces synthetic three-phase telemetry for local runs.
package simulator

import (
	"math"
	"sync"
	"time"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/measurement"
)

var phaseOffsets = [measurement.Phases]float64{0, 2 * math.Pi / 3, 4 * math.Pi / 3}

// Generator samples balanced three-phase sinusoids. The signal clock advances
// by 1/sampling_rate per sample regardless of wall time.
type Generator struct {
	cfg config.SimulatorConfig

	mu   sync.Mutex
	step int64
}

// NewGenerator builds a generator for cfg.
func NewGenerator(cfg config.SimulatorConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Next returns the sample at the generator's current signal time, stamped ts.
func (g *Generator) Next(ts time.Time) measurement.RawSample {
	g.mu.Lock()
	step := g.step
	g.step++
	g.mu.Unlock()

	t := float64(step) / g.cfg.SamplingRate
	omega := 2 * math.Pi * g.cfg.Frequency * t

	var v, i [measurement.Phases]float64
	for k := 0; k < measurement.Phases; k++ {
		v[k] = g.cfg.VoltageAmplitude * math.Sin(omega+phaseOffsets[k])
		i[k] = g.cfg.CurrentAmplitude * math.Sin(omega+phaseOffsets[k]-g.cfg.PhaseShift)
	}
	return measurement.NewRawSample(ts, v, i)
}

// Group returns samples_per_group consecutive samples sharing ts.
func (g *Generator) Group(ts time.Time) []measurement.RawSample {
	n := g.cfg.SamplesPerGroup
	if n <= 0 {
		n = 1
	}
	out := make([]measurement.RawSample, n)
	for j := range out {
		out[j] = g.Next(ts)
	}
	return out
}
