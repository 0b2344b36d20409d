package power

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const joulesPerKWh = 3_600_000.0

// EnergyTotals is a point-in-time view of an EnergyMeter.
type EnergyTotals struct {
	Since       time.Time       `json:"since"`
	Last        time.Time       `json:"last"`
	Points      int             `json:"points"`
	EnergyKWh   float64         `json:"energy_kwh"`
	Cost        decimal.Decimal `json:"cost"`
	PricePerKWh decimal.Decimal `json:"price_per_kwh"`
}

// EnergyMeter integrates active power over the gap between consecutive
// metric timestamps and prices the result. Safe for concurrent use.
type EnergyMeter struct {
	mu     sync.Mutex
	price  decimal.Decimal
	maxGap time.Duration

	since  time.Time
	last   time.Time
	points int
	kwh    float64
	cost   decimal.Decimal
}

// NewEnergyMeter builds a meter. A non-positive maxGap disables gap clamping.
func NewEnergyMeter(pricePerKWh decimal.Decimal, maxGap time.Duration) *EnergyMeter {
	return &EnergyMeter{price: pricePerKWh, maxGap: maxGap, cost: decimal.Zero}
}

// Add accumulates m. Records that are not newer than the previous one, or that
// carry a non-finite active power, are ignored.
func (e *EnergyMeter) Add(m Metrics) {
	if math.IsNaN(m.ActivePower) || math.IsInf(m.ActivePower, 0) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.points == 0 {
		e.since = m.Timestamp
		e.last = m.Timestamp
		e.points = 1
		return
	}

	dt := m.Timestamp.Sub(e.last)
	if dt <= 0 {
		return
	}
	if e.maxGap > 0 && dt > e.maxGap {
		dt = e.maxGap
	}

	kwh := m.ActivePower * dt.Seconds() / joulesPerKWh
	e.kwh += kwh
	e.cost = e.cost.Add(decimal.NewFromFloat(kwh).Mul(e.price))
	e.last = m.Timestamp
	e.points++
}

// Totals returns the accumulated energy and cost.
func (e *EnergyMeter) Totals() EnergyTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EnergyTotals{
		Since:       e.since,
		Last:        e.last,
		Points:      e.points,
		EnergyKWh:   e.kwh,
		Cost:        e.cost,
		PricePerKWh: e.price,
	}
}
