package alerting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"smart-meter-monitor/internal/power"
)

// Policy decides whether a computed record warrants a low power-factor alert.
// At most one alert fires per cooldown, measured on record timestamps.
type Policy struct {
	minPF    decimal.Decimal
	cooldown time.Duration
	channels []string

	mu   sync.Mutex
	last time.Time
}

// NewPolicy builds a policy alerting when |pf| drops below minPowerFactor.
func NewPolicy(minPowerFactor float64, cooldown time.Duration, channels []string) *Policy {
	return &Policy{
		minPF:    decimal.NewFromFloat(minPowerFactor),
		cooldown: cooldown,
		channels: channels,
	}
}

// Evaluate returns the notification for m and true when an alert is due.
// Records with non-finite powers never alert.
func (p *Policy) Evaluate(m power.Metrics) (Notification, bool) {
	if !m.Finite() {
		return Notification{}, false
	}
	pf := decimal.NewFromFloat(m.PowerFactor)
	if !pf.Abs().LessThan(p.minPF) {
		return Notification{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.last.IsZero() && m.Timestamp.Sub(p.last) < p.cooldown {
		return Notification{}, false
	}
	p.last = m.Timestamp

	return Notification{
		SampleTS:      m.Timestamp,
		PowerFactor:   pf,
		Threshold:     p.minPF,
		ActivePower:   decimal.NewFromFloat(m.ActivePower),
		ApparentPower: decimal.NewFromFloat(m.ApparentPower),
		Channels:      p.channels,
	}, true
}
