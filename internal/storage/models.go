package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures an emitted power-factor alert for de-duplication/auditing.
type AlertRecord struct {
	ID          int64
	SampleTS    time.Time
	PowerFactor decimal.Decimal
	Threshold   decimal.Decimal
	Channels    []string
	CreatedAt   time.Time
}
