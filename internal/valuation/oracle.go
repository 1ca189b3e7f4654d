// Package valuation integrates the external market-value oracle.
// Lookups are optional enrichment: any non-success outcome means the
// caller prices with the default formula instead. Nothing in this
// package is ever fatal to a write.
package valuation

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Request carries the vehicle descriptors the oracle prices against.
type Request struct {
	VIN     string `json:"vin"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Year    int    `json:"year"`
	Mileage int    `json:"mileage"`
}

// Oracle supplies a market value estimate for a vehicle. Implementations
// must respect ctx deadlines; callers impose a bounded timeout and treat
// every error identically to "no estimate available".
type Oracle interface {
	Lookup(ctx context.Context, req Request) (decimal.Decimal, error)
}

// ErrUnavailable wraps every lookup failure — timeout, transport error,
// open circuit, malformed response.
var ErrUnavailable = errors.New("valuation unavailable")
