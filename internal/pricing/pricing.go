// Package pricing derives a vehicle's cost, listing price and market
// value from its cost inputs. All derivation goes through Compute so
// create-time and edit-time figures can never drift apart.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumeric signals a cost input that is not a non-negative decimal.
var ErrInvalidNumeric = errors.New("invalid numeric value")

var (
	hundred          = decimal.NewFromInt(100)
	one              = decimal.NewFromInt(1)
	marketValueRatio = decimal.NewFromFloat(1.1)
)

// Quote holds the derived figures for one record.
type Quote struct {
	Cost        decimal.Decimal
	Price       decimal.Decimal
	MarketValue decimal.Decimal
}

// Compute derives cost, price and market value. override, when non-nil,
// is used verbatim as the market value; otherwise market value is
// price * 1.1. Any negative component is rejected with ErrInvalidNumeric.
// Pure: no I/O, safe for concurrent use.
func Compute(vehicleCost, partsCost, labourCost, markupPct decimal.Decimal, override *decimal.Decimal) (Quote, error) {
	for _, d := range []decimal.Decimal{vehicleCost, partsCost, labourCost, markupPct} {
		if d.IsNegative() {
			return Quote{}, ErrInvalidNumeric
		}
	}

	cost := vehicleCost.Add(partsCost).Add(labourCost)
	price := cost.Mul(one.Add(markupPct.Div(hundred)))

	q := Quote{Cost: cost, Price: price}
	if override != nil {
		if override.IsNegative() {
			return Quote{}, ErrInvalidNumeric
		}
		q.MarketValue = *override
		return q, nil
	}
	q.MarketValue = price.Mul(marketValueRatio)
	return q, nil
}

// Coerce parses a textual cost input. Blank means zero (absent fields on
// the legacy flat file); anything else must parse as a non-negative
// decimal or the call fails with ErrInvalidNumeric.
func Coerce(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, ErrInvalidNumeric
	}
	return d, nil
}

// ParseOverride interprets an optional caller-supplied market value.
// nil or blank means no override. An unparsable value is NOT fatal: the
// caller falls back to the default formula and surfaces warn=true.
func ParseOverride(s *string) (override *decimal.Decimal, warn bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*s))
	if err != nil || d.IsNegative() {
		return nil, true
	}
	return &d, false
}

// ProfitOf computes profit and profit percentage for a sale. Percentage
// is defined as zero when cost is zero, and is rounded to 2 decimals.
func ProfitOf(soldPrice, cost decimal.Decimal) (profit, profitPct decimal.Decimal) {
	profit = soldPrice.Sub(cost)
	if cost.IsZero() {
		return profit, decimal.Zero
	}
	return profit, profit.Div(cost).Mul(hundred).Round(2)
}
