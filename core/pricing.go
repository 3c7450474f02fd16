package core

import (
	"github.com/shopspring/decimal"
)

const pricePrecision int32 = 4 // 4 decimal places for per-unit/per-kg quotes

// HammerQuote is a display-only breakdown of a winning amount. It is never
// part of commitment hashing or winner selection; integer amounts remain the
// engine's source of truth.
type HammerQuote struct {
	Total   decimal.Decimal `json:"total"`
	PerUnit decimal.Decimal `json:"per_unit"`
	PerKg   decimal.Decimal `json:"per_kg"`
}

// QuoteFor computes the hammer price breakdown for a winning amount against
// the lot's unit count and initial weight. Uses decimal arithmetic to avoid
// floating-point error in the divisions; a zero divisor yields a zero quote
// for that component rather than an error.
func QuoteFor(amount uint64, lot *Lot) HammerQuote {
	total := decimal.NewFromUint64(amount)
	q := HammerQuote{Total: total}
	if lot.UnitCount > 0 {
		q.PerUnit = total.DivRound(decimal.NewFromUint64(lot.UnitCount), pricePrecision)
	}
	if lot.InitialWeight > 0 {
		q.PerKg = total.DivRound(decimal.NewFromUint64(lot.InitialWeight), pricePrecision)
	}
	return q
}
