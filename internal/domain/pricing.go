package domain

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// PriceTable adjusts a showtime base price per seat category. Categories
// without an entry use the base price unchanged.
type PriceTable struct {
	Deltas map[SeatCategory]decimal.Decimal
	Min    decimal.Decimal
}

func NewPriceTable(deltas map[SeatCategory]decimal.Decimal, min decimal.Decimal) PriceTable {
	cp := make(map[SeatCategory]decimal.Decimal, len(deltas))
	for k, v := range deltas {
		cp[k] = v
	}
	return PriceTable{Deltas: cp, Min: min}
}

// UnitPrice returns base + delta floored at Min. A non-positive base or
// adjusted price is rejected.
func (p PriceTable) UnitPrice(base decimal.Decimal, c SeatCategory) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPricing, "base price %s is not positive", base)
	}
	raw := base.Add(p.Deltas[c])
	if !raw.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPricing, "%s price %s is not positive", c, raw)
	}
	if raw.LessThan(p.Min) {
		return p.Min, nil
	}
	return raw, nil
}

// ForLayout prices every category present in the layout.
func (p PriceTable) ForLayout(base decimal.Decimal, l SeatLayout) (map[SeatCategory]decimal.Decimal, error) {
	out := make(map[SeatCategory]decimal.Decimal)
	for _, c := range l.Categories() {
		price, err := p.UnitPrice(base, c)
		if err != nil {
			return nil, err
		}
		out[c] = price
	}
	return out, nil
}
