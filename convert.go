package holdings

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Convert converts amount from one code to another by triangulating through
// the table's pivot currency.
//
// The pivot is whatever the table says it is: callers asking for a "base"
// currency get it as a target code, never as a different pivot. The table is
// only read.
func Convert(amount decimal.Decimal, from, to string, table *RateTable) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	if table == nil {
		return decimal.Zero, ErrNoRates
	}
	// Existence first: an absent code is a different failure than a code
	// present with an unusable rate.
	for _, code := range [2]string{from, to} {
		if !table.Has(code) {
			return decimal.Zero, fmt.Errorf("cannot convert %s to %s: %w: %s", from, to, ErrUnknownCurrency, code)
		}
	}

	switch table.pivot {
	case to:
		r, err := table.usable(from)
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot convert %s to %s: %w", from, to, err)
		}
		return amount.Mul(r), nil
	case from:
		r, err := table.usable(to)
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot convert %s to %s: %w", from, to, err)
		}
		return amount.Div(r), nil
	}

	rf, err := table.usable(from)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot convert %s to %s: %w", from, to, err)
	}
	rt, err := table.usable(to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot convert %s to %s: %w", from, to, err)
	}
	return amount.Mul(rf).Div(rt), nil
}

// ConvertMoney converts m into the currency to.
func (t *RateTable) ConvertMoney(m Money, to string) (Money, error) {
	v, err := Convert(m.value, m.cur, to, t)
	if err != nil {
		return Money{}, err
	}
	return M(v, to), nil
}

// rateBetween returns how many units of to one unit of from is worth.
func rateBetween(from, to string, table *RateTable) (decimal.Decimal, error) {
	return Convert(decimal.NewFromInt(1), from, to, table)
}
