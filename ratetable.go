package holdings

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPivot is the pivot currency used when none is configured. Rate
// providers of the tracker quote everything in Turkish lira.
const DefaultPivot = "TRY"

// RateEntry reads "1 unit of Code = Rate units of the pivot currency".
type RateEntry struct {
	Code string
	Name string
	Rate decimal.Decimal
}

// RateTable is a consistent snapshot of exchange rates, all expressed against
// the same pivot currency at the same instant.
//
// A RateTable is a value: it is never modified after NewRateTable returns.
// Refreshing rates means building a new table and swapping it in a
// RateHolder.
type RateTable struct {
	pivot   string
	asOf    time.Time
	entries map[string]RateEntry
}

// NewRateTable validates entries and builds a table.
//
// The pivot entry is added with a rate of 1 when missing, and must be exactly
// 1 when present. Codes must be valid and unique, and rates must not be
// negative. A zero rate is accepted: the provider listed the code without a
// quote, and converting through it fails with ErrInvalidRate.
func NewRateTable(pivot string, asOf time.Time, entries ...RateEntry) (*RateTable, error) {
	var errs []error
	if err := ValidateCurrency(pivot); err != nil {
		errs = append(errs, fmt.Errorf("pivot: %w", err))
	}
	t := &RateTable{
		pivot:   pivot,
		asOf:    asOf,
		entries: make(map[string]RateEntry, len(entries)+1),
	}
	for _, e := range entries {
		if err := ValidateCurrency(e.Code); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := t.entries[e.Code]; dup {
			errs = append(errs, fmt.Errorf("duplicate rate for %s", e.Code))
			continue
		}
		if e.Rate.IsNegative() {
			errs = append(errs, fmt.Errorf("negative rate for %s: %s", e.Code, e.Rate))
			continue
		}
		if e.Code == pivot && !e.Rate.Equal(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("pivot %s must have a rate of 1, got %s", pivot, e.Rate))
			continue
		}
		t.entries[e.Code] = e
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInconsistentRateTable, errors.Join(errs...))
	}
	if _, ok := t.entries[pivot]; !ok {
		t.entries[pivot] = RateEntry{Code: pivot, Rate: decimal.NewFromInt(1)}
	}
	return t, nil
}

// Quote is a rate as published by a provider: 1 unit of Code is worth Buy
// (or Sell) units of Reference.
type Quote struct {
	Code      string
	Name      string
	Reference string
	Buy       decimal.Decimal
	Sell      decimal.Decimal
}

// Mid returns the average of buy and sell when both are positive, otherwise
// whichever is positive, otherwise zero.
func (q Quote) Mid() decimal.Decimal {
	switch {
	case q.Buy.IsPositive() && q.Sell.IsPositive():
		return q.Buy.Add(q.Sell).Div(decimal.NewFromInt(2))
	case q.Buy.IsPositive():
		return q.Buy
	case q.Sell.IsPositive():
		return q.Sell
	default:
		return decimal.Zero
	}
}

// Rebase builds a table against pivot from quotes that all share the same
// reference currency. Quotes against two different references cannot be
// mixed in one table and are rejected.
func Rebase(pivot string, asOf time.Time, quotes []Quote) (*RateTable, error) {
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no quotes", ErrInconsistentRateTable)
	}
	reference := quotes[0].Reference
	for _, q := range quotes {
		if q.Reference == "" {
			return nil, fmt.Errorf("%w: quote %s has no reference currency", ErrInconsistentRateTable, q.Code)
		}
		if q.Reference != reference {
			return nil, fmt.Errorf("%w: quotes mix reference currencies %s and %s", ErrInconsistentRateTable, reference, q.Reference)
		}
	}

	one := decimal.NewFromInt(1)
	// value of one pivot unit in the reference currency.
	pivotInRef := one
	if pivot != reference {
		i := slices.IndexFunc(quotes, func(q Quote) bool { return q.Code == pivot })
		if i < 0 {
			return nil, fmt.Errorf("%w: pivot %s is not quoted against %s", ErrInconsistentRateTable, pivot, reference)
		}
		pivotInRef = quotes[i].Mid()
		if !pivotInRef.IsPositive() {
			return nil, fmt.Errorf("%w: pivot %s has no usable quote", ErrInconsistentRateTable, pivot)
		}
	}

	entries := make([]RateEntry, 0, len(quotes)+1)
	seenRef := false
	for _, q := range quotes {
		mid := q.Mid()
		switch q.Code {
		case pivot:
			mid = one
		case reference:
			if !mid.Equal(one) {
				return nil, fmt.Errorf("%w: reference %s quoted at %s against itself", ErrInconsistentRateTable, reference, mid)
			}
			seenRef = true
			mid = one.Div(pivotInRef)
		default:
			mid = mid.Div(pivotInRef)
		}
		entries = append(entries, RateEntry{Code: q.Code, Name: q.Name, Rate: mid})
	}
	if !seenRef && reference != pivot {
		entries = append(entries, RateEntry{Code: reference, Rate: one.Div(pivotInRef)})
	}
	return NewRateTable(pivot, asOf, entries...)
}

// Pivot returns the currency all rates are expressed against.
func (t *RateTable) Pivot() string { return t.pivot }

// AsOf returns the instant the rates were taken.
func (t *RateTable) AsOf() time.Time { return t.asOf }

// Len returns the number of codes in the table, pivot included.
func (t *RateTable) Len() int { return len(t.entries) }

// Has reports whether code is listed in the table.
func (t *RateTable) Has(code string) bool {
	_, ok := t.entries[code]
	return ok
}

// Rate returns the rate per pivot unit of code as listed, even if zero.
func (t *RateTable) Rate(code string) (decimal.Decimal, bool) {
	e, ok := t.entries[code]
	return e.Rate, ok
}

// Name returns the display name of code, or the code itself.
func (t *RateTable) Name(code string) string {
	if e, ok := t.entries[code]; ok && e.Name != "" {
		return e.Name
	}
	return code
}

// Codes iterates over codes in alphabetical order.
func (t *RateTable) Codes() iter.Seq[string] {
	return func(yield func(string) bool) {
		codes := slices.Sorted(maps.Keys(t.entries))
		for _, code := range codes {
			if !yield(code) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries sorted by code.
func (t *RateTable) Entries() []RateEntry {
	res := make([]RateEntry, 0, len(t.entries))
	for code := range t.Codes() {
		res = append(res, t.entries[code])
	}
	return res
}

// usable returns the rate of code on a conversion path.
func (t *RateTable) usable(code string) (decimal.Decimal, error) {
	e, ok := t.entries[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	if !e.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s rate is %s", ErrInvalidRate, code, e.Rate)
	}
	return e.Rate, nil
}

// Changes returns the percent change of each code's rate against prev. Codes
// absent from prev, or priced zero in prev, are skipped.
func (t *RateTable) Changes(prev *RateTable) map[string]Percent {
	res := make(map[string]Percent)
	if prev == nil {
		return res
	}
	for code, e := range t.entries {
		if code == t.pivot {
			continue
		}
		old, ok := prev.entries[code]
		if !ok || old.Rate.IsZero() {
			continue
		}
		res[code] = percentOf(e.Rate.Sub(old.Rate), old.Rate)
	}
	return res
}

type rateTableJSON struct {
	Pivot string          `json:"pivot"`
	AsOf  time.Time       `json:"asOf"`
	Rates []rateEntryJSON `json:"rates"`
}

type rateEntryJSON struct {
	Code string          `json:"code"`
	Name string          `json:"name,omitempty"`
	Rate decimal.Decimal `json:"rate"`
}

func (t *RateTable) MarshalJSON() ([]byte, error) {
	doc := rateTableJSON{Pivot: t.pivot, AsOf: t.asOf}
	for _, e := range t.Entries() {
		doc.Rates = append(doc.Rates, rateEntryJSON{Code: e.Code, Name: e.Name, Rate: e.Rate})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes and validates a table. A *RateTable is only meant to
// be decoded into once, before it is shared.
func (t *RateTable) UnmarshalJSON(data []byte) error {
	var doc rateTableJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	entries := make([]RateEntry, 0, len(doc.Rates))
	for _, r := range doc.Rates {
		entries = append(entries, RateEntry{Code: r.Code, Name: r.Name, Rate: r.Rate})
	}
	decoded, err := NewRateTable(doc.Pivot, doc.AsOf, entries...)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
