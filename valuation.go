package holdings

import (
	"fmt"

	"github.com/etnz/holdings/date"
)

// TakeSnapshot converts the gross amount of e into report with table and
// freezes the result on e.
func TakeSnapshot(e *Event, report string, table *RateTable) error {
	rate, err := rateBetween(e.UnitPrice.Currency(), report, table)
	if err != nil {
		return fmt.Errorf("cannot snapshot event %s: %w", e.ID, err)
	}
	s := M(e.GrossAmount().Decimal().Mul(rate), report).exact()
	e.Snapshot = &s
	e.SnapshotRate = rate
	return nil
}

// HistoricalAmount returns what e was worth in report.
//
// The frozen snapshot is used when it is in report. Otherwise the amount is
// converted with table and approximate is true: that figure moves with the
// rates, the snapshot never does.
func HistoricalAmount(e Event, report string, table *RateTable) (amount Money, approximate bool, err error) {
	if e.Snapshot != nil && e.Snapshot.Currency() == report {
		return *e.Snapshot, false, nil
	}
	src := e.GrossAmount()
	if e.Snapshot != nil {
		src = *e.Snapshot
	}
	amount, err = table.ConvertMoney(src, report)
	if err != nil {
		return Money{}, true, err
	}
	return amount, true, nil
}

// HistoricalTotal sums the historical amounts in report of the events of
// the given kind that occurred between from and to, both included. A zero
// bound is open.
func HistoricalTotal(events []Event, kind EventKind, report string, table *RateTable, from, to date.Date) (total Money, approximate bool, err error) {
	total = M(0, report)
	for _, e := range events {
		if e.Kind != kind {
			continue
		}
		if !from.IsZero() && e.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.OccurredAt.After(to) {
			continue
		}
		amount, approx, err := HistoricalAmount(e, report, table)
		if err != nil {
			return Money{}, true, err
		}
		total = total.Add(amount)
		approximate = approximate || approx
	}
	return total, approximate, nil
}

// Worth is a net worth and the positions left out of it.
type Worth struct {
	Total Money `json:"total"`
	// Unpriced lists the positions holding a quantity without a market
	// price. They count for nothing in Total.
	Unpriced []string `json:"unpriced,omitempty"`
}

// Complete reports whether every held position has a price.
func (w Worth) Complete() bool { return len(w.Unpriced) == 0 }

func (w Worth) String() string {
	if w.Complete() {
		return w.Total.String()
	}
	return fmt.Sprintf("%v (incomplete, %d unpriced)", w.Total, len(w.Unpriced))
}

// NetWorth sums the live value of aggregates in home, with the rates of
// table. Snapshots are never used.
func NetWorth(aggregates []Aggregate, home string, table *RateTable) (Worth, error) {
	w := Worth{Total: M(0, home)}
	for _, a := range aggregates {
		if !a.Priced && !a.Quantity.IsZero() {
			w.Unpriced = append(w.Unpriced, a.PositionID)
			continue
		}
		v, err := table.ConvertMoney(a.Value, home)
		if err != nil {
			return Worth{}, fmt.Errorf("position %s: %w", a.PositionID, err)
		}
		w.Total = w.Total.Add(v)
	}
	return w, nil
}
