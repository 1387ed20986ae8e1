package holdings

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/holdings/date"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind identifies the direction of a ledger event.
type EventKind string

// Event kinds.
const (
	KindBuy  EventKind = "buy"
	KindSell EventKind = "sell"
)

// ParseEventKind parses "buy" or "sell".
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case KindBuy, KindSell:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q, want buy or sell", ErrInvalidEvent, s)
}

// Event is one buy or sell of a position's asset.
//
// Snapshot is the gross amount converted to the report currency with the
// rates current when the event was created. SnapshotRate is the rate used for
// that conversion. Both are frozen: later rate refreshes never touch them.
type Event struct {
	ID         string
	Kind       EventKind
	Quantity   Quantity
	UnitPrice  Money // in the position currency
	Fees       Money // metadata, only folded into cost basis on demand
	OccurredAt date.Date
	Memo       string

	Snapshot     *Money
	SnapshotRate decimal.Decimal
	CreatedAt    time.Time
}

// NewEventID returns a fresh random event identifier.
func NewEventID() string { return uuid.NewString() }

// GrossAmount returns Quantity * UnitPrice. Fees are not included.
func (e Event) GrossAmount() Money {
	return e.UnitPrice.Mul(e.Quantity)
}

// signedQuantity is the contribution of e to the position quantity.
func (e Event) signedQuantity() Quantity {
	if e.Kind == KindSell {
		return e.Quantity.Neg()
	}
	return e.Quantity
}

// Validate checks e against the currency of the position it belongs to.
func (e Event) Validate(currency string) error {
	var errs []error
	if _, err := ParseEventKind(string(e.Kind)); err != nil {
		errs = append(errs, err)
	}
	if !e.Quantity.IsPositive() {
		errs = append(errs, fmt.Errorf("quantity must be positive, got %s", e.Quantity))
	}
	if e.UnitPrice.IsNegative() {
		errs = append(errs, fmt.Errorf("unit price must not be negative, got %s", e.UnitPrice))
	}
	if e.UnitPrice.Currency() != currency {
		errs = append(errs, fmt.Errorf("unit price currency %q does not match position currency %q", e.UnitPrice.Currency(), currency))
	}
	if e.Fees.IsNegative() {
		errs = append(errs, fmt.Errorf("fees must not be negative, got %s", e.Fees))
	}
	if c := e.Fees.Currency(); c != "" && c != currency {
		errs = append(errs, fmt.Errorf("fees currency %q does not match position currency %q", c, currency))
	}
	if e.OccurredAt.IsZero() {
		errs = append(errs, errors.New("date is missing"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, errors.Join(errs...))
	}
	return nil
}

// EventPatch lists the fields of an edit. Nil fields are left unchanged.
type EventPatch struct {
	Kind       *EventKind
	Quantity   *Quantity
	UnitPrice  *Money
	Fees       *Money
	OccurredAt *date.Date
	Memo       *string
}

// apply returns a copy of e with p applied.
//
// The snapshot is never taken again from live rates: when the gross amount
// changes it is derived from the frozen SnapshotRate.
func (p EventPatch) apply(e Event) Event {
	if p.Kind != nil {
		e.Kind = *p.Kind
	}
	if p.Quantity != nil {
		e.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		e.UnitPrice = *p.UnitPrice
	}
	if p.Fees != nil {
		e.Fees = *p.Fees
	}
	if p.OccurredAt != nil {
		e.OccurredAt = *p.OccurredAt
	}
	if p.Memo != nil {
		e.Memo = *p.Memo
	}
	if e.Snapshot != nil && (p.Quantity != nil || p.UnitPrice != nil) {
		s := M(e.GrossAmount().Decimal().Mul(e.SnapshotRate), e.Snapshot.Currency()).exact()
		e.Snapshot = &s
	}
	return e
}

// MarshalJSON writes the event as a flat object with a stable field order.
func (e Event) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", e.ID)
	w.Append("kind", e.Kind)
	w.Append("date", e.OccurredAt)
	w.Append("quantity", e.Quantity)
	w.Append("currency", e.UnitPrice.Currency())
	w.Append("unitPrice", e.UnitPrice.Decimal())
	if !e.Fees.IsZero() {
		w.Append("fees", e.Fees.Decimal())
	}
	w.Optional("memo", e.Memo)
	if e.Snapshot != nil {
		w.Append("snapshot", e.Snapshot.exact())
		w.Append("snapshotRate", e.SnapshotRate)
	}
	if !e.CreatedAt.IsZero() {
		w.Append("createdAt", e.CreatedAt.UTC())
	}
	return w.MarshalJSON()
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID           string          `json:"id"`
		Kind         EventKind       `json:"kind"`
		Date         date.Date       `json:"date"`
		Quantity     Quantity        `json:"quantity"`
		Currency     string          `json:"currency"`
		UnitPrice    decimal.Decimal `json:"unitPrice"`
		Fees         decimal.Decimal `json:"fees"`
		Memo         string          `json:"memo"`
		Snapshot     *Money          `json:"snapshot"`
		SnapshotRate decimal.Decimal `json:"snapshotRate"`
		CreatedAt    time.Time       `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	*e = Event{
		ID:           temp.ID,
		Kind:         temp.Kind,
		Quantity:     temp.Quantity,
		UnitPrice:    M(temp.UnitPrice, temp.Currency).exact(),
		OccurredAt:   temp.Date,
		Memo:         temp.Memo,
		Snapshot:     temp.Snapshot,
		SnapshotRate: temp.SnapshotRate,
		CreatedAt:    temp.CreatedAt,
	}
	if !temp.Fees.IsZero() {
		e.Fees = M(temp.Fees, temp.Currency).exact()
	}
	return nil
}
