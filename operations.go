package holdings

import (
	"errors"
	"fmt"
	"time"

	"github.com/etnz/holdings/date"
	"github.com/rs/zerolog"
)

// Operation is a mutation of a position ledger, applied by Engine.MutateEvents.
// The implementations are AddEvent, EditEvent and RemoveEvent.
type Operation interface {
	fmt.Stringer
	apply(m *mutation) error
}

// mutation is the private working copy of one position during an operation.
type mutation struct {
	rec    *Record
	ledger *PositionLedger
	table  *RateTable // live table loaded once for the whole operation
	report string
	now    time.Time
	log    zerolog.Logger

	// touched is the id of the event created, edited or removed.
	touched string
}

// AddEvent appends a new event. ID, CreatedAt and a missing date are filled
// in. The snapshot is taken with the live rates unless Event already carries
// one, which is how historical events are imported.
type AddEvent struct {
	Event Event
}

func (op AddEvent) String() string { return "add " + string(op.Event.Kind) }

func (op AddEvent) apply(m *mutation) error {
	e := op.Event
	if e.ID == "" {
		e.ID = NewEventID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = date.Of(m.now)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now
	}
	if err := e.Validate(m.rec.Position.Currency); err != nil {
		return err
	}
	if e.Snapshot == nil && m.report != "" {
		err := TakeSnapshot(&e, m.report, m.table)
		switch {
		case errors.Is(err, ErrNoRates):
			// historical reports fall back to an approximate live conversion
			// for it, once rates are loaded.
			m.log.Warn().Err(err).Str("event", e.ID).Msg("event stored without snapshot")
		case err != nil:
			return err
		}
	}
	if err := m.ledger.Append(e); err != nil {
		return err
	}
	m.touched = e.ID
	return nil
}

// EditEvent changes fields of an existing event. The snapshot follows the
// gross amount through the frozen rate, never through live rates.
type EditEvent struct {
	ID    string
	Patch EventPatch
}

func (op EditEvent) String() string { return "edit " + op.ID }

func (op EditEvent) apply(m *mutation) error {
	old, ok := m.ledger.Get(op.ID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrEventNotFound, op.ID)
	}
	e := op.Patch.apply(old)
	if err := e.Validate(m.rec.Position.Currency); err != nil {
		return err
	}
	if err := m.ledger.Replace(e); err != nil {
		return err
	}
	m.touched = e.ID
	return nil
}

// RemoveEvent deletes an event.
type RemoveEvent struct {
	ID string
}

func (op RemoveEvent) String() string { return "remove " + op.ID }

func (op RemoveEvent) apply(m *mutation) error {
	if _, err := m.ledger.Remove(op.ID); err != nil {
		return err
	}
	m.touched = op.ID
	return nil
}

// setPrice records a new market price on the position.
type setPrice struct {
	price Money
	on    date.Date
}

func (op setPrice) String() string { return "price " + op.price.String() }

func (op setPrice) apply(m *mutation) error {
	if op.price.IsNegative() {
		return fmt.Errorf("negative price %s", op.price)
	}
	if op.price.Currency() != m.rec.Position.Currency {
		return fmt.Errorf("price currency %q does not match position currency %q", op.price.Currency(), m.rec.Position.Currency)
	}
	on := op.on
	if on.IsZero() {
		on = date.Of(m.now)
	}
	m.rec.Position.Price = op.price.exact()
	m.rec.Position.PriceAsOf = on
	return nil
}
