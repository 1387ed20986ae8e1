package holdings

import (
	"fmt"
	"iter"
	"slices"
)

// PositionLedger is the ordered list of events of one position.
//
// Events are kept sorted by OccurredAt. Events on the same day keep their
// insertion order. A PositionLedger is not safe for concurrent use, the
// Engine only mutates private clones of it.
type PositionLedger struct {
	events []Event
}

// NewPositionLedger returns a ledger holding events, sorted.
func NewPositionLedger(events ...Event) *PositionLedger {
	l := &PositionLedger{events: slices.Clone(events)}
	l.stableSort()
	return l
}

// Len returns the number of events.
func (l *PositionLedger) Len() int { return len(l.events) }

// Events iterates over events in date order.
func (l *PositionLedger) Events() iter.Seq2[int, Event] {
	return func(yield func(int, Event) bool) {
		for i, e := range l.events {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Slice returns a copy of the events in date order.
func (l *PositionLedger) Slice() []Event { return slices.Clone(l.events) }

// Get returns the event with the given id.
func (l *PositionLedger) Get(id string) (Event, bool) {
	i := l.index(id)
	if i < 0 {
		return Event{}, false
	}
	return l.events[i], true
}

// Append adds events and restores date order.
func (l *PositionLedger) Append(events ...Event) error {
	for _, e := range events {
		if e.ID != "" && l.index(e.ID) >= 0 {
			return fmt.Errorf("%w: duplicate event id %q", ErrInvalidEvent, e.ID)
		}
		l.events = append(l.events, e)
	}
	l.stableSort()
	return nil
}

// Replace swaps the event with the same id as e.
func (l *PositionLedger) Replace(e Event) error {
	i := l.index(e.ID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrEventNotFound, e.ID)
	}
	l.events[i] = e
	l.stableSort()
	return nil
}

// Remove deletes the event with the given id and returns it.
func (l *PositionLedger) Remove(id string) (Event, error) {
	i := l.index(id)
	if i < 0 {
		return Event{}, fmt.Errorf("%w: %q", ErrEventNotFound, id)
	}
	e := l.events[i]
	l.events = slices.Delete(l.events, i, i+1)
	return e, nil
}

// Clone returns an independent copy of l.
func (l *PositionLedger) Clone() *PositionLedger {
	return &PositionLedger{events: slices.Clone(l.events)}
}

func (l *PositionLedger) index(id string) int {
	return slices.IndexFunc(l.events, func(e Event) bool { return e.ID == id })
}

// stableSort sorts events by date, keeping insertion order for same-day events.
func (l *PositionLedger) stableSort() {
	slices.SortStableFunc(l.events, func(a, b Event) int {
		return a.OccurredAt.Time().Compare(b.OccurredAt.Time())
	})
}
