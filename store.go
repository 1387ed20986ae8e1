package holdings

import (
	"context"

	"github.com/etnz/holdings/date"
)

// Commit is the combined write of one mutation: the whole event list and the
// aggregate recomputed from it. A Store applies it entirely or not at all.
type Commit struct {
	Position  Position
	Events    []Event
	Aggregate Aggregate
	// BaseVersion is the version the mutation was computed from. The store
	// refuses the commit with ErrConflict if the record moved since.
	BaseVersion int64
}

// Store persists positions. Implementations live in the store package.
type Store interface {
	// CreatePosition stores a new position with an empty ledger at version 1.
	CreatePosition(ctx context.Context, rec Record) error
	// LoadPosition returns the position, its events in date order, its last
	// committed aggregate and its version.
	LoadPosition(ctx context.Context, id string) (Record, error)
	// ListPositions returns all records sorted by position id.
	ListPositions(ctx context.Context) ([]Record, error)
	// Commit atomically replaces the events and aggregate of a position and
	// increments its version.
	Commit(ctx context.Context, c Commit) error

	// SaveRates persists the last good rate table, LoadRates returns it, or
	// nil when none was saved.
	SaveRates(ctx context.Context, t *RateTable) error
	LoadRates(ctx context.Context) (*RateTable, error)

	Close() error
}

// PriceSource supplies market prices. It returns ErrPriceUnavailable, never
// a zero price, when it has nothing for symbol on that day.
type PriceSource interface {
	Price(ctx context.Context, symbol string, on date.Date) (Money, error)
}
