package holdings

import "errors"

// Errors returned by the engine. They are always wrapped with context, use
// errors.Is to test for them.
var (
	// ErrUnknownCurrency is returned when a code is absent from the rate table.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrInvalidRate is returned when a zero, negative or missing rate is on
	// the conversion path actually used.
	ErrInvalidRate = errors.New("invalid rate")
	// ErrInconsistentRateTable is returned when a rate table fails load-time
	// validation.
	ErrInconsistentRateTable = errors.New("inconsistent rate table")
	// ErrNegativeQuantity flags a ledger whose running quantity goes below
	// zero. It is advisory unless the oversell policy rejects it.
	ErrNegativeQuantity = errors.New("negative resulting quantity")
	// ErrAtomicWriteFailed is returned when the store could not commit the
	// combined event mutation and aggregate.
	ErrAtomicWriteFailed = errors.New("atomic write failed")
	// ErrConflict is returned by stores when the position was modified by
	// another writer since it was read.
	ErrConflict = errors.New("concurrent modification")

	ErrPositionNotFound = errors.New("position not found")
	ErrPositionExists   = errors.New("position already exists")
	ErrEventNotFound    = errors.New("event not found")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrInvalidPosition  = errors.New("invalid position")

	// ErrPriceUnavailable is the explicit "no price" signal of a PriceSource.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrNoRates is returned when no rate table was ever loaded.
	ErrNoRates = errors.New("no rate table loaded")
)
