package holdings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// RateSource supplies a complete rate table on demand. Implementations must
// return either a full, validated table or an error: partial tables are never
// merged into the live one.
type RateSource interface {
	Rates(ctx context.Context) (*RateTable, error)
}

// RateHolder is the process-wide reference to the current RateTable.
//
// Readers call Load once per conversion or recompute and keep the returned
// table for the whole call, so a concurrent refresh can never mix old and new
// rates. The last successful refresh wins.
type RateHolder struct {
	table atomic.Pointer[RateTable]
	group singleflight.Group

	mu          sync.Mutex
	lastErr     error
	lastAttempt time.Time
}

// NewRateHolder returns a holder serving initial, which may be nil.
func NewRateHolder(initial *RateTable) *RateHolder {
	h := new(RateHolder)
	if initial != nil {
		h.table.Store(initial)
	}
	return h
}

// Load returns the current table, or nil if none was ever loaded.
func (h *RateHolder) Load() *RateTable { return h.table.Load() }

// Swap installs t and returns the previous table.
func (h *RateHolder) Swap(t *RateTable) *RateTable {
	return h.table.Swap(t)
}

// Refresh asks src for a new table and installs it. On failure the previous
// table stays in service and the error is remembered until the next
// successful refresh. Concurrent calls share a single fetch.
func (h *RateHolder) Refresh(ctx context.Context, src RateSource) (*RateTable, error) {
	v, err, _ := h.group.Do("refresh", func() (any, error) {
		t, err := src.Rates(ctx)
		if err == nil && t == nil {
			err = fmt.Errorf("%w: rate source returned no table", ErrInconsistentRateTable)
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.lastAttempt = time.Now()
		if err != nil {
			h.lastErr = err
			return nil, err
		}
		h.lastErr = nil
		h.table.Store(t)
		return t, nil
	})
	if err != nil {
		return h.Load(), fmt.Errorf("rate refresh failed, keeping previous table: %w", err)
	}
	return v.(*RateTable), nil
}

// Stale reports whether the last refresh attempt failed, and why.
func (h *RateHolder) Stale() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr != nil, h.lastErr
}

// LastAttempt returns when Refresh last ran.
func (h *RateHolder) LastAttempt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAttempt
}
