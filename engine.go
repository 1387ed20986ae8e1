package holdings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/etnz/holdings/date"
	"github.com/rs/zerolog"
)

// PositionState is the recalculation state of a position.
type PositionState int

const (
	Idle PositionState = iota
	Recomputing
)

func (s PositionState) String() string {
	if s == Recomputing {
		return "recomputing"
	}
	return "idle"
}

// Options configures an Engine. Store is required.
type Options struct {
	Store      Store
	Rates      *RateHolder // a new empty holder when nil
	RateSource RateSource  // optional, used by RefreshRates
	Prices     PriceSource // optional, used by UpdatePrice
	Policy     Policy
	// ReportCurrency is the currency event snapshots are taken in. Snapshots
	// are skipped when empty.
	ReportCurrency string
	Logger         zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine is the write path of the position ledger: every mutation is applied
// to the full event list, recomputed, and committed with its aggregate as one
// unit. Mutations of the same position are serialized, mutations of
// different positions run in parallel.
//
// A failed mutation is never retried. It leaves the store untouched and the
// aggregate is reported stale until the next successful mutation.
type Engine struct {
	store   Store
	rates   *RateHolder
	source  RateSource
	prices  PriceSource
	policy  Policy
	report  string
	log     zerolog.Logger
	now     func() time.Time
	locks   keyedMutex
	mu      sync.Mutex
	states  map[string]PositionState
	staleBy map[string]string
}

// NewEngine returns an engine. When the rate holder is empty, the last table
// saved in the store is loaded into it.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if opts.ReportCurrency != "" {
		if err := ValidateCurrency(opts.ReportCurrency); err != nil {
			return nil, fmt.Errorf("engine: report currency: %w", err)
		}
	}
	e := &Engine{
		store:   opts.Store,
		rates:   opts.Rates,
		source:  opts.RateSource,
		prices:  opts.Prices,
		policy:  opts.Policy,
		report:  opts.ReportCurrency,
		log:     opts.Logger.With().Str("component", "engine").Logger(),
		now:     opts.Now,
		states:  make(map[string]PositionState),
		staleBy: make(map[string]string),
	}
	if e.rates == nil {
		e.rates = NewRateHolder(nil)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.rates.Load() == nil {
		t, err := e.store.LoadRates(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: loading saved rates: %w", err)
		}
		if t != nil {
			e.rates.Swap(t)
			e.log.Info().Str("pivot", t.Pivot()).Time("asOf", t.AsOf()).Int("codes", t.Len()).Msg("restored saved rate table")
		}
	}
	return e, nil
}

// ReportCurrency returns the currency snapshots are taken in.
func (e *Engine) ReportCurrency() string { return e.report }

// Policy returns the aggregation policy.
func (e *Engine) Policy() Policy { return e.policy }

// Rates returns the live rate table, nil if none was ever loaded.
func (e *Engine) Rates() *RateTable { return e.rates.Load() }

// State returns the recalculation state of a position.
func (e *Engine) State(id string) PositionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[id]
}

func (e *Engine) setState(id string, s PositionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s == Idle {
		delete(e.states, id)
		return
	}
	e.states[id] = s
}

func (e *Engine) markStale(id string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.staleBy[id] = err.Error()
}

func (e *Engine) clearStale(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.staleBy, id)
}

// withStale flags a with the reason of the last failed mutation, if any.
func (e *Engine) withStale(a Aggregate) Aggregate {
	e.mu.Lock()
	defer e.mu.Unlock()
	if reason, ok := e.staleBy[a.PositionID]; ok {
		a.Stale, a.StaleReason = true, reason
	}
	return a
}

// CreatePosition stores a new position with an empty ledger.
func (e *Engine) CreatePosition(ctx context.Context, pos Position) (Aggregate, error) {
	if pos.ID == "" {
		pos.ID = NewEventID()
	}
	if err := pos.Validate(); err != nil {
		return Aggregate{}, fmt.Errorf("%w: %w", ErrInvalidPosition, err)
	}
	if pos.HasPrice() {
		pos.Price = pos.Price.exact()
	}
	rec := Record{Position: pos, Version: 1}
	agg, err := rec.Recompute(e.policy)
	if err != nil {
		return Aggregate{}, err
	}
	rec.Aggregate = agg
	if err := e.store.CreatePosition(ctx, rec); err != nil {
		return Aggregate{}, err
	}
	e.log.Info().Str("position", pos.ID).Str("symbol", pos.Symbol).Msg("position created")
	return agg, nil
}

// Position returns the definition of a position.
func (e *Engine) Position(ctx context.Context, id string) (Position, error) {
	rec, err := e.store.LoadPosition(ctx, id)
	if err != nil {
		return Position{}, err
	}
	return rec.Position, nil
}

// GetAggregate returns the last committed aggregate of a position. It never
// recomputes.
func (e *Engine) GetAggregate(ctx context.Context, id string) (Aggregate, error) {
	rec, err := e.store.LoadPosition(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	return e.withStale(rec.Aggregate), nil
}

// ListAggregates returns the last committed aggregates of all positions.
func (e *Engine) ListAggregates(ctx context.Context) ([]Aggregate, error) {
	recs, err := e.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]Aggregate, 0, len(recs))
	for _, r := range recs {
		res = append(res, e.withStale(r.Aggregate))
	}
	return res, nil
}

// ListPositions returns all position definitions.
func (e *Engine) ListPositions(ctx context.Context) ([]Position, error) {
	recs, err := e.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]Position, 0, len(recs))
	for _, r := range recs {
		res = append(res, r.Position)
	}
	return res, nil
}

// Events returns the events of a position in date order.
func (e *Engine) Events(ctx context.Context, id string) ([]Event, error) {
	rec, err := e.store.LoadPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rec.Events), nil
}

// MutateEvents applies op to the ledger of a position and returns the new
// aggregate.
func (e *Engine) MutateEvents(ctx context.Context, id string, op Operation) (Aggregate, error) {
	return e.mutate(ctx, id, op)
}

// SetPrice records price as the market price of a position on the given day.
func (e *Engine) SetPrice(ctx context.Context, id string, price Money, on date.Date) (Aggregate, error) {
	return e.mutate(ctx, id, setPrice{price: price, on: on})
}

// UpdatePrice asks the price source for today's price of a position.
func (e *Engine) UpdatePrice(ctx context.Context, id string) (Aggregate, error) {
	if e.prices == nil {
		return Aggregate{}, fmt.Errorf("%w: no price source configured", ErrPriceUnavailable)
	}
	pos, err := e.Position(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	on := date.Of(e.now())
	price, err := e.prices.Price(ctx, pos.Symbol, on)
	if err != nil {
		return Aggregate{}, fmt.Errorf("price of %s: %w", pos.Symbol, err)
	}
	return e.SetPrice(ctx, id, price, on)
}

// UpdatePrices updates the price of every position. Positions without a
// price keep their last one; all failures are returned joined.
func (e *Engine) UpdatePrices(ctx context.Context) error {
	positions, err := e.ListPositions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range positions {
		if _, err := e.UpdatePrice(ctx, p.ID); err != nil {
			e.log.Warn().Err(err).Str("position", p.ID).Msg("price update failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mutate is the read-modify-write cycle shared by all operations.
func (e *Engine) mutate(ctx context.Context, id string, op Operation) (Aggregate, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	e.setState(id, Recomputing)
	defer e.setState(id, Idle)

	log := e.log.With().Str("position", id).Str("op", op.String()).Logger()

	rec, err := e.store.LoadPosition(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	next := rec
	m := &mutation{
		rec:    &next,
		ledger: rec.Ledger(),
		table:  e.rates.Load(),
		report: e.report,
		now:    e.now(),
		log:    log,
	}
	if err := op.apply(m); err != nil {
		log.Debug().Err(err).Msg("operation rejected")
		return Aggregate{}, err
	}
	next.Events = m.ledger.Slice()

	agg, err := next.Recompute(e.policy)
	if err != nil {
		if !errors.Is(err, ErrNegativeQuantity) {
			e.markStale(id, err)
		}
		log.Warn().Err(err).Msg("recompute failed")
		return Aggregate{}, err
	}

	err = e.store.Commit(ctx, Commit{
		Position:    next.Position,
		Events:      next.Events,
		Aggregate:   agg,
		BaseVersion: rec.Version,
	})
	if err != nil {
		if !errors.Is(err, ErrAtomicWriteFailed) {
			err = fmt.Errorf("%w: %w", ErrAtomicWriteFailed, err)
		}
		e.markStale(id, err)
		log.Error().Err(err).Msg("commit failed")
		return Aggregate{}, err
	}
	e.clearStale(id)
	log.Info().Str("event", m.touched).Str("quantity", agg.Quantity.String()).Str("costBasis", agg.CostBasis.String()).Msg("mutation committed")
	return agg, nil
}

// Convert converts amount with the live rate table.
func (e *Engine) Convert(amount Money, to string) (Money, error) {
	return e.rates.Load().ConvertMoney(amount, to)
}

// NetWorth sums the live value of all positions in home.
func (e *Engine) NetWorth(ctx context.Context, home string) (Worth, error) {
	aggs, err := e.ListAggregates(ctx)
	if err != nil {
		return Worth{}, err
	}
	return NetWorth(aggs, home, e.rates.Load())
}

// History sums the historical amounts, in the report currency, of the events
// of a kind between two dates. approximate is true when a live conversion
// had to replace a missing snapshot.
func (e *Engine) History(ctx context.Context, id string, kind EventKind, from, to date.Date) (total Money, approximate bool, err error) {
	if e.report == "" {
		return Money{}, false, errors.New("no report currency configured")
	}
	events, err := e.Events(ctx, id)
	if err != nil {
		return Money{}, false, err
	}
	return HistoricalTotal(events, kind, e.report, e.rates.Load(), from, to)
}

// RefreshRates loads a new table from the rate source and saves it. On
// failure the previous table stays in service and the error is returned.
func (e *Engine) RefreshRates(ctx context.Context) (*RateTable, error) {
	if e.source == nil {
		return e.rates.Load(), errors.New("no rate source configured")
	}
	prev := e.rates.Load()
	t, err := e.rates.Refresh(ctx, e.source)
	if err != nil {
		e.log.Warn().Err(err).Msg("rates are stale")
		return t, err
	}
	if err := e.store.SaveRates(ctx, t); err != nil {
		// the table is live, it is only lost on restart.
		e.log.Error().Err(err).Msg("could not save rate table")
	}
	ev := e.log.Info().Str("pivot", t.Pivot()).Time("asOf", t.AsOf()).Int("codes", t.Len())
	if prev != nil {
		changed := 0
		for _, pct := range t.Changes(prev) {
			if !pct.Equal(0) {
				changed++
			}
		}
		ev = ev.Int("changed", changed)
	}
	ev.Msg("rates refreshed")
	return t, nil
}
