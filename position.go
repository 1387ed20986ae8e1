package holdings

import (
	"errors"
	"fmt"
	"time"

	"github.com/etnz/holdings/date"
)

// Position is one tracked asset. Quantity and cost basis are not fields of a
// Position: they only exist in its Aggregate, derived from the ledger.
type Position struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	DisplayName string    `json:"displayName,omitempty"`
	Kind        AssetKind `json:"kind"`
	// Currency is the currency of prices and event amounts.
	Currency string `json:"currency"`

	// Price is the latest market price per unit, supplied externally.
	Price     Money     `json:"price"`
	PriceAsOf date.Date `json:"priceAsOf"`
}

// HasPrice reports whether a market price was ever recorded.
func (p Position) HasPrice() bool { return !p.PriceAsOf.IsZero() }

// Validate checks the position definition.
func (p Position) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("id is missing"))
	}
	if p.Symbol == "" {
		errs = append(errs, errors.New("symbol is missing"))
	}
	if err := ValidateCurrency(p.Currency); err != nil {
		errs = append(errs, err)
	}
	if p.HasPrice() && p.Price.Currency() != p.Currency {
		errs = append(errs, fmt.Errorf("price currency %q does not match position currency %q", p.Price.Currency(), p.Currency))
	}
	return errors.Join(errs...)
}

// Aggregate is the derived state of a position.
type Aggregate struct {
	PositionID    string   `json:"positionId"`
	Quantity      Quantity `json:"quantity"`
	CostBasis     Money    `json:"costBasis"`
	Fees          Money    `json:"fees"`
	Price         Money    `json:"price"`
	Priced        bool     `json:"priced"`
	Value         Money    `json:"value"`
	ProfitLoss    Money    `json:"profitLoss"`
	ProfitLossPct Percent  `json:"profitLossPct"`
	// AveragePrice is CostBasis/Quantity, zero when nothing is held.
	AveragePrice Money `json:"averagePrice"`

	Oversold   bool      `json:"oversold,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	ComputedAt time.Time `json:"computedAt"`

	// Stale is set when the last mutation attempt failed: the figures are the
	// last known good ones.
	Stale       bool   `json:"stale,omitempty"`
	StaleReason string `json:"staleReason,omitempty"`
}

// Record is what a Store holds for one position.
type Record struct {
	Position  Position
	Events    []Event // date order
	Aggregate Aggregate
	Version   int64
}

// Ledger returns the events of r as a PositionLedger.
func (r Record) Ledger() *PositionLedger { return NewPositionLedger(r.Events...) }
