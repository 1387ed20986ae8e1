package renderer

import (
	"slices"
	"strings"
	"time"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/date"
	"github.com/shopspring/decimal"
)

// Row is one position with its aggregate.
type Row struct {
	Position  holdings.Position
	Aggregate holdings.Aggregate
}

// Name returns the display name of the position, or its symbol.
func (r Row) Name() string {
	if r.Position.DisplayName != "" {
		return r.Position.DisplayName
	}
	return r.Position.Symbol
}

// Portfolio is the data of the positions report.
type Portfolio struct {
	Date date.Date
	// NetWorth is omitted when nil, for instance when rates are missing.
	NetWorth *holdings.Worth
	Rows     []Row
}

// NewPortfolio pairs positions with their aggregates, sorted by symbol.
func NewPortfolio(on date.Date, positions []holdings.Position, aggregates []holdings.Aggregate) *Portfolio {
	byID := make(map[string]holdings.Aggregate, len(aggregates))
	for _, a := range aggregates {
		byID[a.PositionID] = a
	}
	p := &Portfolio{Date: on}
	for _, pos := range positions {
		p.Rows = append(p.Rows, Row{Position: pos, Aggregate: byID[pos.ID]})
	}
	slices.SortFunc(p.Rows, func(a, b Row) int { return strings.Compare(a.Position.Symbol, b.Position.Symbol) })
	return p
}

func (p *Portfolio) HasWarnings() bool {
	return slices.ContainsFunc(p.Rows, func(r Row) bool {
		return r.Aggregate.Stale || len(r.Aggregate.Warnings) > 0
	})
}

// Ledger is the data of the position report.
type Ledger struct {
	Row
	Events []holdings.Event
}

// RateRow is one code of a rate table. Change is nil when there is no
// previous rate to compare with.
type RateRow struct {
	Code   string
	Name   string
	Rate   decimal.Decimal
	Change *holdings.Percent
}

// Rates is the data of the rates report.
type Rates struct {
	Pivot string
	AsOf  time.Time
	Rows  []RateRow
}

// NewRates lists the codes of t, with their change since prev when not nil.
func NewRates(t, prev *holdings.RateTable) *Rates {
	changes := t.Changes(prev)
	r := &Rates{Pivot: t.Pivot(), AsOf: t.AsOf()}
	for _, e := range t.Entries() {
		if e.Code == t.Pivot() {
			continue
		}
		row := RateRow{Code: e.Code, Name: t.Name(e.Code), Rate: e.Rate}
		if c, ok := changes[e.Code]; ok {
			row.Change = &c
		}
		r.Rows = append(r.Rows, row)
	}
	return r
}
