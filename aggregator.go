package holdings

import (
	"fmt"
	"iter"
	"time"
)

// OversellPolicy decides what happens when sells drive the running quantity
// below zero.
type OversellPolicy int

const (
	// OversellAllow keeps the negative quantity and flags the aggregate with
	// an ErrNegativeQuantity warning.
	OversellAllow OversellPolicy = iota
	// OversellReject fails the mutation with ErrNegativeQuantity.
	OversellReject
)

func (p OversellPolicy) String() string {
	if p == OversellReject {
		return "reject"
	}
	return "allow"
}

// ParseOversellPolicy parses "allow" or "reject".
func ParseOversellPolicy(s string) (OversellPolicy, error) {
	switch s {
	case "", "allow":
		return OversellAllow, nil
	case "reject":
		return OversellReject, nil
	}
	return OversellAllow, fmt.Errorf("unknown oversell policy %q, want allow or reject", s)
}

// Policy tunes the aggregation. The zero value is the canonical net-cost
// model: oversell allowed, fees ignored.
type Policy struct {
	Oversell    OversellPolicy
	IncludeFees bool
}

// Totals is the price independent part of an aggregate.
type Totals struct {
	Quantity  Quantity
	CostBasis Money
	Fees      Money
	// Oversold is true when the running quantity went below zero at some
	// point in the ledger.
	Oversold bool
}

// Recompute derives quantity and cost basis from the full list of events, in
// date order, using the net-cost model:
//
//	quantity  = Σ buy.quantity − Σ sell.quantity
//	costBasis = Σ buy.gross − Σ sell.gross
//
// Sells subtract their full proceeds from the cost basis, they do not keep
// the average cost per unit. Recompute is pure: same events, same totals.
func Recompute(currency string, events iter.Seq2[int, Event], policy Policy) (Totals, error) {
	t := Totals{
		CostBasis: M(0, currency),
		Fees:      M(0, currency),
	}
	for _, e := range events {
		if err := e.Validate(currency); err != nil {
			return Totals{}, fmt.Errorf("event %s: %w", e.ID, err)
		}
		gross := e.GrossAmount()
		if policy.IncludeFees {
			// fees add to what a buy costs and take from what a sell yields.
			if e.Kind == KindBuy {
				gross = gross.Add(e.Fees)
			} else {
				gross = gross.Sub(e.Fees)
			}
		}
		switch e.Kind {
		case KindBuy:
			t.CostBasis = t.CostBasis.Add(gross)
		case KindSell:
			t.CostBasis = t.CostBasis.Sub(gross)
		}
		t.Quantity = t.Quantity.Add(e.signedQuantity())
		t.Fees = t.Fees.Add(e.Fees)

		if t.Quantity.IsNegative() && !t.Oversold {
			t.Oversold = true
			if policy.Oversell == OversellReject {
				return Totals{}, fmt.Errorf("%w: selling %s on %s leaves %s", ErrNegativeQuantity, e.Quantity, e.OccurredAt, t.Quantity)
			}
		}
	}
	return t, nil
}

// Valuate combines totals with the current market price of the position.
//
// Amounts keep all their digits: a sub-cent price must survive a store
// round trip.
//
// ProfitLossPct is relative to the cost basis. It is 0 when nothing is held
// or the cost basis is not positive, as sells can recover more than was
// paid.
func Valuate(pos Position, t Totals) Aggregate {
	price := M(0, pos.Currency)
	if pos.HasPrice() {
		price = pos.Price
	}
	value := price.Mul(t.Quantity)
	pnl := value.Sub(t.CostBasis)

	a := Aggregate{
		PositionID:   pos.ID,
		Quantity:     t.Quantity,
		CostBasis:    t.CostBasis.exact(),
		Fees:         t.Fees.exact(),
		Price:        price.exact(),
		Priced:       pos.HasPrice(),
		Value:        value.exact(),
		ProfitLoss:   pnl.exact(),
		AveragePrice: M(0, pos.Currency),
		Oversold:     t.Oversold,
		ComputedAt:   time.Now().UTC(),
	}
	if !t.Quantity.IsZero() && t.CostBasis.IsPositive() {
		a.ProfitLossPct = percentOf(pnl.Decimal(), t.CostBasis.Decimal())
	}
	if t.Quantity.IsPositive() {
		a.AveragePrice = t.CostBasis.Div(t.Quantity).exact()
	}
	if t.Oversold {
		a.Warnings = append(a.Warnings, ErrNegativeQuantity.Error())
	}
	if !a.Priced {
		a.Warnings = append(a.Warnings, fmt.Sprintf("%s: no market price", ErrPriceUnavailable))
	}
	return a
}

// Recompute recomputes the aggregate of a record from scratch.
func (r Record) Recompute(policy Policy) (Aggregate, error) {
	t, err := Recompute(r.Position.Currency, NewPositionLedger(r.Events...).Events(), policy)
	if err != nil {
		return Aggregate{}, err
	}
	return Valuate(r.Position, t), nil
}
