package scheduler

import (
	"context"

	"github.com/etnz/holdings"
)

// RatesJob refreshes the engine's rate table. A failed refresh keeps the
// previous table in service.
type RatesJob struct {
	Engine *holdings.Engine
}

func (j RatesJob) Name() string { return "refresh-rates" }

func (j RatesJob) Run(ctx context.Context) error {
	_, err := j.Engine.RefreshRates(ctx)
	return err
}

// PricesJob updates the market price of every position.
type PricesJob struct {
	Engine *holdings.Engine
}

func (j PricesJob) Name() string { return "refresh-prices" }

func (j PricesJob) Run(ctx context.Context) error {
	return j.Engine.UpdatePrices(ctx)
}
