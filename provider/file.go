package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/etnz/holdings"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RateFile reads a rate table from a YAML file:
//
//	pivot: TRY
//	reference: USD   # optional, rates are against the pivot when absent
//	asOf: 2025-06-01T10:00:00Z
//	rates:
//	  - code: EUR
//	    name: Euro
//	    rate: 1.08
//	  - code: TRY
//	    buy: 0.0255
//	    sell: 0.0257
//
// Rates against another reference are rebased on the pivot.
type RateFile struct {
	Path string
}

var _ holdings.RateSource = (*RateFile)(nil)

type rateFileDoc struct {
	Pivot     string          `yaml:"pivot"`
	Reference string          `yaml:"reference"`
	AsOf      time.Time       `yaml:"asOf"`
	Rates     []rateFileEntry `yaml:"rates"`
}

type rateFileEntry struct {
	Code string  `yaml:"code"`
	Name string  `yaml:"name"`
	Rate float64 `yaml:"rate"`
	Buy  float64 `yaml:"buy"`
	Sell float64 `yaml:"sell"`
}

func (s *RateFile) Rates(ctx context.Context) (*holdings.RateTable, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read rate file: %w", err)
	}
	return ParseRateFile(data)
}

// ParseRateFile decodes the YAML content of a rate file.
func ParseRateFile(data []byte) (*holdings.RateTable, error) {
	var doc rateFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", holdings.ErrInconsistentRateTable, err)
	}
	if doc.Pivot == "" {
		doc.Pivot = holdings.DefaultPivot
	}
	if doc.Reference == "" {
		doc.Reference = doc.Pivot
	}
	if doc.AsOf.IsZero() {
		doc.AsOf = time.Now().UTC()
	}
	if doc.Reference == doc.Pivot {
		entries := make([]holdings.RateEntry, 0, len(doc.Rates))
		for _, r := range doc.Rates {
			entries = append(entries, holdings.RateEntry{Code: r.Code, Name: r.Name, Rate: r.rate()})
		}
		return holdings.NewRateTable(doc.Pivot, doc.AsOf, entries...)
	}
	quotes := make([]holdings.Quote, 0, len(doc.Rates))
	for _, r := range doc.Rates {
		quotes = append(quotes, r.quote(doc.Reference))
	}
	return holdings.Rebase(doc.Pivot, doc.AsOf, quotes)
}

// rate returns the explicit rate, or the mid of buy and sell.
func (r rateFileEntry) rate() decimal.Decimal {
	if r.Rate != 0 {
		return decimal.NewFromFloat(r.Rate)
	}
	return r.quote("").Mid()
}

func (r rateFileEntry) quote(reference string) holdings.Quote {
	q := holdings.Quote{
		Code:      r.Code,
		Name:      r.Name,
		Reference: reference,
		Buy:       decimal.NewFromFloat(r.Buy),
		Sell:      decimal.NewFromFloat(r.Sell),
	}
	if r.Rate != 0 {
		q.Buy = decimal.NewFromFloat(r.Rate)
		q.Sell = q.Buy
	}
	return q
}
