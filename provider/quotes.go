package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/etnz/holdings"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultQuotesURL serves the daily quote document of Turkish markets.
const DefaultQuotesURL = "https://finans.truncgil.com/v4/today.json"

// quote document item types.
const (
	TypeCurrency  = "Currency"
	TypeGold      = "Gold"
	TypeCrypto    = "CryptoCurrency"
	TypePlatinum  = "Platinum"
	TypePalladium = "Palladium"
)

// updateDateLayout is the layout of the Update_Date field.
const updateDateLayout = "2006-01-02 15:04:05"

/*
QuoteDocument reads a JSON document keyed by code, quoted against the pivot:

	{
	  "Update_Date": "2025-06-01 10:00:03",
	  "USD": {"Type": "Currency", "Name": "ABD DOLARI", "Buying": 39.1, "Selling": 39.2, "Change": 0.12},
	  "GRA": {"Type": "Gold", "Name": "Gram Altın", "Selling": 4100.5},
	  "BTC": {"Type": "CryptoCurrency", "Name": "Bitcoin", "TRY_Price": 4200000, "USD_Price": 107000}
	}

Unknown types, and items whose key is not a valid code, are ignored. The
pivot is not listed and is added with a rate of 1.
*/
type QuoteDocument struct {
	URL    string
	Pivot  string
	Client *http.Client
	Log    zerolog.Logger
	// Types restricts the item types loaded, all known types when empty.
	Types []string
}

var _ holdings.RateSource = (*QuoteDocument)(nil)

type quoteItem struct {
	Type     string          `json:"Type"`
	Name     string          `json:"Name"`
	Buying   decimal.Decimal `json:"Buying"`
	Selling  decimal.Decimal `json:"Selling"`
	TRYPrice decimal.Decimal `json:"TRY_Price"`
}

// Rates fetches and parses the document. Any malformed item fails the whole
// table.
func (s *QuoteDocument) Rates(ctx context.Context) (*holdings.RateTable, error) {
	url := s.URL
	if url == "" {
		url = DefaultQuotesURL
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	var doc map[string]json.RawMessage
	if err := getJSON(ctx, client, url, &doc); err != nil {
		return nil, fmt.Errorf("error retrieving quotes: %w", err)
	}
	t, err := s.parse(doc)
	if err != nil {
		return nil, err
	}
	s.Log.Debug().Int("codes", t.Len()).Time("asOf", t.AsOf()).Msg("quote document loaded")
	return t, nil
}

func (s *QuoteDocument) parse(doc map[string]json.RawMessage) (*holdings.RateTable, error) {
	pivot := s.Pivot
	if pivot == "" {
		pivot = holdings.DefaultPivot
	}
	asOf := time.Now().UTC()
	if raw, ok := doc["Update_Date"]; ok {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, fmt.Errorf("%w: Update_Date: %w", holdings.ErrInconsistentRateTable, err)
		}
		t, err := time.ParseInLocation(updateDateLayout, str, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: Update_Date: %w", holdings.ErrInconsistentRateTable, err)
		}
		asOf = t
	}

	var quotes []holdings.Quote
	for code, raw := range doc {
		if code == "Update_Date" || code == pivot {
			continue
		}
		var item quoteItem
		if err := json.Unmarshal(raw, &item); err != nil {
			// not an item: metadata fields are skipped.
			continue
		}
		if !s.accepts(item.Type) {
			continue
		}
		if err := holdings.ValidateCurrency(code); err != nil {
			s.Log.Debug().Str("code", code).Msg("skipping item with an unusable code")
			continue
		}
		q := holdings.Quote{Code: code, Name: item.Name, Reference: pivot, Buy: item.Buying, Sell: item.Selling}
		if item.Type == TypeCrypto && item.TRYPrice.IsPositive() {
			q.Buy, q.Sell = item.TRYPrice, item.TRYPrice
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: document lists no quotes", holdings.ErrInconsistentRateTable)
	}
	slices.SortFunc(quotes, func(a, b holdings.Quote) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		}
		return 0
	})
	return holdings.Rebase(pivot, asOf, quotes)
}

func (s *QuoteDocument) accepts(typ string) bool {
	if len(s.Types) > 0 {
		return slices.Contains(s.Types, typ)
	}
	switch typ {
	case TypeCurrency, TypeGold, TypeCrypto, TypePlatinum, TypePalladium:
		return true
	}
	return false
}
