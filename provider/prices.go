package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/holdings"
	"github.com/etnz/holdings/date"
	"github.com/shopspring/decimal"
)

// JSONPathPrices fetches the price of a symbol from a JSON endpoint.
//
// URL contains a {symbol} placeholder and Path is a JSONPath expression
// selecting the price in the response, for instance "$.last" or
// "$.series.intraday.data[-1:][1]". Prices are in Currency.
type JSONPathPrices struct {
	URL      string
	Path     string
	Currency string
	Client   *http.Client
}

var _ holdings.PriceSource = (*JSONPathPrices)(nil)

// Price returns the latest price. The day is ignored: the endpoint only
// serves live prices.
func (s *JSONPathPrices) Price(ctx context.Context, symbol string, on date.Date) (holdings.Money, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	addr := strings.ReplaceAll(s.URL, "{symbol}", symbol)
	var jobj any
	if err := getJSON(ctx, client, addr, &jobj); err != nil {
		return holdings.Money{}, fmt.Errorf("error retrieving %q: %w", symbol, err)
	}
	jval, err := jsonpath.Get(s.Path, jobj)
	if err != nil {
		return holdings.Money{}, fmt.Errorf("%w: %q: %q %w", holdings.ErrPriceUnavailable, symbol, s.Path, err)
	}
	// jsonpath may return a list of 1 answer or a single answer: keep the
	// first one if any.
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return holdings.Money{}, fmt.Errorf("%w: %q: nothing at %q", holdings.ErrPriceUnavailable, symbol, s.Path)
		}
		jval = jlist[0]
	}

	var price decimal.Decimal
	switch v := jval.(type) {
	case float64:
		price = decimal.NewFromFloat(v)
	case string:
		// some endpoints show a missing price as "./." or "-".
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return holdings.Money{}, fmt.Errorf("%w: %q: %q is not a number", holdings.ErrPriceUnavailable, symbol, v)
		}
		price = decimal.NewFromFloat(f)
	default:
		return holdings.Money{}, fmt.Errorf("%w: %q: unexpected value %v", holdings.ErrPriceUnavailable, symbol, jval)
	}
	if !price.IsPositive() {
		return holdings.Money{}, fmt.Errorf("%w: %q: quoted at %s", holdings.ErrPriceUnavailable, symbol, price)
	}
	return holdings.M(price, s.Currency), nil
}

// StaticPrices serves prices set by hand. It is safe for concurrent use.
type StaticPrices struct {
	mu     sync.RWMutex
	prices map[string]holdings.Money
}

var _ holdings.PriceSource = (*StaticPrices)(nil)

func NewStaticPrices() *StaticPrices {
	return &StaticPrices{prices: make(map[string]holdings.Money)}
}

// Set records the price of symbol.
func (s *StaticPrices) Set(symbol string, price holdings.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *StaticPrices) Price(ctx context.Context, symbol string, on date.Date) (holdings.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	if !ok {
		return holdings.Money{}, fmt.Errorf("%w: %q", holdings.ErrPriceUnavailable, symbol)
	}
	return p, nil
}

// Chain tries price sources in order and returns the first price found.
type Chain []holdings.PriceSource

func (c Chain) Price(ctx context.Context, symbol string, on date.Date) (holdings.Money, error) {
	var errs []error
	for _, src := range c {
		p, err := src.Price(ctx, symbol, on)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return holdings.Money{}, fmt.Errorf("%w: %q: no price source", holdings.ErrPriceUnavailable, symbol)
	}
	return holdings.Money{}, errors.Join(errs...)
}
