package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/provider"
	"github.com/etnz/holdings/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tableSource struct{ t *holdings.RateTable }

func (s tableSource) Rates(ctx context.Context) (*holdings.RateTable, error) { return s.t, nil }

func rates(t *testing.T, usd, eur int64) *holdings.RateTable {
	t.Helper()
	tbl, err := holdings.NewRateTable("TRY", time.Now(),
		holdings.RateEntry{Code: "USD", Rate: decimal.NewFromInt(usd)},
		holdings.RateEntry{Code: "EUR", Rate: decimal.NewFromInt(eur)},
	)
	require.NoError(t, err)
	return tbl
}

type fixture struct {
	t      *testing.T
	srv    *httptest.Server
	prices *provider.StaticPrices
}

func newFixture(t *testing.T, policy holdings.Policy) *fixture {
	t.Helper()
	prices := provider.NewStaticPrices()
	e, err := holdings.NewEngine(context.Background(), holdings.Options{
		Store:          store.NewMemory(),
		Rates:          holdings.NewRateHolder(rates(t, 40, 44)),
		RateSource:     tableSource{rates(t, 41, 45)},
		Prices:         prices,
		Policy:         policy,
		ReportCurrency: "TRY",
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(New(Config{Engine: e, Log: zerolog.Nop()}).Handler())
	t.Cleanup(srv.Close)
	return &fixture{t: t, srv: srv, prices: prices}
}

// do sends body as JSON and decodes the response into out when not nil.
func (f *fixture) do(method, path string, body any, out any) int {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(f.t, err)
			rd = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	if out != nil && resp.StatusCode < 300 {
		require.NoError(f.t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

func (f *fixture) createPosition(symbol, currency string) string {
	f.t.Helper()
	var res positionResponse
	status := f.do(http.MethodPost, "/api/positions", map[string]any{"symbol": symbol, "kind": "equity", "currency": currency}, &res)
	require.Equal(f.t, http.StatusCreated, status)
	require.NotEmpty(f.t, res.Position.ID)
	return res.Position.ID
}

func assertAmount(t *testing.T, want string, got holdings.Money) {
	t.Helper()
	assert.True(t, got.Decimal().Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got.Decimal())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, holdings.Policy{})
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil, nil))
}

func TestEventLifecycle(t *testing.T) {
	f := newFixture(t, holdings.Policy{})
	id := f.createPosition("AAPL", "USD")

	var agg holdings.Aggregate
	status := f.do(http.MethodPost, "/api/positions/"+id+"/events", map[string]any{"kind": "buy", "date": "2025-01-02", "quantity": 10, "unitPrice": 100}, &agg)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, agg.Quantity.Equal(holdings.Q(10)))
	assertAmount(t, "1000", agg.CostBasis)

	var events []holdings.Event
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/positions/"+id+"/events", nil, &events))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Snapshot)
	assertAmount(t, "40000", *events[0].Snapshot)

	eventPath := "/api/positions/" + id + "/events/" + events[0].ID
	require.Equal(t, http.StatusOK, f.do(http.MethodPatch, eventPath, map[string]any{"quantity": 12}, &agg))
	assert.True(t, agg.Quantity.Equal(holdings.Q(12)))
	assertAmount(t, "1200", agg.CostBasis)

	var hist amountResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/positions/"+id+"/history?kind=buy", nil, &hist))
	assertAmount(t, "48000", hist.Amount)
	assert.False(t, hist.Approximate)

	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/positions/"+id+"/price", map[string]any{"price": 120}, &agg))
	assertAmount(t, "1440", agg.Value)
	assertAmount(t, "240", agg.ProfitLoss)

	var worth netWorthResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/networth", nil, &worth))
	assert.Equal(t, "TRY", worth.Amount.Currency())
	assertAmount(t, "57600", worth.Amount)
	assert.False(t, worth.Incomplete)

	var pos positionResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/positions/"+id, nil, &pos))
	assert.Equal(t, "AAPL", pos.Position.Symbol)
	assert.True(t, pos.Aggregate.Priced)

	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, eventPath, nil, &agg))
	assert.True(t, agg.Quantity.IsZero())
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, eventPath, nil, nil))

	var list []positionResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/positions", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].Aggregate.PositionID)
}

func TestNetWorthIncomplete(t *testing.T) {
	f := newFixture(t, holdings.Policy{})
	priced := f.createPosition("AAPL", "USD")
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/positions/"+priced+"/events", map[string]any{"kind": "buy", "quantity": 2, "unitPrice": 100}, nil))
	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/positions/"+priced+"/price", map[string]any{"price": 100}, nil))
	unpriced := f.createPosition("SAP", "EUR")
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/positions/"+unpriced+"/events", map[string]any{"kind": "buy", "quantity": 1, "unitPrice": 100}, nil))

	var worth netWorthResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/networth?currency=USD", nil, &worth))
	assertAmount(t, "200", worth.Amount)
	assert.True(t, worth.Incomplete)
	assert.Equal(t, []string{unpriced}, worth.Unpriced)
}

func TestPricesAndRates(t *testing.T) {
	f := newFixture(t, holdings.Policy{})
	id := f.createPosition("SAP", "EUR")
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/positions/"+id+"/events", map[string]any{"kind": "buy", "quantity": 2, "unitPrice": 150}, nil))

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/positions/"+id+"/price/refresh", nil, nil))
	f.prices.Set("SAP", holdings.M(200, "EUR"))
	var agg holdings.Aggregate
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/positions/"+id+"/price/refresh", nil, &agg))
	assertAmount(t, "400", agg.Value)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/prices/refresh", nil, nil))

	var conv amountResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/convert?amount=100&from=USD&to=EUR", nil, &conv))
	assertAmount(t, "90.91", conv.Amount)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/rates/refresh", nil, nil))
	var table holdings.RateTable
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/rates", nil, &table))
	r, ok := table.Rate("USD")
	require.True(t, ok)
	assert.Equal(t, "41", r.String())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/convert?amount=1&from=USD&to=XXX", nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/convert?amount=lots&from=USD&to=EUR", nil, nil))
}

func TestErrors(t *testing.T) {
	f := newFixture(t, holdings.Policy{Oversell: holdings.OversellReject})
	id := f.createPosition("BTC", "USD")
	events := "/api/positions/" + id + "/events"

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown position", http.MethodGet, "/api/positions/nope", nil, http.StatusNotFound},
		{"events of unknown position", http.MethodPost, "/api/positions/nope/events", map[string]any{"kind": "buy", "quantity": 1, "unitPrice": 1}, http.StatusNotFound},
		{"invalid json", http.MethodPost, events, `{"kind":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, events, map[string]any{"kind": "buy", "shares": 1}, http.StatusBadRequest},
		{"bad kind", http.MethodPost, events, map[string]any{"kind": "gift", "quantity": 1, "unitPrice": 1}, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, events, map[string]any{"kind": "buy", "quantity": 0, "unitPrice": 1}, http.StatusBadRequest},
		{"foreign currency", http.MethodPost, events, map[string]any{"kind": "buy", "quantity": 1, "unitPrice": 1, "currency": "EUR"}, http.StatusBadRequest},
		{"oversell", http.MethodPost, events, map[string]any{"kind": "sell", "quantity": 1, "unitPrice": 1}, http.StatusUnprocessableEntity},
		{"edit unknown event", http.MethodPatch, events + "/nope", map[string]any{"memo": "x"}, http.StatusNotFound},
		{"history without kind", http.MethodGet, "/api/positions/" + id + "/history", nil, http.StatusBadRequest},
		{"history bad date", http.MethodGet, "/api/positions/" + id + "/history?kind=buy&from=soon", nil, http.StatusBadRequest},
		{"invalid position", http.MethodPost, "/api/positions", map[string]any{"symbol": "X", "currency": "usd"}, http.StatusBadRequest},
		{"duplicate position", http.MethodPost, "/api/positions", map[string]any{"id": id, "symbol": "BTC", "currency": "USD"}, http.StatusConflict},
		{"net worth bad currency", http.MethodGet, "/api/networth?currency=$", nil, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.do(tc.method, tc.path, tc.body, nil))
		})
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, holdings.Policy{})
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/positions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusForError(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, holdings.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: disk full", holdings.ErrAtomicWriteFailed), http.StatusInternalServerError},
		{fmt.Errorf("cannot convert: %w", holdings.ErrInvalidRate), http.StatusUnprocessableEntity},
		{holdings.ErrNoRates, http.StatusServiceUnavailable},
		{errors.Join(errors.New("a"), holdings.ErrPriceUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, statusForError(tc.err), tc.err.Error())
	}
}
