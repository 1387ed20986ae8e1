package holdings

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func TestNewRateTable(t *testing.T) {
	d := decimal.NewFromFloat
	testCases := []struct {
		name    string
		pivot   string
		entries []RateEntry
		wantErr bool
	}{
		{name: "pivot added", pivot: "TRY", entries: []RateEntry{{Code: "USD", Rate: d(30)}}},
		{name: "pivot explicit", pivot: "TRY", entries: []RateEntry{{Code: "TRY", Rate: d(1)}, {Code: "USD", Rate: d(30)}}},
		{name: "zero rate accepted", pivot: "TRY", entries: []RateEntry{{Code: "GA", Rate: d(0)}}},
		{name: "pivot not one", pivot: "TRY", entries: []RateEntry{{Code: "TRY", Rate: d(2)}}, wantErr: true},
		{name: "negative rate", pivot: "TRY", entries: []RateEntry{{Code: "USD", Rate: d(-30)}}, wantErr: true},
		{name: "duplicate", pivot: "TRY", entries: []RateEntry{{Code: "USD", Rate: d(30)}, {Code: "USD", Rate: d(31)}}, wantErr: true},
		{name: "bad code", pivot: "TRY", entries: []RateEntry{{Code: "us dollar", Rate: d(30)}}, wantErr: true},
		{name: "bad pivot", pivot: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table, err := NewRateTable(tc.pivot, asOf, tc.entries...)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInconsistentRateTable)
				return
			}
			require.NoError(t, err)
			r, ok := table.Rate(tc.pivot)
			require.True(t, ok)
			assert.True(t, r.Equal(decimal.NewFromInt(1)), "pivot rate = %v", r)
		})
	}
}

func TestRebase(t *testing.T) {
	d := decimal.NewFromFloat
	// quotes against USD, re-expressed against TRY.
	quotes := []Quote{
		{Code: "TRY", Reference: "USD", Buy: d(0.032), Sell: d(0.034)},
		{Code: "EUR", Name: "Euro", Reference: "USD", Buy: d(1.1), Sell: d(1.1)},
		{Code: "GA", Reference: "USD", Sell: d(66)},
	}
	table, err := Rebase("TRY", asOf, quotes)
	require.NoError(t, err)
	// 1 TRY = 0.033 USD
	for code, want := range map[string]string{
		"TRY": "1",
		"USD": "30.3030",
		"EUR": "33.3333",
		"GA":  "2000",
	} {
		r, ok := table.Rate(code)
		if !assert.True(t, ok, "%s missing", code) {
			continue
		}
		got := r.Round(4)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "rate of %s = %v, want %s", code, got, want)
	}
	assert.Equal(t, "Euro", table.Name("EUR"))
}

func TestRebaseRejectsMixedReferences(t *testing.T) {
	d := decimal.NewFromFloat
	quotes := []Quote{
		{Code: "USD", Reference: "TRY", Buy: d(30), Sell: d(31)},
		{Code: "EUR", Reference: "USD", Buy: d(1.1), Sell: d(1.1)},
	}
	_, err := Rebase("TRY", asOf, quotes)
	assert.ErrorIs(t, err, ErrInconsistentRateTable)
}

func TestQuoteMid(t *testing.T) {
	d := decimal.NewFromFloat
	testCases := []struct {
		q    Quote
		want decimal.Decimal
	}{
		{Quote{Buy: d(30), Sell: d(32)}, d(31)},
		{Quote{Buy: d(30)}, d(30)},
		{Quote{Sell: d(32)}, d(32)},
		{Quote{}, decimal.Zero},
	}
	for _, tc := range testCases {
		got := tc.q.Mid()
		assert.True(t, got.Equal(tc.want), "%+v.Mid() = %v, want %v", tc.q, got, tc.want)
	}
}

func TestRateTableChanges(t *testing.T) {
	prev := mustTable(t, map[string]float64{"USD": 30, "EUR": 32})
	next := mustTable(t, map[string]float64{"USD": 33, "EUR": 32, "GBP": 40})

	changes := next.Changes(prev)
	assert.True(t, changes["USD"].Equal(10), "USD change = %v", changes["USD"])
	assert.True(t, changes["EUR"].Equal(0), "EUR change = %v", changes["EUR"])
	assert.NotContains(t, changes, "GBP", "no previous rate")
	assert.NotContains(t, changes, "TRY", "the pivot has no change")
}

func TestRateTableJSON(t *testing.T) {
	table := mustTable(t, map[string]float64{"USD": 30.5, "EUR": 33})
	data, err := json.Marshal(table)
	require.NoError(t, err)
	var back RateTable
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "TRY", back.Pivot())
	assert.True(t, back.AsOf().Equal(asOf))
	assert.Equal(t, []string{"EUR", "TRY", "USD"}, slices.Collect(back.Codes()))

	err = json.Unmarshal([]byte(`{"pivot":"TRY","rates":[{"code":"TRY","rate":3}]}`), &back)
	assert.ErrorIs(t, err, ErrInconsistentRateTable)
}
