package holdings

import (
	"testing"
	"time"

	"github.com/etnz/holdings/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func USD(v float64) Money { return M(v, "USD") }
func TRY(v float64) Money { return M(v, "TRY") }
func EUR(v float64) Money { return M(v, "EUR") }

// buy returns a valid buy event of q units at price p on day.
func buy(id string, q float64, p Money, day string) Event {
	return Event{ID: id, Kind: KindBuy, Quantity: Q(q), UnitPrice: p, OccurredAt: date.MustParse(day)}
}

func sell(id string, q float64, p Money, day string) Event {
	return Event{ID: id, Kind: KindSell, Quantity: Q(q), UnitPrice: p, OccurredAt: date.MustParse(day)}
}

// mustTable builds a TRY pivoted table or fails the test.
func mustTable(t *testing.T, rates map[string]float64) *RateTable {
	t.Helper()
	var entries []RateEntry
	for code, r := range rates {
		entries = append(entries, RateEntry{Code: code, Rate: newDecimal(r)})
	}
	table, err := NewRateTable("TRY", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), entries...)
	require.NoError(t, err)
	return table
}

func assertMoney(t *testing.T, name string, got, want Money) {
	t.Helper()
	assert.Truef(t, got.Decimal().Equal(want.Decimal()) && got.Currency() == want.Currency(), "%s = %v, want %v", name, got.Decimal(), want.Decimal())
}

func assertQuantity(t *testing.T, name string, got, want Quantity) {
	t.Helper()
	assert.Truef(t, got.Equal(want), "%s = %v, want %v", name, got, want)
}
