package holdings

import (
	"testing"

	"github.com/etnz/holdings/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	valid := buy("1", 2, USD(10), "2025-01-01")
	testCases := []struct {
		name    string
		edit    func(e *Event)
		wantErr bool
	}{
		{name: "valid", edit: func(e *Event) {}},
		{name: "zero price is allowed", edit: func(e *Event) { e.UnitPrice = USD(0) }},
		{name: "fees without currency", edit: func(e *Event) { e.Fees = M(1, "") }},
		{name: "unknown kind", edit: func(e *Event) { e.Kind = "transfer" }, wantErr: true},
		{name: "zero quantity", edit: func(e *Event) { e.Quantity = Q(0) }, wantErr: true},
		{name: "negative quantity", edit: func(e *Event) { e.Quantity = Q(-1) }, wantErr: true},
		{name: "negative price", edit: func(e *Event) { e.UnitPrice = USD(-1) }, wantErr: true},
		{name: "other currency", edit: func(e *Event) { e.UnitPrice = EUR(10) }, wantErr: true},
		{name: "negative fees", edit: func(e *Event) { e.Fees = USD(-1) }, wantErr: true},
		{name: "fees in other currency", edit: func(e *Event) { e.Fees = EUR(1) }, wantErr: true},
		{name: "missing date", edit: func(e *Event) { e.OccurredAt = date.Date{} }, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := valid
			tc.edit(&e)
			err := e.Validate("USD")
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEventPatchUsesFrozenRate(t *testing.T) {
	e := buy("1", 10, USD(100), "2025-01-01")
	require.NoError(t, TakeSnapshot(&e, "TRY", mustTable(t, map[string]float64{"USD": 30})))
	assertMoney(t, "snapshot", *e.Snapshot, TRY(30000))

	q := Q(5)
	memo := "partial fill"
	edited := EventPatch{Quantity: &q, Memo: &memo}.apply(e)
	// re-derived with the rate of creation, whatever the live table says.
	assertMoney(t, "edited snapshot", *edited.Snapshot, TRY(15000))
	assert.Equal(t, memo, edited.Memo)
	// the original event is untouched.
	assertMoney(t, "original snapshot", *e.Snapshot, TRY(30000))

	on := date.MustParse("2025-02-01")
	moved := EventPatch{OccurredAt: &on}.apply(e)
	assert.Same(t, e.Snapshot, moved.Snapshot, "a date change keeps the snapshot")
}

func TestParseEventKind(t *testing.T) {
	for _, s := range []string{"buy", "sell"} {
		k, err := ParseEventKind(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(k))
	}
	_, err := ParseEventKind("BUY")
	assert.Error(t, err)
}
