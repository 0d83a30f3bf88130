package orderid_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/orderid"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("round trips through Parse", func(t *testing.T) {
		t.Parallel()

		for _, typ := range []orderid.Type{
			orderid.TypeOrder,
			orderid.TypeSubscription,
			orderid.TypeCreditPurchase,
			orderid.TypeTokenCharge,
		} {
			id, err := orderid.New(typ)
			require.NoError(t, err)

			parsed, err := orderid.Parse(id)
			require.NoError(t, err, "id %q", id)
			assert.Equal(t, typ, parsed.Type)
			assert.Len(t, parsed.Suffix, 8)
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		t.Parallel()
		_, err := orderid.New(orderid.Type("XXX"))
		assert.ErrorIs(t, err, orderid.ErrUnknownType)
	})

	t.Run("ids are unique", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]struct{}, 1000)
		for range 1000 {
			id, err := orderid.New(orderid.TypeOrder)
			require.NoError(t, err)
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %q", id)
			seen[id] = struct{}{}
		}
	})
}

func TestNewAt(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 8, 28, 14, 30, 15, 0, time.UTC)
	id, err := orderid.NewAt(orderid.TypeSubscription, at)
	require.NoError(t, err)
	assert.Contains(t, id, "SUB_20250828143015_")

	parsed, err := orderid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, at, parsed.CreatedAt)
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "valid order", input: "ORD_20250828143015_a1b2c3d4", valid: true},
		{name: "valid credit purchase", input: "CRD_20250101000000_00000000", valid: true},
		{name: "unknown type", input: "XXX_20250828143015_a1b2c3d4"},
		{name: "short timestamp", input: "ORD_202508281430_a1b2c3d4"},
		{name: "uppercase hex suffix", input: "ORD_20250828143015_A1B2C3D4"},
		{name: "short suffix", input: "ORD_20250828143015_a1b2"},
		{name: "missing separators", input: "ORD20250828143015a1b2c3d4"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			parsed, err := orderid.Parse(tt.input)
			if tt.valid {
				require.NoError(t, err)
				assert.True(t, parsed.Type.Valid())
			} else {
				assert.ErrorIs(t, err, orderid.ErrInvalidOrderID)
			}
		})
	}
}
