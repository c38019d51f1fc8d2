package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketOrder(t *testing.T) {
	t.Parallel()

	spec, err := MarketOrder("BTC-USDT", Buy, Long, 0.5, false, "cid-1")
	require.NoError(t, err)
	assert.Equal(t, Market, spec.Type())
	assert.Equal(t, 0.5, spec.Quantity())

	v := spec.values()
	assert.Equal(t, "BTC-USDT", v.Get("symbol"))
	assert.Equal(t, "BUY", v.Get("side"))
	assert.Equal(t, "LONG", v.Get("positionSide"))
	assert.Equal(t, "MARKET", v.Get("type"))
	assert.Equal(t, "0.5", v.Get("quantity"))
	assert.Equal(t, "cid-1", v.Get("newClientOrderId"))
	assert.Empty(t, v.Get("price"))
	assert.Empty(t, v.Get("stopPrice"))
	assert.Empty(t, v.Get("reduceOnly"))
}

func TestMarketOrderReduceOnly(t *testing.T) {
	t.Parallel()

	spec, err := MarketOrder("BTC-USDT", Sell, Long, 0.5, true, "cid-2")
	require.NoError(t, err)
	assert.True(t, spec.ReduceOnly())
	assert.Equal(t, "true", spec.values().Get("reduceOnly"))
}

func TestLimitOrder(t *testing.T) {
	t.Parallel()

	spec, err := LimitOrder("ETH-USDT", Buy, Long, 2, 3150.25, "", "cid-3")
	require.NoError(t, err)

	v := spec.values()
	assert.Equal(t, "LIMIT", v.Get("type"))
	assert.Equal(t, "3150.25", v.Get("price"))
	assert.Equal(t, "GTC", v.Get("timeInForce"), "empty time in force defaults to GTC")

	_, err = LimitOrder("ETH-USDT", Buy, Long, 2, 0, GTC, "cid")
	assert.Error(t, err, "limit price required")
	_, err = LimitOrder("ETH-USDT", Buy, Long, 2, 3150, "GTD", "cid")
	assert.Error(t, err, "unknown time in force")
}

func TestProtectiveOrders(t *testing.T) {
	t.Parallel()

	stop, err := StopMarketOrder("BTC-USDT", Sell, Long, 0.5, 41000, true, "cid-sl")
	require.NoError(t, err)
	assert.Equal(t, StopMarket, stop.Type())
	assert.Equal(t, "41000", stop.values().Get("stopPrice"))
	assert.Equal(t, "true", stop.values().Get("reduceOnly"))

	take, err := TakeProfitMarketOrder("BTC-USDT", Sell, Long, 0.5, 45000, true, "cid-tp")
	require.NoError(t, err)
	assert.Equal(t, TakeProfitMarket, take.Type())
	assert.Equal(t, "45000", take.values().Get("stopPrice"))

	_, err = StopMarketOrder("BTC-USDT", Sell, Long, 0.5, 0, true, "cid")
	assert.Error(t, err, "stop price required")
	_, err = TakeProfitMarketOrder("BTC-USDT", Sell, Long, 0.5, -1, true, "cid")
	assert.Error(t, err)
}

func TestOrderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		symbol        string
		side          Side
		posSide       PositionSide
		qty           float64
		clientOrderID string
	}{
		{"missing symbol", "", Buy, Long, 1, "cid"},
		{"bad side", "BTC-USDT", "HOLD", Long, 1, "cid"},
		{"bad position side", "BTC-USDT", Buy, "NEUTRAL", 1, "cid"},
		{"zero quantity", "BTC-USDT", Buy, Long, 0, "cid"},
		{"negative quantity", "BTC-USDT", Buy, Long, -1, "cid"},
		{"missing client order id", "BTC-USDT", Buy, Long, 1, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := MarketOrder(tt.symbol, tt.side, tt.posSide, tt.qty, false, tt.clientOrderID)
			assert.Error(t, err)
		})
	}
}
