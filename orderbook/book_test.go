package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/core/types"
	"energychain/crypto"
)

func mustOrder(t *testing.T, side types.Side, kwh, price uint64, expiresAt int64) *types.Order {
	t.Helper()
	_, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	o, err := types.NewOrder(crypto.SumHash([]byte(pub.Address().String())), pub.Address(), types.OrderPlacePayload{
		Side: side, KWh: kwh, PricePerKWh: price, GridLocation: "GRID-A", ExpiresAt: expiresAt,
	}, 100)
	require.NoError(t, err)
	return &o
}

func TestBookMatchesCompatiblePricesAtRestingPrice(t *testing.T) {
	book := NewBook()
	sell := mustOrder(t, types.SideSell, 10, 5, 0)
	trades, touched := book.Place(sell, 1000)
	require.Empty(t, trades)
	require.Empty(t, touched)

	buy := mustOrder(t, types.SideBuy, 4, 6, 0)
	trades, touched = book.Place(buy, 1001)
	require.Len(t, trades, 1)
	require.Equal(t, uint64(4), trades[0].KWh)
	require.Equal(t, uint64(5), trades[0].PricePerKWh, "execution price must be the resting (sell) order's price")
	require.Len(t, touched, 1)
	require.Equal(t, uint64(6), touched[0].RemainingKWh)
	require.False(t, buy.IsResting(), "fully-filled buy order must not rest")
}

func TestBookLeavesIncompatiblePricesUnmatched(t *testing.T) {
	book := NewBook()
	sell := mustOrder(t, types.SideSell, 10, 5, 0)
	book.Place(sell, 1000)

	buy := mustOrder(t, types.SideBuy, 4, 3, 0)
	trades, _ := book.Place(buy, 1001)
	require.Empty(t, trades)
	require.True(t, buy.IsResting())
}

func TestBookPurgesExpiredOrdersBeforeMatching(t *testing.T) {
	book := NewBook()
	sell := mustOrder(t, types.SideSell, 10, 5, 1500)
	book.Place(sell, 1000)

	buy := mustOrder(t, types.SideBuy, 4, 6, 0)
	trades, _ := book.Place(buy, 2000)
	require.Empty(t, trades, "expired sell order must be purged before matching")
	require.True(t, buy.IsResting())
}

func TestBookNeverOverfillsEitherSide(t *testing.T) {
	book := NewBook()
	sell := mustOrder(t, types.SideSell, 5, 5, 0)
	book.Place(sell, 1000)

	buy := mustOrder(t, types.SideBuy, 10, 5, 0)
	trades, _ := book.Place(buy, 1001)
	require.Len(t, trades, 1)
	require.Equal(t, uint64(5), trades[0].KWh)
	require.Equal(t, uint64(5), buy.RemainingKWh, "buy order rests with the unfilled remainder")
	require.True(t, buy.IsResting())
}
