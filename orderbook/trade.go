package orderbook

import (
	"energychain/core/types"
	"energychain/crypto"
)

// Trade is one resting-order fill produced by the matcher: the incoming
// order (taker) crosses a resting order (maker) and both quantities are
// decremented by the fill amount (spec.md §4.7). It carries everything a
// caller needs to build the settlement EnergyTrade transaction.
type Trade struct {
	GridLocation string
	Taker        crypto.Address
	Maker        crypto.Address
	MakerOrderID crypto.Hash
	KWh          uint64
	PricePerKWh  uint64
}

// Side-tagged convenience so callers building a settlement transaction
// know which side of the fill the taker and maker occupied.
func (t Trade) BuyerSeller(takerSide types.Side) (buyer, seller crypto.Address) {
	if takerSide == types.SideBuy {
		return t.Taker, t.Maker
	}
	return t.Maker, t.Taker
}
