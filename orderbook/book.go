package orderbook

import (
	"container/heap"

	"energychain/core/types"
)

// Book is the resting buy/sell order collection for a single grid
// location: bids sorted by (price DESC, placed_at ASC), asks by (price
// ASC, placed_at ASC), matching the price-time priority rule of spec.md
// §4.7. Grounded on the pack's orderbook.OrderBook (heap-indexed price
// levels, FIFO queue per level), generalized from a generic qty/price
// market order book to grid-location energy kWh orders.
type Book struct {
	bids    map[uint64][]*types.Order
	asks    map[uint64][]*types.Order
	bidHeap *maxPriceHeap
	askHeap *minPriceHeap
}

// NewBook returns an empty order book for one grid location.
func NewBook() *Book {
	bidHeap := &maxPriceHeap{}
	askHeap := &minPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)
	return &Book{
		bids:    make(map[uint64][]*types.Order),
		asks:    make(map[uint64][]*types.Order),
		bidHeap: bidHeap,
		askHeap: askHeap,
	}
}

func (b *Book) bestBid() (uint64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

func (b *Book) bestAsk() (uint64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

func (b *Book) addBid(o *types.Order) {
	if len(b.bids[o.PricePerKWh]) == 0 {
		heap.Push(b.bidHeap, o.PricePerKWh)
	}
	b.bids[o.PricePerKWh] = append(b.bids[o.PricePerKWh], o)
}

func (b *Book) addAsk(o *types.Order) {
	if len(b.asks[o.PricePerKWh]) == 0 {
		heap.Push(b.askHeap, o.PricePerKWh)
	}
	b.asks[o.PricePerKWh] = append(b.asks[o.PricePerKWh], o)
}

func (b *Book) removeBidLevel(price uint64) {
	for i := 0; i < b.bidHeap.Len(); i++ {
		if (*b.bidHeap)[i] == price {
			heap.Remove(b.bidHeap, i)
			return
		}
	}
}

func (b *Book) removeAskLevel(price uint64) {
	for i := 0; i < b.askHeap.Len(); i++ {
		if (*b.askHeap)[i] == price {
			heap.Remove(b.askHeap, i)
			return
		}
	}
}

// restore re-inserts an order recovered from storage at node startup
// without re-running matching: it was already resting when the node last
// shut down.
func (b *Book) restore(o *types.Order) {
	if o.Side == types.SideBuy {
		b.addBid(o)
	} else {
		b.addAsk(o)
	}
}

// purgeExpired removes every resting order whose expiry has passed as of
// now, on both sides of the book (spec.md §4.7 step 1).
func (b *Book) purgeExpired(now int64) {
	for price, level := range b.bids {
		kept := level[:0]
		for _, o := range level {
			if o.IsExpired(now) {
				o.Status = types.OrderExpired
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) == 0 {
			delete(b.bids, price)
			b.removeBidLevel(price)
		} else {
			b.bids[price] = kept
		}
	}
	for price, level := range b.asks {
		kept := level[:0]
		for _, o := range level {
			if o.IsExpired(now) {
				o.Status = types.OrderExpired
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) == 0 {
			delete(b.asks, price)
			b.removeAskLevel(price)
		} else {
			b.asks[price] = kept
		}
	}
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Place crosses incoming against the opposite side of the book at the
// resting order's price, filling min(kwh_remaining) of each side, then
// rests any leftover quantity on incoming's own side. It returns every
// fill produced plus every resting maker order the fills changed, so the
// caller can persist them; the incoming order is not in that list.
func (b *Book) Place(incoming *types.Order, now int64) ([]Trade, []*types.Order) {
	b.purgeExpired(now)

	var trades []Trade
	touched := map[*types.Order]struct{}{}

	if incoming.Side == types.SideBuy {
		for incoming.RemainingKWh > 0 {
			askPrice, ok := b.bestAsk()
			if !ok || askPrice > incoming.PricePerKWh {
				break
			}
			level := b.asks[askPrice]
			if len(level) == 0 {
				delete(b.asks, askPrice)
				b.removeAskLevel(askPrice)
				continue
			}
			maker := level[0]
			fillQty := min(incoming.RemainingKWh, maker.RemainingKWh)
			_ = incoming.Fill(fillQty)
			_ = maker.Fill(fillQty)
			trades = append(trades, Trade{
				GridLocation: incoming.GridLocation,
				Taker:        incoming.Owner,
				Maker:        maker.Owner,
				MakerOrderID: maker.ID,
				KWh:          fillQty,
				PricePerKWh:  askPrice,
			})
			touched[maker] = struct{}{}
			if maker.IsResting() {
				level[0] = maker
			} else {
				level = level[1:]
			}
			if len(level) == 0 {
				delete(b.asks, askPrice)
				b.removeAskLevel(askPrice)
			} else {
				b.asks[askPrice] = level
			}
		}
		if incoming.IsResting() {
			b.addBid(incoming)
		}
	} else {
		for incoming.RemainingKWh > 0 {
			bidPrice, ok := b.bestBid()
			if !ok || bidPrice < incoming.PricePerKWh {
				break
			}
			level := b.bids[bidPrice]
			if len(level) == 0 {
				delete(b.bids, bidPrice)
				b.removeBidLevel(bidPrice)
				continue
			}
			maker := level[0]
			fillQty := min(incoming.RemainingKWh, maker.RemainingKWh)
			_ = incoming.Fill(fillQty)
			_ = maker.Fill(fillQty)
			trades = append(trades, Trade{
				GridLocation: incoming.GridLocation,
				Taker:        incoming.Owner,
				Maker:        maker.Owner,
				MakerOrderID: maker.ID,
				KWh:          fillQty,
				PricePerKWh:  bidPrice,
			})
			touched[maker] = struct{}{}
			if maker.IsResting() {
				level[0] = maker
			} else {
				level = level[1:]
			}
			if len(level) == 0 {
				delete(b.bids, bidPrice)
				b.removeBidLevel(bidPrice)
			} else {
				b.bids[bidPrice] = level
			}
		}
		if incoming.IsResting() {
			b.addAsk(incoming)
		}
	}

	out := make([]*types.Order, 0, len(touched))
	for o := range touched {
		out = append(out, o)
	}
	return trades, out
}
