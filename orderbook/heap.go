package orderbook

// maxPriceHeap tracks resting bid price levels with the highest price on
// top (O(1) best-bid peek), grounded on the pack's orderbook.MaxPriceHeap
// reference implementation, adapted from int64 tick prices to the
// uint64 price-per-kWh used throughout energychain.
type maxPriceHeap []uint64

func (h maxPriceHeap) Len() int           { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h maxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint64))
}

func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h maxPriceHeap) Peek() uint64 {
	if len(h) == 0 {
		return 0
	}
	return h[0]
}

// minPriceHeap tracks resting ask price levels with the lowest price on
// top (O(1) best-ask peek).
type minPriceHeap []uint64

func (h minPriceHeap) Len() int           { return len(h) }
func (h minPriceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint64))
}

func (h *minPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h minPriceHeap) Peek() uint64 {
	if len(h) == 0 {
		return 0
	}
	return h[0]
}
