package types

import (
	"encoding/json"

	"energychain/crypto"
)

// OrderStatus tracks an order's position in its matching lifecycle
// (spec.md §3 "Order" / §5 order book).
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderExpired         OrderStatus = "expired"
)

// Order is a resting buy or sell order in a grid-location order book,
// created from an OrderPlace transaction and consumed (fully or partially)
// by one or more EnergyTrade settlements.
type Order struct {
	ID           crypto.Hash    `json:"id"`
	Owner        crypto.Address `json:"owner"`
	Side         Side           `json:"side"`
	KWh          uint64         `json:"kwh"`
	RemainingKWh uint64         `json:"remainingKwh"`
	PricePerKWh  uint64         `json:"pricePerKwh"`
	GridLocation string         `json:"gridLocation"`
	PlacedAt     int64          `json:"placedAt"`
	ExpiresAt    int64          `json:"expiresAt"`
	Status       OrderStatus    `json:"status"`
}

// NewOrder derives an Order from an admitted OrderPlace transaction. The
// order id is the hash of the placing transaction's id combined with the
// owner, so that two orders placed in the same transaction (never allowed,
// since one transaction carries one OrderPlace payload) or replayed
// transactions never collide.
func NewOrder(txID TxID, owner crypto.Address, p OrderPlacePayload, placedAt int64) (Order, error) {
	seed := struct {
		TxID  TxID           `json:"txId"`
		Owner crypto.Address `json:"owner"`
	}{TxID: txID, Owner: owner}
	b, err := json.Marshal(seed)
	if err != nil {
		return Order{}, err
	}
	return Order{
		ID:           crypto.SumHash(b),
		Owner:        owner,
		Side:         p.Side,
		KWh:          p.KWh,
		RemainingKWh: p.KWh,
		PricePerKWh:  p.PricePerKWh,
		GridLocation: p.GridLocation,
		PlacedAt:     placedAt,
		ExpiresAt:    p.ExpiresAt,
		Status:       OrderOpen,
	}, nil
}

// IsResting reports whether the order can still be matched against.
func (o Order) IsResting() bool {
	return (o.Status == OrderOpen || o.Status == OrderPartiallyFilled) && o.RemainingKWh > 0
}

// IsExpired reports whether the order's expiry has passed as of now.
func (o Order) IsExpired(now int64) bool {
	return o.ExpiresAt != 0 && now >= o.ExpiresAt
}

// Fill reduces the order's remaining quantity by kwh and updates its
// status, returning an error if kwh exceeds what remains.
func (o *Order) Fill(kwh uint64) error {
	if kwh > o.RemainingKWh {
		return errOverfill
	}
	o.RemainingKWh -= kwh
	if o.RemainingKWh == 0 {
		o.Status = OrderFilled
	} else {
		o.Status = OrderPartiallyFilled
	}
	return nil
}

var errOverfill = orderError("order: fill exceeds remaining quantity")

type orderError string

func (e orderError) Error() string { return string(e) }
