package orderbook

import (
	"encoding/json"
	"fmt"
	"sync"

	cerrors "energychain/core/errors"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/storage"
)

// Manager owns every grid location's Book and is the sole component that
// mutates order-book state, satisfying state.OrderBookApplier (spec.md
// §3 "Ownership": "The Order Book exclusively owns unmatched orders").
// Order records are persisted under storage.NamespaceOrders keyed by
// "<gridLocation>/<orderId>" and are never deleted, only overwritten as
// they fill, so the book can be rehydrated from storage after a restart
// and so filled orders remain queryable history. Purging an expired order
// changes its status in memory only; its stored record is not rewritten.
type Manager struct {
	mu        sync.Mutex
	store     *storage.KvStore
	books     map[string]*Book
	hydrated  bool
	lastTrade []Trade
}

// NewManager wraps store as the order book's persistence layer.
func NewManager(store *storage.KvStore) *Manager {
	return &Manager{store: store, books: make(map[string]*Book)}
}

func orderKey(gridLocation string, id crypto.Hash) string {
	return gridLocation + "/" + id.String()
}

func (m *Manager) bookFor(location string) *Book {
	b, ok := m.books[location]
	if !ok {
		b = NewBook()
		m.books[location] = b
	}
	return b
}

// hydrate loads every previously-resting order from storage into its
// grid location's in-memory Book, once per process lifetime.
func (m *Manager) hydrate() error {
	if m.hydrated {
		return nil
	}
	rows, err := m.store.Scan(storage.NamespaceOrders)
	if err != nil {
		return err
	}
	for _, kv := range rows {
		var o types.Order
		if err := json.Unmarshal(kv.Value, &o); err != nil {
			return fmt.Errorf("orderbook: decode order %q: %w", kv.Key, err)
		}
		if !o.IsResting() {
			continue
		}
		order := o
		m.bookFor(order.GridLocation).restore(&order)
	}
	m.hydrated = true
	return nil
}

// StagePlaceOrder implements state.OrderBookApplier: it purges expired
// resting orders from payload.GridLocation's book, crosses the new order
// against the opposite side at the resting order's price, and stages
// every order whose state changed (the incoming order plus any makers it
// filled) into batch. It never commits batch itself, so the ledger,
// order book, and governance updates for a block land atomically
// together (spec.md §4.5 "no partial block commit").
func (m *Manager) StagePlaceOrder(batch *storage.NamespacedBatch, owner crypto.Address, txID types.TxID, payload types.OrderPlacePayload, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.hydrate(); err != nil {
		return cerrors.Wrap(cerrors.Fatal, "hydrate order book", err)
	}
	if payload.GridLocation == "" {
		return cerrors.New(cerrors.Validation, "order placement missing grid location")
	}

	order, err := types.NewOrder(txID, owner, payload, now)
	if err != nil {
		return cerrors.Wrap(cerrors.Validation, "derive order id", err)
	}

	book := m.bookFor(payload.GridLocation)
	trades, touched := book.Place(&order, now)

	if err := stageOrder(batch, &order); err != nil {
		return err
	}
	for _, o := range touched {
		if err := stageOrder(batch, o); err != nil {
			return err
		}
	}

	m.lastTrade = append(m.lastTrade, trades...)
	return nil
}

func stageOrder(batch *storage.NamespacedBatch, o *types.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("orderbook: encode order %s: %w", o.ID, err)
	}
	batch.Put(storage.NamespaceOrders, orderKey(o.GridLocation, o.ID), raw)
	return nil
}

// DrainTrades returns and clears every Trade produced by StagePlaceOrder
// calls since the last DrainTrades call. The block proposer calls this
// immediately after staging an OrderPlace while composing a block, so it
// can mint the matching EnergyTrade transactions into the same block
// (spec.md §4.7, §5 ordering guarantee: "Order-book matches produced by
// an OrderPlace must appear in the same block as that OrderPlace").
func (m *Manager) DrainTrades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.lastTrade
	m.lastTrade = nil
	return out
}

// OpenOrders returns every still-resting order at location, bids before
// asks, for read-only API exposure. Orders within one price level keep
// their time order; price levels come in map order, not sorted by price.
func (m *Manager) OpenOrders(location string) ([]types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hydrate(); err != nil {
		return nil, err
	}
	book, ok := m.books[location]
	if !ok {
		return nil, nil
	}
	out := make([]types.Order, 0)
	for _, level := range book.bids {
		for _, o := range level {
			out = append(out, *o)
		}
	}
	for _, level := range book.asks {
		for _, o := range level {
			out = append(out, *o)
		}
	}
	return out, nil
}
