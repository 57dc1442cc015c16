// Package mempool holds pending, admitted-but-uncommitted transactions,
// grounded on the teacher's mempool/priority.go POS-lane scheduler
// (Lanes/Classify/Schedule), generalized from a two-lane reservation
// scheme to the flat fee-then-arrival priority ordering spec.md §4.4
// requires.
package mempool

import (
	"sync"
	"time"

	cerrors "energychain/core/errors"
	"energychain/core/types"
)

// Fee is the priority key energychain transactions would carry if the
// data model had an explicit fee field; spec.md §3 defines none, so every
// transaction's fee is always zero and priority collapses to pure arrival
// order. The hook stays in place (rather than being deleted) so a future
// fee market can slot in without reshaping the pool.
func Fee(tx *types.Transaction) uint64 {
	return 0
}

// entry is a pooled transaction plus its admission bookkeeping.
type entry struct {
	tx        *types.Transaction
	id        types.TxID
	fee       uint64
	arrivedAt time.Time
	size      int
}

// Pool is the pending-transaction pool: dedup by tx id, bounded by
// configured capacity, evicting lowest-priority entries when full
// (priority = (fee_or_zero DESC, arrival_time ASC), spec.md §4.4).
type Pool struct {
	mu            sync.Mutex
	maxTxs        int
	maxBytes      int64
	maxPerAccount int

	byID        map[types.TxID]*entry
	perAccount  map[string]int
	totalBytes  int64
}

// New constructs an empty pool bounded by the given capacity knobs.
func New(maxTxs int, maxBytes int64, maxPerAccount int) *Pool {
	return &Pool{
		maxTxs:        maxTxs,
		maxBytes:      maxBytes,
		maxPerAccount: maxPerAccount,
		byID:          make(map[types.TxID]*entry),
		perAccount:    make(map[string]int),
	}
}

// Len reports how many transactions are currently pending.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// Admit validates a transaction's shape and sender/nonce sanity, then adds
// it to the pool, evicting the lowest-priority entry if the pool is at
// capacity. The mempool does not run full state validation: it is the
// proposer's and validators' job (spec.md §4.4).
func (p *Pool) Admit(tx *types.Transaction, size int) error {
	if tx == nil {
		return cerrors.New(cerrors.Validation, "nil transaction")
	}
	if err := tx.ValidateShape(); err != nil {
		return cerrors.Wrap(cerrors.Validation, "malformed transaction", err)
	}
	id, err := tx.Hash()
	if err != nil {
		return cerrors.Wrap(cerrors.Validation, "cannot hash transaction", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[id]; exists {
		return cerrors.New(cerrors.StateConflict, "duplicate transaction")
	}

	sender := tx.Sender.String()
	if p.maxPerAccount > 0 && p.perAccount[sender] >= p.maxPerAccount {
		return cerrors.New(cerrors.StateConflict, "sender exceeds per-account pending limit")
	}

	e := &entry{tx: tx, id: id, fee: Fee(tx), arrivedAt: time.Now(), size: size}

	if p.maxBytes > 0 && p.totalBytes+int64(size) > p.maxBytes {
		if !p.evictOneLowerPriorityThan(e) {
			return cerrors.New(cerrors.Transient, "mempool full: no lower-priority entry to evict")
		}
	}
	if p.maxTxs > 0 && len(p.byID) >= p.maxTxs {
		if !p.evictOneLowerPriorityThan(e) {
			return cerrors.New(cerrors.Transient, "mempool full: no lower-priority entry to evict")
		}
	}

	p.byID[id] = e
	p.perAccount[sender]++
	p.totalBytes += int64(size)
	return nil
}

// less reports whether a has strictly lower scheduling priority than b:
// lower fee first, and among equal fees, later arrival first (so the
// earliest-arrived, highest-fee entries are kept).
func less(a, b *entry) bool {
	if a.fee != b.fee {
		return a.fee < b.fee
	}
	return a.arrivedAt.After(b.arrivedAt)
}

// evictOneLowerPriorityThan removes the single lowest-priority pooled
// entry if it is strictly lower priority than candidate, returning
// whether an eviction happened.
func (p *Pool) evictOneLowerPriorityThan(candidate *entry) bool {
	var worst *entry
	for _, e := range p.byID {
		if worst == nil || less(e, worst) {
			worst = e
		}
	}
	if worst == nil || !less(worst, candidate) {
		return false
	}
	delete(p.byID, worst.id)
	p.perAccount[worst.tx.Sender.String()]--
	p.totalBytes -= int64(worst.size)
	return true
}

// TakeForBlock returns up to maxCount transactions, bounded additionally
// by maxBytes, ordered (fee_or_zero DESC, arrival_time ASC). The returned
// slice is deterministic given the same pool contents and does not mutate
// the pool.
func (p *Pool) TakeForBlock(maxCount int, maxBytes int64) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := make([]*entry, 0, len(p.byID))
	for _, e := range p.byID {
		entries = append(entries, e)
	}
	sortEntries(entries)

	out := make([]*types.Transaction, 0, min(len(entries), maxCount))
	var usedBytes int64
	for _, e := range entries {
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
		if maxBytes > 0 && usedBytes+int64(e.size) > maxBytes {
			continue
		}
		out = append(out, e.tx)
		usedBytes += int64(e.size)
	}
	return out
}

// TakeForBlockReserving behaves like TakeForBlock but first fills up to
// reservedSlots of the result with the highest-priority pending
// transactions of reservedType, before filling the remainder of maxCount
// from every transaction (reserved type included) in ordinary priority
// order. This guarantees order-book liquidity keeps moving even when the
// pool is saturated with unrelated transfers (spec.md §5's same-block
// match guarantee is worthless if an OrderPlace never gets proposed in
// the first place).
func (p *Pool) TakeForBlockReserving(maxCount int, maxBytes int64, reservedType types.TxType, reservedSlots int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := make([]*entry, 0, len(p.byID))
	for _, e := range p.byID {
		entries = append(entries, e)
	}
	sortEntries(entries)

	out := make([]*types.Transaction, 0, min(len(entries), maxCount))
	taken := make(map[types.TxID]bool, len(entries))
	var usedBytes int64

	take := func(e *entry) bool {
		if maxCount > 0 && len(out) >= maxCount {
			return false
		}
		if maxBytes > 0 && usedBytes+int64(e.size) > maxBytes {
			return true
		}
		out = append(out, e.tx)
		taken[e.id] = true
		usedBytes += int64(e.size)
		return true
	}

	if reservedSlots > 0 {
		reserved := 0
		for _, e := range entries {
			if reserved >= reservedSlots {
				break
			}
			if e.tx.Type != reservedType {
				continue
			}
			if !take(e) {
				break
			}
			reserved++
		}
	}
	for _, e := range entries {
		if taken[e.id] {
			continue
		}
		if !take(e) {
			break
		}
	}
	return out
}

// sortEntries orders by (fee DESC, arrival ASC) via insertion sort: pools
// are bounded by configuration and typically small enough that this stays
// cheap, and it keeps the comparator identical to evictOneLowerPriorityThan.
func sortEntries(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && less(entries[j-1], entries[j]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// OnCommitted removes every transaction id present in the committed block
// from the pool (spec.md §4.4).
func (p *Pool) OnCommitted(block *types.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range block.Transactions {
		id, err := block.Transactions[i].Hash()
		if err != nil {
			continue
		}
		if e, ok := p.byID[id]; ok {
			delete(p.byID, id)
			p.perAccount[e.tx.Sender.String()]--
			p.totalBytes -= int64(e.size)
		}
	}
}

// Contains reports whether id is currently pending.
func (p *Pool) Contains(id types.TxID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byID[id]
	return ok
}
