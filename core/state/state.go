// Package state is the authoritative UTXO & Account ledger (C5):
// apply/revert semantics per transaction in block order, with an
// all-or-nothing batch commit per block (spec.md §4.5). Grounded on the
// teacher's core/state.Manager key-namespaced persistence pattern
// (key-per-record over a generic store), generalized from a single global
// trie to energychain's storage.KvStore namespaces.
package state

import (
	"encoding/json"
	"fmt"

	cerrors "energychain/core/errors"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/storage"
)

// OrderBookApplier is the Order Book's view as seen by the state manager:
// apply_order_place (spec.md §4.5) delegates here rather than mutating
// UTXO/account state directly. StagePlaceOrder validates the placement and
// writes its effect into batch without committing, so the ledger and the
// order book either commit together or not at all (spec.md §4.5 "no
// partial block commit").
type OrderBookApplier interface {
	StagePlaceOrder(batch *storage.NamespacedBatch, owner crypto.Address, txID types.TxID, payload types.OrderPlacePayload, now int64) error
}

// GovernanceApplier is the Authority Registry & Governance view as seen by
// the state manager: apply_governance delegates here, staged into the same
// atomic batch as the ledger and order book writes.
type GovernanceApplier interface {
	StageApply(batch *storage.NamespacedBatch, sender crypto.Address, payload types.GovernancePayload, height uint64) error
}

// State owns the committed UTXO set and account balances/nonces.
type State struct {
	store *storage.KvStore
}

// New wraps store as the authoritative ledger.
func New(store *storage.KvStore) *State {
	return &State{store: store}
}

// Account loads the account record for addr, returning a fresh Regular
// account if none exists yet (every address has an implicit zero-balance
// account per spec.md §3).
func (s *State) Account(addr crypto.Address) (types.Account, error) {
	raw, err := s.store.Get(storage.NamespaceAccounts, addr.String())
	if err != nil {
		if err == storage.ErrNotFound {
			return types.NewAccount(addr, types.AccountRegular), nil
		}
		return types.Account{}, err
	}
	var acct types.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return types.Account{}, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return acct, nil
}

// UTXO loads a single unspent output record.
func (s *State) UTXO(ref types.UTXORef) (types.UTXO, error) {
	raw, err := s.store.Get(storage.NamespaceUTXO, ref.String())
	if err != nil {
		return types.UTXO{}, err
	}
	var u types.UTXO
	if err := json.Unmarshal(raw, &u); err != nil {
		return types.UTXO{}, fmt.Errorf("state: decode utxo %s: %w", ref, err)
	}
	return u, nil
}

// overlay is a block-scoped staging area: reads fall through to the
// committed store, writes are buffered until the whole block validates so
// a single failing transaction leaves the store untouched (spec.md §4.5
// "no partial block commit").
type overlay struct {
	state    *State
	accounts map[crypto.Address]types.Account
	utxos    map[types.UTXORef]types.UTXO
	nextOut  map[types.TxID]uint32
}

func newOverlay(s *State) *overlay {
	return &overlay{
		state:    s,
		accounts: make(map[crypto.Address]types.Account),
		utxos:    make(map[types.UTXORef]types.UTXO),
		nextOut:  make(map[types.TxID]uint32),
	}
}

func (o *overlay) account(addr crypto.Address) (types.Account, error) {
	if a, ok := o.accounts[addr]; ok {
		return a, nil
	}
	a, err := o.state.Account(addr)
	if err != nil {
		return types.Account{}, err
	}
	o.accounts[addr] = a
	return a, nil
}

func (o *overlay) setAccount(a types.Account) {
	o.accounts[a.Address] = a
}

func (o *overlay) utxo(ref types.UTXORef) (types.UTXO, bool, error) {
	if u, ok := o.utxos[ref]; ok {
		return u, true, nil
	}
	u, err := o.state.UTXO(ref)
	if err != nil {
		if err == storage.ErrNotFound {
			return types.UTXO{}, false, nil
		}
		return types.UTXO{}, false, err
	}
	o.utxos[ref] = u
	return u, true, nil
}

func (o *overlay) setUTXO(u types.UTXO) {
	o.utxos[u.Ref] = u
}

func (o *overlay) newOutputIndex(txID types.TxID) uint32 {
	idx := o.nextOut[txID]
	o.nextOut[txID] = idx + 1
	return idx
}

// applyTransfer moves amount from sender to Transfer.To: it credits the
// destination's balance and mints a fresh UTXO recording the movement,
// without consuming any input UTXO (energychain tracks balances directly
// rather than requiring explicit input selection; the UTXO set exists as
// the auditable provenance trail spec.md §3 requires, not as the spendable
// balance itself).
func (o *overlay) applyTransfer(tx *types.Transaction, txID types.TxID) error {
	sender, err := o.account(tx.Sender)
	if err != nil {
		return err
	}
	if sender.Nonce != tx.Nonce {
		return cerrors.New(cerrors.StateConflict, "nonce mismatch")
	}
	if !sender.CanDebit(tx.Transfer.Amount) {
		return cerrors.New(cerrors.StateConflict, "insufficient balance")
	}
	dest, err := o.account(tx.Transfer.To)
	if err != nil {
		return err
	}

	sender.Balance -= tx.Transfer.Amount
	sender.Nonce++
	dest.Balance += tx.Transfer.Amount

	o.setAccount(sender)
	o.setAccount(dest)
	o.setUTXO(types.NewUTXO(types.UTXORef{TxID: txID, Index: o.newOutputIndex(txID)}, tx.Transfer.To, tx.Transfer.Amount))
	return nil
}

// applyEnergyTrade mirrors applyTransfer's token leg (sender pays
// counterparty kwh*price) and additionally leaves the energy-metadata
// fields attached to the committed transaction for the trade index; it
// never touches physical grid state, which is external to this chain
// (spec.md §4.5).
func (o *overlay) applyEnergyTrade(tx *types.Transaction, txID types.TxID) error {
	sender, err := o.account(tx.Sender)
	if err != nil {
		return err
	}
	if sender.Nonce != tx.Nonce {
		return cerrors.New(cerrors.StateConflict, "nonce mismatch")
	}
	total := tx.EnergyTrade.KWh * tx.EnergyTrade.PricePerKWh
	if !sender.CanDebit(total) {
		return cerrors.New(cerrors.StateConflict, "insufficient balance for trade settlement")
	}
	counterparty, err := o.account(tx.EnergyTrade.Counterparty)
	if err != nil {
		return err
	}

	sender.Balance -= total
	sender.Nonce++
	counterparty.Balance += total

	o.setAccount(sender)
	o.setAccount(counterparty)
	o.setUTXO(types.NewUTXO(types.UTXORef{TxID: txID, Index: o.newOutputIndex(txID)}, tx.EnergyTrade.Counterparty, total))
	return nil
}

// applyNonceOnly bumps the sender's nonce for transaction kinds whose
// domain effects are delegated elsewhere (OrderPlace, Governance).
func (o *overlay) applyNonceOnly(sender crypto.Address, nonce uint64) error {
	acct, err := o.account(sender)
	if err != nil {
		return err
	}
	if acct.Nonce != nonce {
		return cerrors.New(cerrors.StateConflict, "nonce mismatch")
	}
	acct.Nonce++
	o.setAccount(acct)
	return nil
}

// Builder incrementally applies transactions against a single running
// overlay shared across calls, so the Chain Manager's block composition
// (which must mint and apply an order-matched EnergyTrade settlement the
// instant its triggering OrderPlace is staged, before moving to the next
// mempool candidate) and a validator's bulk replay of a received block's
// transaction list both funnel through the same per-transaction logic.
// Call Finish exactly once, after the last Apply, to flush the overlay's
// account/UTXO writes into batch.
type Builder struct {
	state *State
	batch *storage.NamespacedBatch
	ov    *overlay
}

// NewBuilder starts a Builder staging into batch.
func (s *State) NewBuilder(batch *storage.NamespacedBatch) *Builder {
	return &Builder{state: s, batch: batch, ov: newOverlay(s)}
}

// NextNonce returns addr's nonce as staged so far in this builder: the
// nonce the next transaction from addr must carry. Used by block
// composition to mint a validly-nonced settlement transaction on a
// trader's behalf.
func (b *Builder) NextNonce(addr crypto.Address) (uint64, error) {
	acct, err := b.ov.account(addr)
	if err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

// Apply validates and applies a single transaction against the builder's
// running overlay, staging its order-book/governance side effects into
// batch (spec.md §4.5). It does not flush account/UTXO writes; call
// Finish once after the last Apply.
func (b *Builder) Apply(tx *types.Transaction, blockHeight uint64, blockTimestamp int64, orderBook OrderBookApplier, governance GovernanceApplier) (types.TxID, error) {
	txID, err := tx.Hash()
	if err != nil {
		return types.TxID{}, cerrors.Wrap(cerrors.Validation, "cannot hash transaction", err)
	}
	switch tx.Type {
	case types.TxTransfer:
		if err := b.ov.applyTransfer(tx, txID); err != nil {
			return types.TxID{}, err
		}
	case types.TxEnergyTrade:
		if err := b.ov.applyEnergyTrade(tx, txID); err != nil {
			return types.TxID{}, err
		}
	case types.TxOrderPlace:
		if err := b.ov.applyNonceOnly(tx.Sender, tx.Nonce); err != nil {
			return types.TxID{}, err
		}
		if err := orderBook.StagePlaceOrder(b.batch, tx.Sender, txID, *tx.OrderPlace, blockTimestamp); err != nil {
			return types.TxID{}, cerrors.Wrap(cerrors.Validation, "order placement rejected", err)
		}
	case types.TxGovernance:
		if err := b.ov.applyNonceOnly(tx.Sender, tx.Nonce); err != nil {
			return types.TxID{}, err
		}
		if err := governance.StageApply(b.batch, tx.Sender, *tx.Governance, blockHeight); err != nil {
			return types.TxID{}, cerrors.Wrap(cerrors.Validation, "governance action rejected", err)
		}
	default:
		return types.TxID{}, cerrors.New(cerrors.Validation, fmt.Sprintf("unknown transaction type 0x%02x", byte(tx.Type)))
	}
	return txID, nil
}

// Finish flushes every staged account/UTXO write into the builder's batch.
func (b *Builder) Finish() error {
	for addr, acct := range b.ov.accounts {
		raw, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("state: encode account %s: %w", addr, err)
		}
		b.batch.Put(storage.NamespaceAccounts, addr.String(), raw)
	}
	for ref, u := range b.ov.utxos {
		raw, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("state: encode utxo %s: %w", ref, err)
		}
		b.batch.Put(storage.NamespaceUTXO, ref.String(), raw)
	}
	return nil
}

// StageBlock validates and applies every transaction in block against a
// snapshot of current state, in order, staging every effect — ledger,
// order book, governance — into batch without committing it. Callers that
// need the block header and body staged into the same atomic write stage
// those into batch too and commit once themselves (the Chain Manager's
// append path does the same through Builder directly); ApplyBlock below is the self-contained convenience form used
// by callers that only care about ledger/order-book/governance state.
func (s *State) StageBlock(batch *storage.NamespacedBatch, block *types.Block, orderBook OrderBookApplier, governance GovernanceApplier) error {
	b := s.NewBuilder(batch)
	for i := range block.Transactions {
		if _, err := b.Apply(&block.Transactions[i], block.Header.Height, block.Header.Timestamp, orderBook, governance); err != nil {
			return err
		}
	}
	return b.Finish()
}

// ApplyBlock is StageBlock plus an immediate commit, for callers (tests,
// and any caller that does not also need to stage a block body/tip update
// into the same write) that want ledger/order-book/governance effects
// applied and committed in one call (spec.md §4.5 "no partial block
// commit").
func (s *State) ApplyBlock(block *types.Block, orderBook OrderBookApplier, governance GovernanceApplier) error {
	batch := s.store.NewBatch()
	if err := s.StageBlock(batch, block, orderBook, governance); err != nil {
		return err
	}
	if err := s.store.Commit(batch); err != nil {
		return cerrors.Wrap(cerrors.Fatal, "commit block state", err)
	}
	return nil
}
