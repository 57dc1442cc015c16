package chain

import (
	"fmt"
	"time"

	cerrors "energychain/core/errors"
	"energychain/core/events"
	"energychain/core/state"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/orderbook"
)

// Append validates block against the current tip and commits it
// atomically, or rejects it with a categorized error and leaves the
// store untouched (spec.md §4.6 "append(block) -> Ok|Err{reason}").
// Reorg policy (spec.md §4.6/§9): a block proposed for an already-filled
// height, or one whose prev_hash does not match the tip, is rejected
// outright — the first validly-signed block at a height wins, and no
// reorg logic runs; a rejected competing block is logged as a
// ConsensusFault for governance visibility rather than triggering a
// chain switch.
func (m *Manager) Append(block *types.Block, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadTipLocked(); err != nil {
		return err
	}
	if block.Header.Height != m.tip.Height+1 {
		return cerrors.New(cerrors.ConsensusFault, fmt.Sprintf("chain: height %d is not the next height after tip %d (no reorgs: first valid block at a height wins)", block.Header.Height, m.tip.Height))
	}
	if block.Header.PrevHash != m.tip.Hash {
		return cerrors.New(cerrors.ConsensusFault, "chain: prev hash does not match tip")
	}
	tipBlock, err := m.getBlockLocked(m.tip.Height)
	if err != nil {
		return err
	}
	if block.Header.Timestamp <= tipBlock.Header.Timestamp {
		return cerrors.New(cerrors.ConsensusFault, "chain: block timestamp must exceed tip timestamp")
	}
	if err := m.poa.ValidateHeader(block.Header, now); err != nil {
		return err
	}
	if err := block.VerifyTxRoot(); err != nil {
		return cerrors.Wrap(cerrors.ConsensusFault, "chain: tx root mismatch", err)
	}
	proposerAuthority, err := m.registry.Get(block.Header.Proposer)
	if err != nil {
		return cerrors.Wrap(cerrors.ConsensusFault, "chain: unknown proposer", err)
	}
	proposerPub, err := proposerAuthority.PubKey()
	if err != nil {
		return cerrors.Wrap(cerrors.ConsensusFault, "chain: decode proposer public key", err)
	}

	batch := m.store.NewBatch()
	builder := m.state.NewBuilder(batch)
	if err := applyBlockTransactions(builder, block, m.orderBook, m.governance, proposerPub); err != nil {
		return err
	}
	if err := builder.Finish(); err != nil {
		return err
	}
	if err := m.stageBlockBody(batch, block); err != nil {
		return err
	}
	if err := m.store.Commit(batch); err != nil {
		return cerrors.Wrap(cerrors.Fatal, "chain: commit block", err)
	}

	id, err := block.ID()
	if err != nil {
		return err
	}
	m.tip = tipRecord{Height: block.Header.Height, Hash: id}
	m.mempool.OnCommitted(block)
	// Reputation bookkeeping is best-effort: the block is already
	// committed, so a registry write failure here must not unwind it.
	_ = m.registry.RecordBlockSuccess(block.Header.Proposer, block.Header.Height, now, 0)

	at := time.Unix(now, 0).UTC()
	m.sink.Emit(events.New(events.KindBlockCommitted, at, map[string]string{
		"height":   fmt.Sprintf("%d", block.Header.Height),
		"proposer": block.Header.Proposer.String(),
	}))
	if block.Header.Skips > 0 {
		m.sink.Emit(events.New(events.KindAuthoritySkipped, at, map[string]string{
			"height": fmt.Sprintf("%d", block.Header.Height),
			"skips":  fmt.Sprintf("%d", block.Header.Skips),
		}))
	}
	return nil
}

// applyBlockTransactions walks block.Transactions in order, applying each
// through builder. Every OrderPlace transaction must be followed
// immediately by exactly the EnergyTrade settlement transactions its
// match produced (spec.md §5 "order-book matches produced by an
// OrderPlace must appear in the same block as that OrderPlace"); this is
// checked, not merely assumed, by comparing orderBook.DrainTrades()
// against the transactions that follow.
func applyBlockTransactions(builder *state.Builder, block *types.Block, ob *orderbook.Manager, gov state.GovernanceApplier, proposerPub *crypto.PublicKey) error {
	i := 0
	for i < len(block.Transactions) {
		tx := &block.Transactions[i]
		if _, err := builder.Apply(tx, block.Header.Height, block.Header.Timestamp, ob, gov); err != nil {
			return err
		}
		i++
		if tx.Type != types.TxOrderPlace {
			continue
		}
		trades := ob.DrainTrades()
		for _, tr := range trades {
			if i >= len(block.Transactions) {
				return cerrors.New(cerrors.ConsensusFault, "chain: order match missing its settlement transaction")
			}
			settlement := &block.Transactions[i]
			if err := verifySettlementMatchesTrade(settlement, tr, tx.OrderPlace.Side, proposerPub); err != nil {
				return err
			}
			if _, err := builder.Apply(settlement, block.Header.Height, block.Header.Timestamp, ob, gov); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

func verifySettlementMatchesTrade(tx *types.Transaction, tr orderbook.Trade, takerSide types.Side, proposerPub *crypto.PublicKey) error {
	if tx.Type != types.TxEnergyTrade || tx.EnergyTrade == nil {
		return cerrors.New(cerrors.ConsensusFault, "chain: expected an energy trade settlement after a matched order")
	}
	if !tx.EnergyTrade.SettledByAuthority {
		return cerrors.New(cerrors.ConsensusFault, "chain: order-matched settlement must be authority-settled")
	}
	buyer, seller := tr.BuyerSeller(takerSide)
	if tx.Sender != buyer || tx.EnergyTrade.Counterparty != seller {
		return cerrors.New(cerrors.ConsensusFault, "chain: settlement parties do not match the trade")
	}
	if tx.EnergyTrade.KWh != tr.KWh || tx.EnergyTrade.PricePerKWh != tr.PricePerKWh {
		return cerrors.New(cerrors.ConsensusFault, "chain: settlement amount does not match the trade")
	}
	if tx.EnergyTrade.GridLocation != tr.GridLocation {
		return cerrors.New(cerrors.ConsensusFault, "chain: settlement grid location does not match the trade")
	}
	if err := tx.VerifyAuthoritySignature(proposerPub); err != nil {
		return cerrors.Wrap(cerrors.ConsensusFault, "chain: settlement not validly authority-signed", err)
	}
	return nil
}
