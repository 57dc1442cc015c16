package chain

import (
	"fmt"
	"time"

	"energychain/consensus"
	cerrors "energychain/core/errors"
	"energychain/core/events"
	"energychain/core/state"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/orderbook"
)

// Propose composes, signs, and commits a new block for targetHeight =
// tip+1 if this node's key is the expected proposer, following spec.md
// §4.8's pipeline: take pending transactions, apply each against a
// running state snapshot (dropping failures rather than aborting), and
// whenever an OrderPlace produces matches, mint the EnergyTrade
// settlement transactions into the same block immediately (spec.md §5's
// same-block ordering guarantee) before moving on to the next candidate.
// Returns a Validation-categorized error if priv is not the expected
// proposer's key.
func (m *Manager) Propose(now int64, priv *crypto.PrivateKey, maxTxs int, maxBytes int64) (*types.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadTipLocked(); err != nil {
		return nil, err
	}
	targetHeight := m.tip.Height + 1
	expected, skips, err := m.poa.Expected(targetHeight, now)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ConsensusFault, "chain: no eligible proposer for this height", err)
	}
	proposerAddr := priv.PubKey().Address()
	if proposerAddr != expected.Address {
		return nil, cerrors.New(cerrors.Validation, "chain: this node does not hold the proposer slot for this height")
	}

	tipBlock, err := m.getBlockLocked(m.tip.Height)
	if err != nil {
		return nil, err
	}
	timestamp := now
	if timestamp <= tipBlock.Header.Timestamp {
		timestamp = tipBlock.Header.Timestamp + 1
	}

	quota := consensus.OrderLaneQuota{}.WithDefault()
	selected := m.mempool.TakeForBlockReserving(maxTxs, maxBytes, types.TxOrderPlace, quota.ReservedSlots(maxTxs))

	batch := m.store.NewBatch()
	builder := m.state.NewBuilder(batch)
	finalTxs := make([]types.Transaction, 0, len(selected))
	at := time.Unix(now, 0).UTC()

	for _, tx := range selected {
		if _, err := builder.Apply(tx, targetHeight, timestamp, m.orderBook, m.governance); err != nil {
			m.sink.Emit(events.New(events.KindTransactionRejected, at, map[string]string{"reason": err.Error()}))
			continue
		}
		finalTxs = append(finalTxs, *tx)
		if tx.Type != types.TxOrderPlace {
			continue
		}
		trades := m.orderBook.DrainTrades()
		for _, tr := range trades {
			settlement, err := buildSettlementTx(builder, tr, tx.OrderPlace.Side, timestamp)
			if err != nil {
				return nil, cerrors.Wrap(cerrors.Fatal, "chain: mint trade settlement", err)
			}
			if err := settlement.SignByAuthority(priv); err != nil {
				return nil, cerrors.Wrap(cerrors.Fatal, "chain: sign trade settlement", err)
			}
			if _, err := builder.Apply(settlement, targetHeight, timestamp, m.orderBook, m.governance); err != nil {
				return nil, cerrors.Wrap(cerrors.Fatal, "chain: apply minted trade settlement", err)
			}
			finalTxs = append(finalTxs, *settlement)
			m.sink.Emit(events.New(events.KindTradeMatched, at, map[string]string{
				"gridLocation": tr.GridLocation,
				"kwh":          fmt.Sprintf("%d", tr.KWh),
				"pricePerKwh":  fmt.Sprintf("%d", tr.PricePerKWh),
			}))
		}
	}
	if err := builder.Finish(); err != nil {
		return nil, err
	}

	block, err := types.NewBlock(targetHeight, m.tip.Hash, timestamp, proposerAddr, skips, finalTxs)
	if err != nil {
		return nil, err
	}
	if err := block.Sign(priv); err != nil {
		return nil, err
	}

	if err := m.stageBlockBody(batch, &block); err != nil {
		return nil, err
	}
	if err := m.store.Commit(batch); err != nil {
		return nil, cerrors.Wrap(cerrors.Fatal, "chain: commit proposed block", err)
	}

	id, err := block.ID()
	if err != nil {
		return nil, err
	}
	m.tip = tipRecord{Height: block.Header.Height, Hash: id}
	m.mempool.OnCommitted(&block)
	_ = m.registry.RecordBlockSuccess(proposerAddr, block.Header.Height, now, 0)

	m.sink.Emit(events.New(events.KindBlockCommitted, at, map[string]string{
		"height":   fmt.Sprintf("%d", block.Header.Height),
		"proposer": proposerAddr.String(),
	}))
	if skips > 0 {
		m.sink.Emit(events.New(events.KindAuthoritySkipped, at, map[string]string{
			"height": fmt.Sprintf("%d", block.Header.Height),
			"skips":  fmt.Sprintf("%d", skips),
		}))
	}
	return &block, nil
}

// buildSettlementTx mints the EnergyTrade settlement transaction for a
// single order-book fill: Sender/Counterparty record the real trading
// parties (buyer pays seller), nonced against the buyer's current
// in-block account state, ready for the proposer to sign via
// SignByAuthority (spec.md §9 open-question resolution). GridLocation
// carries through from the trade; EnergySource has no representation in
// OrderPlacePayload, so settlements record it as EnergySourceGrid (see
// DESIGN.md).
func buildSettlementTx(builder *state.Builder, tr orderbook.Trade, takerSide types.Side, timestamp int64) (*types.Transaction, error) {
	buyer, seller := tr.BuyerSeller(takerSide)
	nonce, err := builder.NextNonce(buyer)
	if err != nil {
		return nil, err
	}
	return &types.Transaction{
		Nonce:  nonce,
		Sender: buyer,
		Type:   types.TxEnergyTrade,
		EnergyTrade: &types.EnergyTradePayload{
			OrderRef:           tr.MakerOrderID,
			Counterparty:       seller,
			KWh:                tr.KWh,
			PricePerKWh:        tr.PricePerKWh,
			Source:             types.EnergySourceGrid,
			GridLocation:       tr.GridLocation,
			DeliveryTime:       timestamp,
			SettledByAuthority: true,
		},
	}, nil
}
