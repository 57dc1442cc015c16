package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/core/types"
	"energychain/crypto"
	"energychain/storage"
)

type noopOrderBook struct{ err error }

func (n noopOrderBook) StagePlaceOrder(batch *storage.NamespacedBatch, owner crypto.Address, txID types.TxID, payload types.OrderPlacePayload, now int64) error {
	return n.err
}

type noopGovernance struct{ err error }

func (n noopGovernance) StageApply(batch *storage.NamespacedBatch, sender crypto.Address, payload types.GovernancePayload, height uint64) error {
	return n.err
}

func newFundedState(t *testing.T, addr crypto.Address, balance uint64) *State {
	t.Helper()
	store := storage.NewKvStore(storage.NewMemDB())
	s := New(store)
	acct := types.NewAccount(addr, types.AccountRegular)
	acct.Balance = balance
	batch := store.NewBatch()
	raw, err := json.Marshal(acct)
	require.NoError(t, err)
	batch.Put(storage.NamespaceAccounts, addr.String(), raw)
	require.NoError(t, store.Commit(batch))
	return s
}

func TestApplyBlockTransferMovesBalance(t *testing.T) {
	priv, senderPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	s := newFundedState(t, senderPub.Address(), 1000)

	tx := &types.Transaction{Nonce: 0, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 300}}
	require.NoError(t, tx.Sign(priv))

	block, err := types.NewBlock(1, crypto.ZeroHash, 1000, senderPub.Address(), 0, []types.Transaction{*tx})
	require.NoError(t, err)
	require.NoError(t, s.ApplyBlock(&block, noopOrderBook{}, noopGovernance{}))

	sender, err := s.Account(senderPub.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(700), sender.Balance)
	require.Equal(t, uint64(1), sender.Nonce)

	dest, err := s.Account(destPub.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(300), dest.Balance)
}

func TestApplyBlockRejectsInsufficientBalance(t *testing.T) {
	priv, senderPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	s := newFundedState(t, senderPub.Address(), 100)

	tx := &types.Transaction{Nonce: 0, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 300}}
	require.NoError(t, tx.Sign(priv))

	block, err := types.NewBlock(1, crypto.ZeroHash, 1000, senderPub.Address(), 0, []types.Transaction{*tx})
	require.NoError(t, err)
	require.Error(t, s.ApplyBlock(&block, noopOrderBook{}, noopGovernance{}))

	sender, err := s.Account(senderPub.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(100), sender.Balance)
}

func TestApplyBlockAbandonsEntireBatchOnLaterFailure(t *testing.T) {
	priv, senderPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	s := newFundedState(t, senderPub.Address(), 1000)

	tx1 := &types.Transaction{Nonce: 0, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 100}}
	require.NoError(t, tx1.Sign(priv))
	tx2 := &types.Transaction{Nonce: 1, Type: types.TxOrderPlace, OrderPlace: &types.OrderPlacePayload{Side: types.SideBuy, KWh: 1, PricePerKWh: 1, GridLocation: "g1"}}
	require.NoError(t, tx2.Sign(priv))

	block, err := types.NewBlock(1, crypto.ZeroHash, 1000, senderPub.Address(), 0, []types.Transaction{*tx1, *tx2})
	require.NoError(t, err)

	failingOrderBook := noopOrderBook{err: require.AnError}
	require.Error(t, s.ApplyBlock(&block, failingOrderBook, noopGovernance{}))

	sender, err := s.Account(senderPub.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1000), sender.Balance, "tx1's transfer must not have been committed")
}

func TestApplyBlockRejectsNonceMismatch(t *testing.T) {
	priv, senderPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	s := newFundedState(t, senderPub.Address(), 1000)

	tx := &types.Transaction{Nonce: 5, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 100}}
	require.NoError(t, tx.Sign(priv))

	block, err := types.NewBlock(1, crypto.ZeroHash, 1000, senderPub.Address(), 0, []types.Transaction{*tx})
	require.NoError(t, err)
	require.Error(t, s.ApplyBlock(&block, noopOrderBook{}, noopGovernance{}))
}
