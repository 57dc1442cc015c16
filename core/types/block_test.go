package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/crypto"
)

func TestNewBlockRoundTripsMerkleRoot(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	txs := []Transaction{*signedTransfer(t, priv, 1), *signedTransfer(t, priv, 2)}
	block, err := NewBlock(1, crypto.ZeroHash, 1000, pub.Address(), 0, txs)
	require.NoError(t, err)
	require.NoError(t, block.VerifyTxRoot())
}

func TestBlockVerifyTxRootDetectsTampering(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	txs := []Transaction{*signedTransfer(t, priv, 1)}
	block, err := NewBlock(1, crypto.ZeroHash, 1000, pub.Address(), 0, txs)
	require.NoError(t, err)
	block.Transactions[0].Nonce = 999
	require.Error(t, block.VerifyTxRoot())
}

func TestBlockSignAndVerifySignature(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block, err := NewBlock(1, crypto.ZeroHash, 1000, pub.Address(), 0, nil)
	require.NoError(t, err)
	require.NoError(t, block.Sign(priv))
	require.NoError(t, block.VerifySignature(pub))
}

func TestBlockVerifySignatureFailsAfterHeaderTamper(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block, err := NewBlock(1, crypto.ZeroHash, 1000, pub.Address(), 0, nil)
	require.NoError(t, err)
	require.NoError(t, block.Sign(priv))
	block.Header.Height = 2
	require.Error(t, block.VerifySignature(pub))
}
