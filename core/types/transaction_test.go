package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/crypto"
)

func signedTransfer(t *testing.T, priv *crypto.PrivateKey, nonce uint64) *Transaction {
	t.Helper()
	_, toPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := &Transaction{
		Nonce: nonce,
		Type:  TxTransfer,
		Transfer: &TransferPayload{
			To:     toPub.Address(),
			Amount: 100,
		},
	}
	require.NoError(t, tx.Sign(priv))
	return tx
}

func TestTransactionSignAndVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := signedTransfer(t, priv, 1)
	require.Equal(t, pub.Address(), tx.Sender)
	require.NoError(t, tx.VerifySignature(pub))
}

func TestTransactionVerifyFailsOnTamperedPayload(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := signedTransfer(t, priv, 1)
	tx.Transfer.Amount = 999
	require.Error(t, tx.VerifySignature(pub))
}

func TestTransactionHashIsStableAndCached(t *testing.T) {
	priv, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := signedTransfer(t, priv, 1)
	h1, err := tx.Hash()
	require.NoError(t, err)
	h2, err := tx.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestValidateShapeRejectsZeroAmountTransfer(t *testing.T) {
	priv, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := signedTransfer(t, priv, 1)
	tx.Transfer.Amount = 0
	require.Error(t, tx.ValidateShape())
}

func TestValidateShapeRejectsUnknownEnergySource(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := &Transaction{
		Nonce: 1,
		Type:  TxEnergyTrade,
		EnergyTrade: &EnergyTradePayload{
			OrderRef:     crypto.SumHash([]byte("order")),
			Counterparty: pub.Address(),
			KWh:          10,
			PricePerKWh:  5,
			Source:       "nuclear",
			GridLocation: "grid-1",
		},
	}
	require.NoError(t, tx.Sign(priv))
	require.Error(t, tx.ValidateShape())
}

func TestValidateShapeRejectsInvalidVoteChoice(t *testing.T) {
	priv, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := &Transaction{
		Nonce: 1,
		Type:  TxGovernance,
		Governance: &GovernancePayload{
			ProposalID: "prop-1",
			Action:     GovVote,
			Choice:     "maybe",
		},
	}
	require.NoError(t, tx.Sign(priv))
	require.Error(t, tx.ValidateShape())
}

func TestValidateShapeAcceptsWellFormedOrderPlace(t *testing.T) {
	priv, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := &Transaction{
		Nonce: 1,
		Type:  TxOrderPlace,
		OrderPlace: &OrderPlacePayload{
			Side:         SideBuy,
			KWh:          10,
			PricePerKWh:  5,
			GridLocation: "grid-1",
		},
	}
	require.NoError(t, tx.Sign(priv))
	require.NoError(t, tx.ValidateShape())
}
