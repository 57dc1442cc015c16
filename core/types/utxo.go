package types

import (
	"fmt"

	"energychain/crypto"
)

// UTXORef identifies a single unspent output: the transaction that created
// it and its index within that transaction's output list.
type UTXORef struct {
	TxID  TxID   `json:"txId"`
	Index uint32 `json:"index"`
}

// String renders the ref as "<txid>:<index>", the key form used for KvStore
// lookups in the utxo namespace (spec.md §3 "UTXO").
func (r UTXORef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID.String(), r.Index)
}

// UTXO is a single unspent transaction output created by a Transfer or the
// token leg of an EnergyTrade settlement. energychain's ledger is a hybrid
// of UTXO (token movement) and Account (balance/nonce bookkeeping); a
// Transfer both creates a UTXO for the recipient and credits the
// recipient's Account balance, with the UTXO serving as the auditable
// provenance trail spec.md §3 requires.
type UTXO struct {
	Ref    UTXORef        `json:"ref"`
	Owner  crypto.Address `json:"owner"`
	Amount uint64         `json:"amount"`
	Spent  bool           `json:"spent"`
}

// NewUTXO constructs an unspent output.
func NewUTXO(ref UTXORef, owner crypto.Address, amount uint64) UTXO {
	return UTXO{Ref: ref, Owner: owner, Amount: amount}
}
