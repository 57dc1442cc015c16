package types

import "energychain/crypto"

// AccountKind tags what role an account plays, mirroring spec.md §3
// "Account": the kind affects which transaction types the state manager
// admits from that sender, but never its ability to hold a balance.
type AccountKind byte

const (
	AccountRegular AccountKind = iota
	AccountProducer
	AccountConsumer
	AccountAuthority
)

func (k AccountKind) String() string {
	switch k {
	case AccountRegular:
		return "Regular"
	case AccountProducer:
		return "Producer"
	case AccountConsumer:
		return "Consumer"
	case AccountAuthority:
		return "Authority"
	default:
		return "Unknown"
	}
}

// Account is the fungible-balance side of the hybrid ledger (spec.md §3):
// every address has exactly one Account record tracking its spendable
// balance and the next nonce it must present.
type Account struct {
	Address crypto.Address `json:"address"`
	Kind    AccountKind    `json:"kind"`
	Balance uint64         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
}

// NewAccount returns a zero-balance, zero-nonce account of the given kind.
func NewAccount(addr crypto.Address, kind AccountKind) Account {
	return Account{Address: addr, Kind: kind}
}

// CanDebit reports whether amount can be subtracted from the account's
// balance without underflow.
func (a Account) CanDebit(amount uint64) bool {
	return a.Balance >= amount
}
