package genesis

import (
	"energychain/core/types"
	"energychain/crypto"
)

// Result bundles everything the chain manager needs to seed a fresh
// KvStore from a validated genesis spec: the genesis block itself plus
// the initial authority and account records it implies.
type Result struct {
	Block       types.Block
	Authorities []types.Authority
	Accounts    []types.Account
}

// Build constructs Block 0 and the initial authority/account state implied
// by spec. Block 0 carries no transactions and no signature: it is
// accepted by convention, not by authority proposal (spec.md §4.6).
func Build(spec *Spec) (Result, error) {
	block, err := types.NewBlock(0, crypto.ZeroHash, spec.GenesisTimestamp().Unix(), crypto.Address{}, 0, nil)
	if err != nil {
		return Result{}, err
	}

	authorities := make([]types.Authority, 0, len(spec.ResolvedAuthorities()))
	genesisTime := spec.GenesisTimestamp().Unix()
	for _, a := range spec.ResolvedAuthorities() {
		auth := types.NewAuthority(a.Address, a.PubKey, 0)
		auth.LastSeenAt = genesisTime
		authorities = append(authorities, auth)
	}

	accounts := make([]types.Account, 0, len(spec.ResolvedAlloc()))
	seenAuth := make(map[crypto.Address]struct{}, len(authorities))
	for _, a := range authorities {
		seenAuth[a.Address] = struct{}{}
	}
	for _, alloc := range spec.ResolvedAlloc() {
		kind := types.AccountRegular
		if _, ok := seenAuth[alloc.Address]; ok {
			kind = types.AccountAuthority
		}
		acct := types.NewAccount(alloc.Address, kind)
		acct.Balance = alloc.Amount
		accounts = append(accounts, acct)
	}
	for _, a := range authorities {
		if _, funded := indexByAddress(accounts, a.Address); !funded {
			accounts = append(accounts, types.NewAccount(a.Address, types.AccountAuthority))
		}
	}

	return Result{Block: block, Authorities: authorities, Accounts: accounts}, nil
}

func indexByAddress(accounts []types.Account, addr crypto.Address) (int, bool) {
	for i, a := range accounts {
		if a.Address == addr {
			return i, true
		}
	}
	return -1, false
}
