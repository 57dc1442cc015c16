// Package genesis loads the JSON genesis specification a node starts
// from: the initial authority set and the initial account allocations
// that seed Block 0 (spec.md §4.6 "genesis"), grounded on the teacher's
// core/genesis/spec.go (strict JSON decode, deterministic sorted
// iteration over map-valued fields, address parsing at load time rather
// than at use time).
package genesis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"energychain/crypto"
)

// AuthoritySpec describes one founding authority.
type AuthoritySpec struct {
	Address string `json:"address"`
	PubKey  string `json:"pubKey"`
}

// Spec is the full genesis document: founding authorities plus initial
// account balances, loaded once at node startup.
type Spec struct {
	ChainID       string                   `json:"chainId"`
	GenesisTime   string                   `json:"genesisTime"`
	RotationSize  uint32                   `json:"rotationSize"`
	Authorities   []AuthoritySpec          `json:"authorities"`
	Alloc         map[string]uint64        `json:"alloc"`

	genesisTimestamp time.Time
	resolvedAuth     []resolvedAuthority
	resolvedAlloc    []resolvedAlloc
}

type resolvedAuthority struct {
	Address crypto.Address
	PubKey  []byte
}

type resolvedAlloc struct {
	Address crypto.Address
	Amount  uint64
}

// Load reads and strictly validates a genesis spec from path.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis: spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("genesis: decode %q: %w", path, err)
	}
	if err := spec.resolve(); err != nil {
		return nil, fmt.Errorf("genesis: invalid spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *Spec) resolve() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.ChainID) == "" {
		return fmt.Errorf("chainId must be provided")
	}
	if s.RotationSize == 0 {
		return fmt.Errorf("rotationSize must be positive")
	}
	if len(s.Authorities) == 0 {
		return fmt.Errorf("at least one authority must be provided")
	}

	seen := map[crypto.Address]struct{}{}
	resolved := make([]resolvedAuthority, 0, len(s.Authorities))
	for i, a := range s.Authorities {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(a.Address))
		if err != nil {
			return fmt.Errorf("authorities[%d]: invalid address: %w", i, err)
		}
		pub, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(a.PubKey), "0x"))
		if err != nil {
			return fmt.Errorf("authorities[%d]: invalid pubKey: %w", i, err)
		}
		pubKey, err := crypto.PublicKeyFromBytes(pub)
		if err != nil {
			return fmt.Errorf("authorities[%d]: %w", i, err)
		}
		if pubKey.Address() != addr {
			return fmt.Errorf("authorities[%d]: address does not match pubKey", i)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("authorities[%d]: duplicate address %q", i, a.Address)
		}
		seen[addr] = struct{}{}
		resolved = append(resolved, resolvedAuthority{Address: addr, PubKey: pub})
	}
	s.resolvedAuth = resolved

	if len(s.Alloc) > 0 {
		accounts := make([]string, 0, len(s.Alloc))
		for acct := range s.Alloc {
			accounts = append(accounts, acct)
		}
		sort.Strings(accounts)
		allocs := make([]resolvedAlloc, 0, len(accounts))
		for _, acct := range accounts {
			addr, err := crypto.DecodeAddress(acct)
			if err != nil {
				return fmt.Errorf("alloc[%q]: invalid address: %w", acct, err)
			}
			allocs = append(allocs, resolvedAlloc{Address: addr, Amount: s.Alloc[acct]})
		}
		s.resolvedAlloc = allocs
	}
	return nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// ResolvedAuthorities returns the validated authority list in declaration
// order; the round-robin schedule does not rely on this order, since
// authority.Registry.ListActive sorts the active set by address.
func (s *Spec) ResolvedAuthorities() []resolvedAuthority {
	return append([]resolvedAuthority(nil), s.resolvedAuth...)
}

// ResolvedAlloc returns the validated initial balances in deterministic
// (sorted-address) order.
func (s *Spec) ResolvedAlloc() []resolvedAlloc {
	return append([]resolvedAlloc(nil), s.resolvedAlloc...)
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
