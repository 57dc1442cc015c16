package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"energychain/crypto"
)

// TxID is the canonical identifier of a transaction: the hash of its
// canonical encoding.
type TxID = crypto.Hash

// TxType tags the payload carried by a Transaction. The set is closed and
// part of the consensus spec (spec.md §9 "Polymorphic transactions").
type TxType byte

const (
	TxTransfer    TxType = 0x01
	TxEnergyTrade TxType = 0x02
	TxOrderPlace  TxType = 0x03
	TxGovernance  TxType = 0x04
)

func (t TxType) String() string {
	switch t {
	case TxTransfer:
		return "Transfer"
	case TxEnergyTrade:
		return "EnergyTrade"
	case TxOrderPlace:
		return "OrderPlace"
	case TxGovernance:
		return "Governance"
	default:
		return fmt.Sprintf("TxType(0x%02x)", byte(t))
	}
}

// Side is a buy or sell order direction.
type Side byte

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// EnergySource tags the provenance of traded energy.
type EnergySource string

const (
	EnergySourceSolar   EnergySource = "solar"
	EnergySourceWind    EnergySource = "wind"
	EnergySourceHydro   EnergySource = "hydro"
	EnergySourceBattery EnergySource = "battery"
	EnergySourceGrid    EnergySource = "grid"
)

func (s EnergySource) Valid() bool {
	switch s {
	case EnergySourceSolar, EnergySourceWind, EnergySourceHydro, EnergySourceBattery, EnergySourceGrid:
		return true
	default:
		return false
	}
}

// GovAction tags the operation a Governance transaction performs.
type GovAction byte

const (
	GovSubmit GovAction = iota + 1
	GovVote
	GovExecute
)

// VoteChoice is a governance ballot selection.
type VoteChoice string

const (
	VoteYes     VoteChoice = "yes"
	VoteNo      VoteChoice = "no"
	VoteAbstain VoteChoice = "abstain"
)

func (c VoteChoice) Valid() bool {
	switch c {
	case VoteYes, VoteNo, VoteAbstain:
		return true
	default:
		return false
	}
}

// TransferPayload moves tokens from the sender to an address.
type TransferPayload struct {
	To     crypto.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// EnergyTradePayload settles a matched order between two traders. Per the
// open-question resolution in SPEC_FULL.md §9.1, the settlement is
// authorized by the block proposer rather than carrying a second
// counterparty signature: SettledByAuthority is always true for a
// well-formed EnergyTrade.
type EnergyTradePayload struct {
	OrderRef           crypto.Hash    `json:"orderRef"`
	Counterparty       crypto.Address `json:"counterparty"`
	KWh                uint64         `json:"kwh"`
	PricePerKWh        uint64         `json:"pricePerKwh"`
	Source             EnergySource   `json:"source"`
	GridLocation       string         `json:"gridLocation"`
	DeliveryTime       int64          `json:"deliveryTime"`
	CarbonCredits      uint64         `json:"carbonCredits"`
	SettledByAuthority bool           `json:"settledByAuthority"`
}

// OrderPlacePayload requests a new resting order in the order book. It is
// mempool-only: it never mutates UTXO/account state directly.
type OrderPlacePayload struct {
	Side         Side   `json:"side"`
	KWh          uint64 `json:"kwh"`
	PricePerKWh  uint64 `json:"pricePerKwh"`
	GridLocation string `json:"gridLocation"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// GovernancePayload submits, votes on, or executes a governance proposal.
type GovernancePayload struct {
	ProposalID string     `json:"proposalId"`
	Action     GovAction  `json:"action"`
	Choice     VoteChoice `json:"choice,omitempty"`
	Payload    []byte     `json:"payload,omitempty"`
}

// Transaction is the single wire/consensus envelope for every mutating
// operation on the chain. Exactly one of the *Payload fields is non-nil,
// selected by Type.
type Transaction struct {
	Nonce     uint64         `json:"nonce"`
	Sender    crypto.Address `json:"sender"`
	Type      TxType         `json:"type"`
	Signature []byte         `json:"signature"`

	Transfer    *TransferPayload    `json:"transfer,omitempty"`
	EnergyTrade *EnergyTradePayload `json:"energyTrade,omitempty"`
	OrderPlace  *OrderPlacePayload  `json:"orderPlace,omitempty"`
	Governance  *GovernancePayload  `json:"governance,omitempty"`

	id     *TxID
	signer *crypto.PublicKey
}

// canonicalTx is the struct actually hashed and signed: it omits the
// signature and the unexported caches, and must round-trip through
// encoding/json deterministically. Go's encoding/json sorts map keys
// (used inside GovernancePayload.Payload only indirectly, since Payload is
// an opaque byte blob) so no extra sorting step is required here.
type canonicalTx struct {
	Nonce       uint64              `json:"nonce"`
	Sender      crypto.Address      `json:"sender"`
	Type        TxType              `json:"type"`
	Transfer    *TransferPayload    `json:"transfer,omitempty"`
	EnergyTrade *EnergyTradePayload `json:"energyTrade,omitempty"`
	OrderPlace  *OrderPlacePayload  `json:"orderPlace,omitempty"`
	Governance  *GovernancePayload  `json:"governance,omitempty"`
}

func (tx *Transaction) canonical() canonicalTx {
	return canonicalTx{
		Nonce:       tx.Nonce,
		Sender:      tx.Sender,
		Type:        tx.Type,
		Transfer:    tx.Transfer,
		EnergyTrade: tx.EnergyTrade,
		OrderPlace:  tx.OrderPlace,
		Governance:  tx.Governance,
	}
}

// SigningBytes returns the canonical byte sequence the sender signs and the
// id is hashed over.
func (tx *Transaction) SigningBytes() ([]byte, error) {
	return json.Marshal(tx.canonical())
}

// Hash computes the transaction id: the hash of its canonical encoding.
// The id is cached after the first call since transactions are immutable
// once constructed.
func (tx *Transaction) Hash() (TxID, error) {
	if tx.id != nil {
		return *tx.id, nil
	}
	b, err := tx.SigningBytes()
	if err != nil {
		return TxID{}, err
	}
	h := crypto.SumHash(b)
	tx.id = &h
	return h, nil
}

// Sign signs the transaction with priv, setting Sender and Signature.
func (tx *Transaction) Sign(priv *crypto.PrivateKey) error {
	tx.Sender = priv.PubKey().Address()
	tx.id = nil
	msg, err := tx.SigningBytes()
	if err != nil {
		return err
	}
	tx.Signature = priv.Sign(msg)
	tx.signer = priv.PubKey()
	return nil
}

// VerifySignature checks the transaction's signature against its claimed
// Sender, given the sender's public key (callers obtain this from the
// account/authority registry since the wire format does not embed keys).
func (tx *Transaction) VerifySignature(pub *crypto.PublicKey) error {
	msg, err := tx.SigningBytes()
	if err != nil {
		return err
	}
	return crypto.VerifySignature(pub, msg, tx.Signature, tx.Sender)
}

// SignByAuthority signs tx with a block-proposing authority's key without
// touching Sender: used for proposer-settled EnergyTrade transactions
// (SettledByAuthority true), where Sender/Counterparty record the actual
// trading parties but the signature authenticates the authority's
// attestation that the settlement matches a real order-book fill, in lieu
// of a second counterparty signature (spec.md §9, open-question
// resolution).
func (tx *Transaction) SignByAuthority(priv *crypto.PrivateKey) error {
	if tx.EnergyTrade == nil || !tx.EnergyTrade.SettledByAuthority {
		return fmt.Errorf("transaction: SignByAuthority only applies to authority-settled energy trades")
	}
	tx.id = nil
	msg, err := tx.SigningBytes()
	if err != nil {
		return err
	}
	tx.Signature = priv.Sign(msg)
	tx.signer = priv.PubKey()
	return nil
}

// VerifyAuthoritySignature checks tx's signature against the signing
// authority's public key directly, bypassing the Sender-address binding
// VerifySignature enforces: an authority-settled EnergyTrade is signed by
// the proposer, not by tx.Sender.
func (tx *Transaction) VerifyAuthoritySignature(pub *crypto.PublicKey) error {
	msg, err := tx.SigningBytes()
	if err != nil {
		return err
	}
	if !pub.Verify(msg, tx.Signature) {
		return fmt.Errorf("transaction: authority signature verification failed")
	}
	return nil
}

// ValidateShape performs kind-specific, state-independent bounds checks
// (spec.md §3 "Transaction" invariants): positive amounts, a known energy
// source tag, and non-empty grid locations. It does not check nonce
// monotonicity or signature validity against live state — that is the
// caller's job (mempool admission does sender/nonce sanity only; full
// validation belongs to the proposer and validators per spec.md §4.4/§4.8).
func (tx *Transaction) ValidateShape() error {
	if tx.Sender.IsZero() {
		return fmt.Errorf("transaction: missing sender")
	}
	if len(tx.Signature) == 0 {
		return fmt.Errorf("transaction: missing signature")
	}
	switch tx.Type {
	case TxTransfer:
		if tx.Transfer == nil {
			return fmt.Errorf("transaction: transfer payload missing")
		}
		if tx.Transfer.Amount == 0 {
			return fmt.Errorf("transaction: transfer amount must be positive")
		}
		if tx.Transfer.To.IsZero() {
			return fmt.Errorf("transaction: transfer destination missing")
		}
	case TxEnergyTrade:
		if tx.EnergyTrade == nil {
			return fmt.Errorf("transaction: energy trade payload missing")
		}
		et := tx.EnergyTrade
		if et.KWh == 0 {
			return fmt.Errorf("transaction: energy trade kwh must be positive")
		}
		if et.PricePerKWh == 0 {
			return fmt.Errorf("transaction: energy trade price must be positive")
		}
		if !et.Source.Valid() {
			return fmt.Errorf("transaction: unknown energy source %q", et.Source)
		}
		if et.GridLocation == "" {
			return fmt.Errorf("transaction: grid location required")
		}
		if et.Counterparty.IsZero() {
			return fmt.Errorf("transaction: counterparty required")
		}
	case TxOrderPlace:
		if tx.OrderPlace == nil {
			return fmt.Errorf("transaction: order place payload missing")
		}
		op := tx.OrderPlace
		if op.Side != SideBuy && op.Side != SideSell {
			return fmt.Errorf("transaction: unknown order side")
		}
		if op.KWh == 0 {
			return fmt.Errorf("transaction: order kwh must be positive")
		}
		if op.PricePerKWh == 0 {
			return fmt.Errorf("transaction: order price must be positive")
		}
		if op.GridLocation == "" {
			return fmt.Errorf("transaction: grid location required")
		}
	case TxGovernance:
		if tx.Governance == nil {
			return fmt.Errorf("transaction: governance payload missing")
		}
		gv := tx.Governance
		if gv.ProposalID == "" {
			return fmt.Errorf("transaction: proposal id required")
		}
		switch gv.Action {
		case GovSubmit, GovExecute:
		case GovVote:
			if !gv.Choice.Valid() {
				return fmt.Errorf("transaction: invalid vote choice %q", gv.Choice)
			}
		default:
			return fmt.Errorf("transaction: unknown governance action")
		}
	default:
		return fmt.Errorf("transaction: unknown transaction type 0x%02x", byte(tx.Type))
	}
	return nil
}

// SortTxIDs returns a sorted copy of ids, used where a deterministic
// ordering of transaction ids is required (e.g. Merkle leaf ordering
// matches block.Transactions order, not a sorted order — SortTxIDs exists
// for indices that need a stable iteration order instead).
func SortTxIDs(ids []TxID) []TxID {
	out := append([]TxID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
