package types

import (
	"encoding/json"
	"fmt"

	"energychain/crypto"
)

// BlockID is the hash of a block's header.
type BlockID = crypto.Hash

// BlockHeader carries everything needed to verify a block without its
// transaction bodies (spec.md §3 "Block" / §4.4 proposal pipeline). Skips
// records how many unhealthy authorities the round-robin schedule passed
// over before reaching Proposer (spec.md §4.8); validators recompute the
// selection, liveness check included, and reject a header whose Skips
// differs.
type BlockHeader struct {
	Height    uint64         `json:"height"`
	PrevHash  BlockID        `json:"prevHash"`
	Timestamp int64          `json:"timestamp"`
	Proposer  crypto.Address `json:"proposer"`
	Skips     uint32         `json:"skips"`
	TxRoot    crypto.Hash    `json:"txRoot"`
	TxCount   uint32         `json:"txCount"`
	Signature []byte         `json:"signature"`
}

// canonicalHeader omits the signature: the header is signed over, and
// hashed over, the same canonical byte sequence.
type canonicalHeader struct {
	Height    uint64         `json:"height"`
	PrevHash  BlockID        `json:"prevHash"`
	Timestamp int64          `json:"timestamp"`
	Proposer  crypto.Address `json:"proposer"`
	Skips     uint32         `json:"skips"`
	TxRoot    crypto.Hash    `json:"txRoot"`
	TxCount   uint32         `json:"txCount"`
}

func (h BlockHeader) canonical() canonicalHeader {
	return canonicalHeader{
		Height:    h.Height,
		PrevHash:  h.PrevHash,
		Timestamp: h.Timestamp,
		Proposer:  h.Proposer,
		Skips:     h.Skips,
		TxRoot:    h.TxRoot,
		TxCount:   h.TxCount,
	}
}

// SigningBytes returns the canonical encoding the proposer signs and the
// block id is hashed over.
func (h BlockHeader) SigningBytes() ([]byte, error) {
	return json.Marshal(h.canonical())
}

// Hash computes the block id: the hash of the header's canonical encoding
// (signature excluded, matching the teacher's header-hash-excludes-sig
// convention in consensus/bft).
func (h BlockHeader) Hash() (BlockID, error) {
	b, err := h.SigningBytes()
	if err != nil {
		return BlockID{}, err
	}
	return crypto.SumHash(b), nil
}

// Block is a full block: header plus the ordered transaction list the
// header's TxRoot commits to.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
}

// NewBlock assembles a block header (Merkle root and tx count derived from
// txs) ready for signing.
func NewBlock(height uint64, prevHash BlockID, timestamp int64, proposer crypto.Address, skips uint32, txs []Transaction) (Block, error) {
	leaves := make([]crypto.Hash, len(txs))
	for i := range txs {
		id, err := txs[i].Hash()
		if err != nil {
			return Block{}, fmt.Errorf("block: hashing tx %d: %w", i, err)
		}
		leaves[i] = id
	}
	header := BlockHeader{
		Height:    height,
		PrevHash:  prevHash,
		Timestamp: timestamp,
		Proposer:  proposer,
		Skips:     skips,
		TxRoot:    crypto.MerkleRoot(leaves),
		TxCount:   uint32(len(txs)),
	}
	return Block{Header: header, Transactions: txs}, nil
}

// Sign signs the block header with the proposer's key, setting
// Header.Signature.
func (b *Block) Sign(priv *crypto.PrivateKey) error {
	msg, err := b.Header.SigningBytes()
	if err != nil {
		return err
	}
	b.Header.Signature = priv.Sign(msg)
	return nil
}

// VerifySignature checks the header's signature against the proposer's
// claimed address, given the proposer's public key.
func (b Block) VerifySignature(pub *crypto.PublicKey) error {
	msg, err := b.Header.SigningBytes()
	if err != nil {
		return err
	}
	return crypto.VerifySignature(pub, msg, b.Header.Signature, b.Header.Proposer)
}

// VerifyTxRoot recomputes the Merkle root over Transactions and compares it
// against the header's committed TxRoot.
func (b Block) VerifyTxRoot() error {
	leaves := make([]crypto.Hash, len(b.Transactions))
	for i := range b.Transactions {
		id, err := b.Transactions[i].Hash()
		if err != nil {
			return fmt.Errorf("block: hashing tx %d: %w", i, err)
		}
		leaves[i] = id
	}
	if got := crypto.MerkleRoot(leaves); got != b.Header.TxRoot {
		return fmt.Errorf("block: tx root mismatch: header says %s, computed %s", b.Header.TxRoot, got)
	}
	if int(b.Header.TxCount) != len(b.Transactions) {
		return fmt.Errorf("block: tx count mismatch: header says %d, got %d", b.Header.TxCount, len(b.Transactions))
	}
	return nil
}

// ID returns the block's id (the header hash).
func (b Block) ID() (BlockID, error) {
	return b.Header.Hash()
}
