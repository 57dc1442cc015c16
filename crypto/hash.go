// Package crypto provides the hashing, address derivation, and Ed25519
// signing primitives shared by every other package in energychain.
package crypto

import (
	"encoding/hex"
	"errors"

	"lukechampine.com/blake3"
)

// HashSize is the width in bytes of every digest produced by Hash.
const HashSize = 32

// Hash is a fixed-width 256-bit digest used for transaction ids, block ids,
// and Merkle tree nodes.
type Hash [HashSize]byte

// ZeroHash is the sentinel digest returned for an empty Merkle leaf set.
var ZeroHash = Hash{}

// SumHash computes the canonical digest of b.
func SumHash(b []byte) Hash {
	return Hash(blake3.Sum256(b))
}

// Bytes returns a copy of the digest bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// String renders the digest as lowercase hex, the transport encoding spec.md
// requires for hashes.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// HashFromHex decodes a hex-encoded digest produced by Hash.String.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	if len(b) != HashSize {
		return Hash{}, errors.New("crypto: hash must be 32 bytes")
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MerkleRoot computes the deterministic binary Merkle root over leaves.
// Odd levels duplicate their final leaf; an empty leaf set hashes to
// ZeroHash.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return ZeroHash
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		buf := make([]byte, 2*HashSize)
		for i := 0; i < len(level); i += 2 {
			copy(buf[:HashSize], level[i][:])
			copy(buf[HashSize:], level[i+1][:])
			next[i/2] = SumHash(buf)
		}
		level = next
	}
	return level[0]
}
