package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// AddressPrefix tags the human-readable domain an address belongs to.
// energychain only ever mints the node domain prefix, but the type mirrors
// the teacher's multi-prefix address scheme so additional domains (e.g. a
// future sidechain) can be added without touching callers.
type AddressPrefix string

// NodePrefix is the sole address domain used by this chain.
const NodePrefix AddressPrefix = "nrg"

// AddressSize is the width in bytes of a derived address.
const AddressSize = 20

// Address is a 20-byte derivation of an Ed25519 public key, displayed as
// hex with a domain prefix (spec.md §3 "Address").
type Address struct {
	prefix AddressPrefix
	bytes  [AddressSize]byte
}

// NewAddress builds an Address from raw bytes, validating the length.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	a.prefix = prefix
	copy(a.bytes[:], b)
	return a, nil
}

// MustNewAddress is NewAddress but panics on error; used for constants and
// well-formed internal derivations.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	a, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return a
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a.bytes[:])
	return out
}

// Prefix returns the domain prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is the unset zero value.
func (a Address) IsZero() bool {
	return a.bytes == [AddressSize]byte{}
}

// String renders the address as "<prefix>1<hex>", the hex-encoded transport
// form required by spec.md §3.
func (a Address) String() string {
	return fmt.Sprintf("%s1%s", a.prefix, hex.EncodeToString(a.bytes[:]))
}

// MarshalText implements encoding.TextMarshaler so Address can be embedded
// directly in JSON-encoded entities.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses the "<prefix>1<hex>" form produced by Address.String.
func DecodeAddress(s string) (Address, error) {
	idx := indexByte(s, '1')
	if idx < 0 {
		return Address{}, errors.New("crypto: malformed address, missing prefix separator")
	}
	prefix := AddressPrefix(s[:idx])
	raw, err := hex.DecodeString(s[idx+1:])
	if err != nil {
		return Address{}, fmt.Errorf("crypto: malformed address hex: %w", err)
	}
	return NewAddress(prefix, raw)
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// PrivateKey wraps an Ed25519 signing key. spec.md §4.1 mandates an
// Edwards-curve signature scheme with 64-byte signatures; crypto/ed25519 is
// the teacher's own choice for this scheme (grounded on
// ops/seeds/tools/authority/main.go, which mints authority identities with
// this exact stdlib package).
type PrivateKey struct {
	key ed25519.PrivateKey
}

// PublicKey wraps an Ed25519 verification key.
type PublicKey struct {
	key ed25519.PublicKey
}

// GenerateKeypair produces a fresh Ed25519 keypair.
func GenerateKeypair() (*PrivateKey, *PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return &PrivateKey{key: priv}, &PublicKey{key: pub}, nil
}

// PrivateKeyFromBytes parses a 64-byte Ed25519 seed+key blob.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes", ed25519.PrivateKeySize)
	}
	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(key, b)
	return &PrivateKey{key: key}, nil
}

// Bytes returns the raw private key material.
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// PubKey derives the public key half of the pair.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: k.key.Public().(ed25519.PublicKey)}
}

// Sign produces a 64-byte Ed25519 signature over msg.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.key, msg)
}

// Bytes returns the raw public key material.
func (p *PublicKey) Bytes() []byte {
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out
}

// PublicKeyFromBytes parses a 32-byte Ed25519 public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: public key must be %d bytes", ed25519.PublicKeySize)
	}
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return &PublicKey{key: key}, nil
}

// Address derives the 20-byte address for this public key: the last 20
// bytes of Hash(pub), per spec.md §4.1.
func (p *PublicKey) Address() Address {
	digest := SumHash(p.key)
	return MustNewAddress(NodePrefix, digest[HashSize-AddressSize:])
}

// Verify reports whether sig is a valid 64-byte Ed25519 signature over msg
// by this public key.
func (p *PublicKey) Verify(msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(p.key, msg, sig)
}

// VerifySignature recovers no key; it checks a signature against an
// explicit public key and expected address, used by consensus validation
// where only the signature and claimed signer are on hand.
func VerifySignature(pub *PublicKey, msg, sig []byte, expected Address) error {
	if pub == nil {
		return errors.New("crypto: missing public key")
	}
	if !pub.Verify(msg, sig) {
		return errors.New("crypto: signature verification failed")
	}
	if pub.Address() != expected {
		return errors.New("crypto: signer address mismatch")
	}
	return nil
}
