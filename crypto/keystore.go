package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// keystoreFile is the on-disk encrypted envelope for an authority's Ed25519
// private key, adapted from the teacher's Ethereum-v3-keystore approach
// (crypto/keystore.go) to an Ed25519 key and a plain scrypt+AES-GCM
// envelope instead of the secp256k1-specific go-ethereum keystore format,
// which cannot encode an Ed25519 key without reimplementing its internals.
type keystoreFile struct {
	Version int    `json:"version"`
	Salt    string `json:"salt"`
	Nonce   string `json:"nonce"`
	Cipher  string `json:"ciphertext"`
}

const keystoreVersion = 1

// scrypt cost parameters; N must be a power of two.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// SaveToKeystore encrypts key under passphrase and writes it to path with
// 0600 permissions, creating parent directories with 0700 as needed.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, key.Bytes(), nil)

	envelope := keystoreFile{
		Version: keystoreVersion,
		Salt:    hex.EncodeToString(salt),
		Nonce:   hex.EncodeToString(nonce),
		Cipher:  hex.EncodeToString(ciphertext),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("crypto: keystore %s not found: %w", path, err)
		}
		return nil, err
	}
	var envelope keystoreFile
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("crypto: malformed keystore: %w", err)
	}
	if envelope.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", envelope.Version)
	}
	salt, err := hex.DecodeString(envelope.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, err
	}
	ciphertext, err := hex.DecodeString(envelope.Cipher)
	if err != nil {
		return nil, err
	}
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore decryption failed: %w", err)
	}
	return PrivateKeyFromBytes(plaintext)
}
