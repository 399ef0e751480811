// Package secrets provides the symmetric encryption service used to protect
// credentials at rest, plus master-key management via the OS keyring.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens opaque blobs. Open fails on tampered or
// malformed input.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(opaque []byte) ([]byte, error)
}

// KeySize is the required master key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrMalformed indicates an opaque blob too short to contain a nonce.
var ErrMalformed = errors.New("secrets: malformed ciphertext")

// aeadCipher implements Cipher with XChaCha20-Poly1305. The random nonce
// is prepended to the ciphertext.
type aeadCipher struct {
	key []byte
}

// NewCipher creates a Cipher from a 32-byte master key.
func NewCipher(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("secrets: key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &aeadCipher{key: k}, nil
}

func (c *aeadCipher) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *aeadCipher) Open(opaque []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(opaque) < aead.NonceSize() {
		return nil, ErrMalformed
	}
	nonce, ciphertext := opaque[:aead.NonceSize()], opaque[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: open: %w", err)
	}
	return plaintext, nil
}

const masterKeyName = "master-key"

// LoadKey returns the master key from the OS keyring, creating a fresh
// random key on first use. fileDir is the fallback location when no native
// keyring backend is available.
func LoadKey(serviceName, fileDir string) ([]byte, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	item, err := ring.Get(masterKeyName)
	if err == nil {
		if len(item.Data) != KeySize {
			return nil, fmt.Errorf("keyring master key has wrong size %d", len(item.Data))
		}
		return item.Data, nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, fmt.Errorf("read master key: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := ring.Set(keyring.Item{Key: masterKeyName, Data: key}); err != nil {
		return nil, fmt.Errorf("store master key: %w", err)
	}
	return key, nil
}
