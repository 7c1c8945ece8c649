// Package crypto supplies the per-user master key and the symmetric
// primitives the attachment registry wraps content keys with.
//
// Per-attachment keys are bound to a single master key so a device can
// re-key the master secret without re-encrypting any blob: only the
// wrapped keys need re-wrapping.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// MasterKeySize is the size of the derived master key in bytes.
	MasterKeySize = chacha20poly1305.KeySize

	// ContentKeySize is the size of a per-attachment content key.
	ContentKeySize = chacha20poly1305.KeySize

	// SaltSize is the size of the argon2id derivation salt.
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrKeyUnavailable is returned when no master key is provisioned.
var ErrKeyUnavailable = errors.New("master key is not provisioned")

// Provider supplies the user master key and symmetric encrypt/decrypt
// primitives. MasterKey fails with ErrKeyUnavailable when unset.
type Provider interface {
	MasterKey() ([]byte, error)
	Encrypt(key, plaintext []byte) ([]byte, error)
	Decrypt(key, ciphertext []byte) ([]byte, error)
	GenerateRandomKey() ([]byte, error)
}

// Vault is the default Provider. The master key is either set directly
// or derived from a passphrase with argon2id.
type Vault struct {
	mu        sync.RWMutex
	masterKey []byte
}

// NewVault returns an unprovisioned vault.
func NewVault() *Vault {
	return &Vault{}
}

// SetMasterKey installs a raw master key.
func (v *Vault) SetMasterKey(key []byte) error {
	if len(key) != MasterKeySize {
		return fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(key))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.masterKey = append([]byte(nil), key...)
	return nil
}

// Provision derives and installs the master key from a passphrase and
// salt using argon2id.
func (v *Vault) Provision(passphrase string, salt []byte) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase is required")
	}
	if len(salt) != SaltSize {
		return fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, MasterKeySize)
	return v.SetMasterKey(key)
}

// Clear forgets the master key. Subsequent MasterKey calls fail with
// ErrKeyUnavailable until the vault is provisioned again.
func (v *Vault) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.masterKey = nil
}

// MasterKey returns the provisioned master key.
func (v *Vault) MasterKey() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.masterKey == nil {
		return nil, ErrKeyUnavailable
	}
	return append([]byte(nil), v.masterKey...), nil
}

// Encrypt seals plaintext with XChaCha20-Poly1305 under key. The random
// nonce is prepended to the returned ciphertext.
func (v *Vault) Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt with the same key.
func (v *Vault) Decrypt(key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plain, nil
}

// GenerateRandomKey returns a fresh random content key.
func (v *Vault) GenerateRandomKey() ([]byte, error) {
	key := make([]byte, ContentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateSalt returns a fresh random derivation salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

var _ Provider = (*Vault)(nil)
