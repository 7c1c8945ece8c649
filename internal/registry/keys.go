package registry

import (
	"context"
	"errors"

	"notesafe/internal/crypto"
)

// encryptionKey returns the user master key, caching it per registry
// instance. The cache is cleared by InvalidateKeyCache when the master
// key changes.
func (r *Registry) encryptionKey() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.masterKey != nil {
		return r.masterKey, nil
	}
	key, err := r.keys.MasterKey()
	if err != nil {
		if errors.Is(err, crypto.ErrKeyUnavailable) {
			return nil, keyUnavailable(err)
		}
		return nil, err
	}
	r.masterKey = key
	return key, nil
}

// InvalidateKeyCache drops the cached master key. Call after the user
// re-keys or signs out.
func (r *Registry) InvalidateKeyCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masterKey = nil
}

// GenerateKey returns a fresh random content key. It fails with a
// key-unavailable error when no master key is provisioned, since a key
// that cannot be wrapped is useless. Nothing is persisted; the caller
// supplies the key into a subsequent Add.
func (r *Registry) GenerateKey(ctx context.Context) (crypto.ContentKey, error) {
	if _, err := r.encryptionKey(); err != nil {
		return crypto.ContentKey{}, err
	}
	raw, err := r.keys.GenerateRandomKey()
	if err != nil {
		return crypto.ContentKey{}, err
	}
	return crypto.NewContentKey(raw), nil
}

// DecryptKey unwraps a record's content key with the master key.
func (r *Registry) DecryptKey(ctx context.Context, wrapped []byte) (crypto.ContentKey, error) {
	masterKey, err := r.encryptionKey()
	if err != nil {
		return crypto.ContentKey{}, err
	}
	plain, err := r.keys.Decrypt(masterKey, wrapped)
	if err != nil {
		return crypto.ContentKey{}, decryptionError(err)
	}
	key, err := crypto.UnmarshalContentKey(plain)
	if err != nil {
		return crypto.ContentKey{}, decryptionError(err)
	}
	return key, nil
}

func (r *Registry) wrapKey(key crypto.ContentKey) ([]byte, error) {
	masterKey, err := r.encryptionKey()
	if err != nil {
		return nil, err
	}
	plain, err := key.Marshal()
	if err != nil {
		return nil, validationError(err)
	}
	return r.keys.Encrypt(masterKey, plain)
}
