package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// Payload is decrypted attachment content framed with its mime type.
type Payload struct {
	MimeType string
	Data     []byte
}

// DataURI frames the payload as a self-describing data URI.
func (p *Payload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, base64.StdEncoding.EncodeToString(p.Data))
}

// Read decrypts the content for hash. An unknown hash or ciphertext
// that is not local returns (nil, nil): callers use Read for
// existence-sensitive rendering. Plaintext is never cached.
func (r *Registry) Read(ctx context.Context, hash string) (*Payload, error) {
	rec, err := r.store.GetItemByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	key, err := r.DecryptKey(ctx, rec.WrappedKey)
	if err != nil {
		return nil, err
	}
	data, err := r.fs.ReadEncrypted(ctx, rec.Metadata.Hash, key, rec.CipherParams)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, decryptionError(err)
	}
	return &Payload{MimeType: rec.Metadata.MimeType, Data: data}, nil
}
