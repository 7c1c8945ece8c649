// Package blob is the content-addressed chunked ciphertext store
// backing attachments. Plaintext never touches disk: every chunk is
// compressed and sealed with the per-attachment content key before it
// is written under its content hash.
package blob

import (
	"context"
	"io"

	"notesafe/internal/crypto"
	"notesafe/internal/models"
)

// Descriptor describes ciphertext written for one content item. It
// carries everything a later read needs except the content key itself.
type Descriptor struct {
	Hash            string
	HashAlgorithm   models.HashAlgorithm
	IV              string
	Salt            string
	Algorithm       string
	ChunkSize       int
	PlaintextLength int64
	MimeType        string
}

// CipherParams converts the descriptor into the record's decrypt
// parameters.
func (d Descriptor) CipherParams() models.CipherParams {
	return models.CipherParams{
		IV:              d.IV,
		Salt:            d.Salt,
		Algorithm:       d.Algorithm,
		ChunkSize:       d.ChunkSize,
		PlaintextLength: d.PlaintextLength,
	}
}

// Transport is the blob storage surface the registry depends on.
//
// DeleteFile returns false (not an error) when deletion is deferred,
// for example because the remote copy could not be removed yet.
// DownloadFile is a no-op returning true when the ciphertext is
// already local.
type Transport interface {
	WriteEncrypted(ctx context.Context, data []byte, mimeType string, key crypto.ContentKey) (Descriptor, error)
	ReadEncrypted(ctx context.Context, hash string, key crypto.ContentKey, params models.CipherParams) ([]byte, error)
	DeleteFile(ctx context.Context, hash string, localOnly bool) (bool, error)
	DownloadFile(ctx context.Context, groupID, hash string, chunkSize int, meta models.Metadata) (bool, error)
}

// Remote is a source of ciphertext for hashes not materialized
// locally, and the target uploads push to.
type Remote interface {
	Fetch(ctx context.Context, hash string) (io.ReadCloser, error)
	Push(ctx context.Context, hash string, r io.Reader) error
	Delete(ctx context.Context, hash string) error
}
