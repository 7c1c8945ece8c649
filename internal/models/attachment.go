package models

import (
	"fmt"
	"strings"
	"time"
)

// HashAlgorithm identifies the digest algorithm behind a content hash.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashBLAKE3 HashAlgorithm = "blake3"
)

var validHashAlgorithms = map[HashAlgorithm]struct{}{
	HashSHA256: {},
	HashBLAKE3: {},
}

func ParseHashAlgorithm(raw string) (HashAlgorithm, error) {
	value := HashAlgorithm(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("hash algorithm is required")
	}
	if _, ok := validHashAlgorithms[value]; !ok {
		return "", fmt.Errorf("invalid hash algorithm: %s", value)
	}
	return value, nil
}

// AttachmentKind selects a slice of a note's attachments.
type AttachmentKind string

const (
	AttachmentKindFiles  AttachmentKind = "files"
	AttachmentKindImages AttachmentKind = "images"
	AttachmentKindAll    AttachmentKind = "all"
)

var validAttachmentKinds = map[AttachmentKind]struct{}{
	AttachmentKindFiles:  {},
	AttachmentKindImages: {},
	AttachmentKindAll:    {},
}

func ParseAttachmentKind(raw string) (AttachmentKind, error) {
	value := AttachmentKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("attachment kind is required")
	}
	if _, ok := validAttachmentKinds[value]; !ok {
		return "", fmt.Errorf("invalid attachment kind: %s", value)
	}
	return value, nil
}

// LifecycleState is the explicit lifecycle of an attachment record,
// derived from its timestamp fields.
type LifecycleState string

const (
	StateActive        LifecycleState = "active"
	StatePendingUpload LifecycleState = "pending_upload"
	StateTombstoned    LifecycleState = "tombstoned"
)

// CipherParams are the parameters required to decrypt an attachment's
// ciphertext. Immutable once set.
type CipherParams struct {
	IV              string `json:"iv" yaml:"iv"`
	Salt            string `json:"salt" yaml:"salt"`
	Algorithm       string `json:"algorithm" yaml:"algorithm"`
	ChunkSize       int    `json:"chunk_size" yaml:"chunk_size"`
	PlaintextLength int64  `json:"plaintext_length" yaml:"plaintext_length"`
}

// Metadata describes the user-visible file behind an attachment.
// Mutable only by re-issuing the whole attachment, never patched.
type Metadata struct {
	Filename      string        `json:"filename" yaml:"filename"`
	MimeType      string        `json:"mime_type" yaml:"mime_type"`
	Hash          string        `json:"hash" yaml:"hash"`
	HashAlgorithm HashAlgorithm `json:"hash_algorithm" yaml:"hash_algorithm"`
}

// IsImage reports whether the attachment content is an image.
func (m Metadata) IsImage() bool {
	return strings.HasPrefix(m.MimeType, "image/")
}

// AttachmentRecord is one content-addressed encrypted attachment.
//
// The content hash is the dedup key: at most one non-tombstoned record
// exists per hash. NoteIDs is the set of notes referencing the content;
// a record whose reference set drains empty is tombstoned (DeletedAt
// set) and retained for a retention window before physical purge.
type AttachmentRecord struct {
	ID           string       `json:"id" yaml:"id"`
	NoteIDs      NoteIDSet    `json:"note_ids" yaml:"note_ids"`
	CipherParams CipherParams `json:"cipher_params" yaml:"cipher_params"`
	WrappedKey   []byte       `json:"wrapped_key" yaml:"wrapped_key"`
	Metadata     Metadata     `json:"metadata" yaml:"metadata"`
	CreatedAt    time.Time    `json:"created_at" yaml:"created_at"`
	EditedAt     *time.Time   `json:"edited_at,omitempty" yaml:"edited_at,omitempty"`
	UploadedAt   *time.Time   `json:"uploaded_at,omitempty" yaml:"uploaded_at,omitempty"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// State derives the lifecycle state from the timestamp fields.
func (r *AttachmentRecord) State() LifecycleState {
	switch {
	case r.DeletedAt != nil:
		return StateTombstoned
	case r.UploadedAt == nil:
		return StatePendingUpload
	default:
		return StateActive
	}
}

// Tombstoned reports whether the record is soft-deleted.
func (r *AttachmentRecord) Tombstoned() bool {
	return r.DeletedAt != nil
}

// Uploaded reports whether the ciphertext has been synced to the
// remote blob store.
func (r *AttachmentRecord) Uploaded() bool {
	return r.UploadedAt != nil
}

// Clone returns a deep copy of the record.
func (r *AttachmentRecord) Clone() *AttachmentRecord {
	out := *r
	out.NoteIDs = r.NoteIDs.Clone()
	out.WrappedKey = append([]byte(nil), r.WrappedKey...)
	out.EditedAt = cloneTime(r.EditedAt)
	out.UploadedAt = cloneTime(r.UploadedAt)
	out.DeletedAt = cloneTime(r.DeletedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
