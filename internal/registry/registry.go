// Package registry owns attachment records: identity and dedup by
// content hash, key wrapping under the user master key, reference
// counting against notes, soft delete with retention, multi-device
// merge, and upload/download lifecycle tracking.
//
// The registry holds no concurrency model of its own. The keyed store
// serializes conflicting writes to one record id; callers are expected
// to serialize concurrent add/delete on the same hash within one
// process. Across devices, Merge is the sole consistency mechanism.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"notesafe/internal/blob"
	"notesafe/internal/crypto"
	"notesafe/internal/events"
	"notesafe/internal/models"
	"notesafe/internal/store"
)

// RetentionWindow is how long a tombstone is kept before it is
// eligible for cleanup.
const RetentionWindow = 7 * 24 * time.Hour

// Registry coordinates the keyed store, the crypto provider, and the
// blob transport around attachment records.
type Registry struct {
	store store.KeyedStore
	keys  crypto.Provider
	fs    blob.Transport
	bus   events.Notifier

	mu        sync.Mutex
	masterKey []byte

	now       func() time.Time
	retention time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRetention overrides the tombstone retention window.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// New creates a registry. The notifier may be nil when no observer
// cares about progress or lifecycle events.
func New(st store.KeyedStore, keys crypto.Provider, fs blob.Transport, bus events.Notifier, opts ...Option) *Registry {
	r := &Registry{
		store:     st,
		keys:      keys,
		fs:        fs,
		bus:       bus,
		now:       time.Now,
		retention: RetentionWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddInput is the descriptor for a freshly written attachment: the
// cipher parameters produced by the encrypted write plus the plaintext
// content key that sealed it.
type AddInput struct {
	IV              string
	Salt            string
	Algorithm       string
	Hash            string
	HashAlgorithm   models.HashAlgorithm
	Filename        string
	MimeType        string
	ChunkSize       int
	PlaintextLength int64
	Key             crypto.ContentKey
}

// AddInputFromDescriptor builds an AddInput from an encrypted write's
// descriptor, the original filename, and the content key that sealed
// the write.
func AddInputFromDescriptor(desc blob.Descriptor, filename string, key crypto.ContentKey) AddInput {
	return AddInput{
		IV:              desc.IV,
		Salt:            desc.Salt,
		Algorithm:       desc.Algorithm,
		Hash:            desc.Hash,
		HashAlgorithm:   desc.HashAlgorithm,
		Filename:        filename,
		MimeType:        desc.MimeType,
		ChunkSize:       desc.ChunkSize,
		PlaintextLength: desc.PlaintextLength,
		Key:             key,
	}
}

func (in AddInput) validate() error {
	required := []struct {
		name string
		ok   bool
	}{
		{"hash", strings.TrimSpace(in.Hash) != ""},
		{"iv", strings.TrimSpace(in.IV) != ""},
		{"salt", strings.TrimSpace(in.Salt) != ""},
		{"algorithm", strings.TrimSpace(in.Algorithm) != ""},
		{"hash_algorithm", strings.TrimSpace(string(in.HashAlgorithm)) != ""},
		{"filename", strings.TrimSpace(in.Filename) != ""},
		{"chunk_size", in.ChunkSize > 0},
		{"plaintext_length", in.PlaintextLength > 0},
		{"key", in.Key.Valid()},
	}
	for _, field := range required {
		if !field.ok {
			return validationError(fmt.Errorf("attachment descriptor field %s is required", field.name))
		}
	}
	if _, err := models.ParseHashAlgorithm(string(in.HashAlgorithm)); err != nil {
		return validationError(err)
	}
	return nil
}

// Add registers content under its hash for noteID. Content already
// known is deduplicated: the note id joins the existing record's
// reference set, resurrecting a tombstoned record. New content gets a
// fresh record with the supplied key wrapped under the master key.
//
// No blob I/O happens here; upload is a separate concern signaled by
// MarkAsUploaded.
func (r *Registry) Add(ctx context.Context, in AddInput, noteID string) (*models.AttachmentRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := r.store.GetItemByHash(ctx, in.Hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if noteID == "" || existing.NoteIDs.Contains(noteID) {
			return existing, nil
		}
		existing.NoteIDs.Add(noteID)
		existing.DeletedAt = nil
		now := r.now().UTC()
		existing.EditedAt = &now
		if err := r.store.UpdateItem(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	wrapped, err := r.wrapKey(in.Key)
	if err != nil {
		return nil, err
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	rec := &models.AttachmentRecord{
		ID:      uuid.NewString(),
		NoteIDs: models.NewNoteIDSet(noteID),
		CipherParams: models.CipherParams{
			IV:              in.IV,
			Salt:            in.Salt,
			Algorithm:       in.Algorithm,
			ChunkSize:       in.ChunkSize,
			PlaintextLength: in.PlaintextLength,
		},
		WrappedKey: wrapped,
		Metadata: models.Metadata{
			Filename:      in.Filename,
			MimeType:      mimeType,
			Hash:          in.Hash,
			HashAlgorithm: in.HashAlgorithm,
		},
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.AddItem(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete drops noteID from the record for hash. The last reference
// tombstones the record and announces the deletion so a sync layer can
// eventually drop the remote blob. Unknown hashes and absent note ids
// are no-ops.
func (r *Registry) Delete(ctx context.Context, hash, noteID string) error {
	rec, err := r.store.GetItemByHash(ctx, hash)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if !rec.NoteIDs.Remove(noteID) {
		return nil
	}

	now := r.now().UTC()
	rec.EditedAt = &now
	if rec.NoteIDs.Empty() {
		rec.DeletedAt = &now
		r.publish(events.KindAttachmentDeleted, events.AttachmentDeleted{ID: rec.ID, Hash: rec.Metadata.Hash})
	}
	return r.store.UpdateItem(ctx, rec)
}

// Remove hard-deletes the record for hash. The blob must be deleted
// first; the record survives any blob deletion failure so the purge
// can be retried. Reports whether the purge occurred.
func (r *Registry) Remove(ctx context.Context, hash string, localOnly bool) (bool, error) {
	rec, err := r.store.GetItemByHash(ctx, hash)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	ok, err := r.fs.DeleteFile(ctx, hash, localOnly)
	if err != nil {
		return false, transportFailure(err)
	}
	if !ok {
		return false, nil
	}
	if err := r.store.RemoveItem(ctx, rec.ID); err != nil {
		return false, err
	}
	return true, nil
}

// Merge reconciles a record arriving from another device. A remote
// tombstone overwrites local state unconditionally; otherwise the
// reference sets union and all other fields take the remote version.
// Merge is idempotent and commutative over note ids, so it tolerates
// re-delivery and arbitrary delivery order.
func (r *Registry) Merge(ctx context.Context, remote *models.AttachmentRecord) error {
	if remote == nil || remote.ID == "" {
		return validationError(fmt.Errorf("remote record with id is required"))
	}

	merged := remote.Clone()
	if !merged.Tombstoned() {
		local, err := r.store.GetItem(ctx, remote.ID)
		if err != nil {
			return err
		}
		if local != nil {
			merged.NoteIDs = merged.NoteIDs.Union(local.NoteIDs)
		}
	}
	return r.store.AddItem(ctx, merged)
}

// MarkAsUploaded records that the ciphertext for id reached the remote
// blob store.
func (r *Registry) MarkAsUploaded(ctx context.Context, id string) error {
	rec, err := r.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	now := r.now().UTC()
	rec.UploadedAt = &now
	return r.store.UpdateItem(ctx, rec)
}

// Save encrypts data under a fresh content key and persists the
// ciphertext. The returned key and descriptor feed a subsequent Add.
func (r *Registry) Save(ctx context.Context, data []byte, mimeType string) (crypto.ContentKey, blob.Descriptor, error) {
	key, err := r.GenerateKey(ctx)
	if err != nil {
		return crypto.ContentKey{}, blob.Descriptor{}, err
	}
	desc, err := r.fs.WriteEncrypted(ctx, data, mimeType, key)
	if err != nil {
		return crypto.ContentKey{}, blob.Descriptor{}, transportFailure(err)
	}
	return key, desc, nil
}

func (r *Registry) publish(kind events.Kind, payload any) {
	if r.bus != nil {
		r.bus.Publish(kind, payload)
	}
}
