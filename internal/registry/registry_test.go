package registry

import (
	"bytes"
	"context"
	"crypto/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"notesafe/internal/blob"
	"notesafe/internal/crypto"
	"notesafe/internal/events"
	"notesafe/internal/models"
	"notesafe/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	reg   *Registry
	store *store.Store
	vault *crypto.Vault
	blobs *blob.Store
	bus   *events.Bus
	clock *fakeClock
}

// newTestEnv wires a registry over real components in temp dirs. wrap
// may replace the blob transport to inject failures; nil keeps the
// real store.
func newTestEnv(t *testing.T, wrap func(blob.Transport) blob.Transport) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vault := crypto.NewVault()
	master := make([]byte, crypto.MasterKeySize)
	if _, err := rand.Read(master); err != nil {
		t.Fatalf("generate master key: %v", err)
	}
	if err := vault.SetMasterKey(master); err != nil {
		t.Fatalf("set master key: %v", err)
	}

	blobs, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}

	var fs blob.Transport = blobs
	if wrap != nil {
		fs = wrap(blobs)
	}

	bus := events.NewBus()
	clock := newFakeClock()
	reg := New(st, vault, fs, bus, WithClock(clock.Now))
	return &testEnv{reg: reg, store: st, vault: vault, blobs: blobs, bus: bus, clock: clock}
}

// attach encrypts data and registers it for noteID.
func (e *testEnv) attach(t *testing.T, data []byte, mimeType, filename, noteID string) *models.AttachmentRecord {
	t.Helper()
	ctx := context.Background()
	key, desc, err := e.reg.Save(ctx, data, mimeType)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := e.reg.Add(ctx, AddInputFromDescriptor(desc, filename, key), noteID)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return rec
}

func TestAddDeduplicatesByHash(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	data := []byte("shared image bytes")
	first := env.attach(t, data, "image/png", "a.png", "note-1")
	second := env.attach(t, data, "image/png", "a.png", "note-2")

	if first.ID != second.ID {
		t.Fatalf("same content produced two records: %s vs %s", first.ID, second.ID)
	}
	if !second.NoteIDs.Contains("note-1") || !second.NoteIDs.Contains("note-2") {
		t.Fatalf("expected both notes referenced: %v", second.NoteIDs)
	}

	// Re-adding for an already-referencing note changes nothing.
	third := env.attach(t, data, "image/png", "a.png", "note-1")
	if len(third.NoteIDs) != 2 {
		t.Fatalf("idempotent re-add grew the reference set: %v", third.NoteIDs)
	}

	all, err := env.reg.All(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single record, got %d", len(all))
	}
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.reg.Add(ctx, AddInput{}, "note-1")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	key, err := env.reg.GenerateKey(ctx)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	in := AddInput{
		IV: "aXY=", Salt: "c2FsdA==", Algorithm: blob.CipherAlgorithm,
		Hash: "deadbeefdeadbeef", HashAlgorithm: "md5",
		Filename: "f.bin", ChunkSize: 1024, PlaintextLength: 10, Key: key,
	}
	if _, err := env.reg.Add(ctx, in, "note-1"); !IsValidation(err) {
		t.Fatalf("expected invalid hash algorithm to be rejected, got %v", err)
	}
}

func TestKeyUnavailable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.vault.Clear()
	env.reg.InvalidateKeyCache()

	if _, err := env.reg.GenerateKey(ctx); !IsKeyUnavailable(err) {
		t.Fatalf("expected key-unavailable error, got %v", err)
	}
	if _, _, err := env.reg.Save(ctx, []byte("data"), "text/plain"); !IsKeyUnavailable(err) {
		t.Fatalf("expected save to fail key-unavailable, got %v", err)
	}
}

func TestKeyCacheSurvivesVaultClear(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	// Prime the cache.
	if _, err := env.reg.GenerateKey(ctx); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env.vault.Clear()
	if _, err := env.reg.GenerateKey(ctx); err != nil {
		t.Fatalf("expected cached master key to serve: %v", err)
	}

	env.reg.InvalidateKeyCache()
	if _, err := env.reg.GenerateKey(ctx); !IsKeyUnavailable(err) {
		t.Fatalf("expected key-unavailable after invalidate, got %v", err)
	}
}

func TestDeleteReferenceCounting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	data := []byte("referenced twice")
	env.attach(t, data, "text/plain", "doc.txt", "note-1")
	rec := env.attach(t, data, "text/plain", "doc.txt", "note-2")

	ch, cancel := env.bus.Subscribe(events.KindAttachmentDeleted)
	defer cancel()

	if err := env.reg.Delete(ctx, rec.Metadata.Hash, "note-1"); err != nil {
		t.Fatalf("delete first ref: %v", err)
	}
	got, err := env.reg.Attachment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tombstoned() {
		t.Fatal("record tombstoned while still referenced")
	}

	if err := env.reg.Delete(ctx, rec.Metadata.Hash, "note-2"); err != nil {
		t.Fatalf("delete last ref: %v", err)
	}
	got, err = env.reg.Attachment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Tombstoned() || !got.NoteIDs.Empty() {
		t.Fatalf("expected tombstone with no refs: %+v", got)
	}
	if !got.DeletedAt.Equal(env.clock.Now()) {
		t.Fatalf("deleted_at not set from clock: %v", got.DeletedAt)
	}

	select {
	case ev := <-ch:
		payload := ev.Payload.(events.AttachmentDeleted)
		if payload.ID != rec.ID || payload.Hash != rec.Metadata.Hash {
			t.Fatalf("unexpected delete event: %+v", payload)
		}
	default:
		t.Fatal("expected an attachment.deleted event")
	}
}

func TestDeleteNoops(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	if err := env.reg.Delete(ctx, "unknown-hash", "note-1"); err != nil {
		t.Fatalf("delete unknown hash: %v", err)
	}

	rec := env.attach(t, []byte("content"), "text/plain", "f.txt", "note-1")
	if err := env.reg.Delete(ctx, rec.Metadata.Hash, "other-note"); err != nil {
		t.Fatalf("delete absent ref: %v", err)
	}
	got, _ := env.reg.Attachment(ctx, rec.ID)
	if got.Tombstoned() || !got.NoteIDs.Contains("note-1") {
		t.Fatalf("absent-ref delete mutated the record: %+v", got)
	}
}

func TestResurrection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	data := []byte("content that comes back")
	rec := env.attach(t, data, "text/plain", "f.txt", "note-1")
	if err := env.reg.Delete(ctx, rec.Metadata.Hash, "note-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	revived := env.attach(t, data, "text/plain", "f.txt", "note-2")
	if revived.ID != rec.ID {
		t.Fatalf("resurrection created a new record: %s vs %s", revived.ID, rec.ID)
	}
	if revived.Tombstoned() {
		t.Fatal("resurrected record still tombstoned")
	}
	if !revived.NoteIDs.Contains("note-2") {
		t.Fatalf("resurrected record missing new ref: %v", revived.NoteIDs)
	}
}

func TestReadRoundtrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	data := []byte("the quick brown fox")
	rec := env.attach(t, data, "text/plain", "fox.txt", "note-1")

	payload, err := env.reg.Read(ctx, rec.Metadata.Hash)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if payload == nil {
		t.Fatal("expected payload")
	}
	if payload.MimeType != "text/plain" {
		t.Fatalf("mime type not preserved: %s", payload.MimeType)
	}
	if !bytes.Equal(payload.Data, data) {
		t.Fatal("roundtrip mismatch")
	}
	if !strings.HasPrefix(payload.DataURI(), "data:text/plain;base64,") {
		t.Fatalf("unexpected data uri framing: %s", payload.DataURI())
	}
}

func TestReadUnknownHash(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	payload, err := env.reg.Read(ctx, "unknown-hash")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if payload != nil {
		t.Fatal("expected nil payload for unknown hash")
	}
}

func TestReadMissingBlob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	rec := env.attach(t, []byte("ephemeral"), "text/plain", "f.txt", "note-1")
	if _, err := env.blobs.DeleteFile(ctx, rec.Metadata.Hash, true); err != nil {
		t.Fatalf("delete blob: %v", err)
	}

	payload, err := env.reg.Read(ctx, rec.Metadata.Hash)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if payload != nil {
		t.Fatal("expected nil payload when ciphertext is not local")
	}
}

func TestDecryptKeyGarbage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	if _, err := env.reg.DecryptKey(ctx, []byte("not a wrapped key")); !IsDecryption(err) {
		t.Fatalf("expected decryption error, got %v", err)
	}
}

func TestWrappedKeyRoundtrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	key, desc, err := env.reg.Save(ctx, []byte("wrapped key test"), "text/plain")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := env.reg.Add(ctx, AddInputFromDescriptor(desc, "f.txt", key), "note-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if bytes.Contains(rec.WrappedKey, key.Data) {
		t.Fatal("wrapped key leaks plaintext key bytes")
	}

	unwrapped, err := env.reg.DecryptKey(ctx, rec.WrappedKey)
	if err != nil {
		t.Fatalf("decrypt key: %v", err)
	}
	if !bytes.Equal(unwrapped.Data, key.Data) {
		t.Fatal("unwrapped key does not match original")
	}
}

func TestMergeTombstoneWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	rec := env.attach(t, []byte("merge target"), "text/plain", "f.txt", "note-1")

	remote := rec.Clone()
	remote.NoteIDs = nil
	deleted := env.clock.Now()
	remote.DeletedAt = &deleted
	if err := env.reg.Merge(ctx, remote); err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := env.reg.Attachment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Tombstoned() {
		t.Fatal("remote tombstone did not win")
	}
	if !got.NoteIDs.Empty() {
		t.Fatalf("tombstone kept local refs: %v", got.NoteIDs)
	}
}

func TestMergeUnionsNoteIDs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	rec := env.attach(t, []byte("merge union"), "text/plain", "f.txt", "note-1")

	remote := rec.Clone()
	remote.NoteIDs = models.NewNoteIDSet("note-2", "note-3")
	remote.Metadata.Filename = "renamed.txt"
	if err := env.reg.Merge(ctx, remote); err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := env.reg.Attachment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, n := range []string{"note-1", "note-2", "note-3"} {
		if !got.NoteIDs.Contains(n) {
			t.Fatalf("merged set missing %s: %v", n, got.NoteIDs)
		}
	}
	if got.Metadata.Filename != "renamed.txt" {
		t.Fatalf("remote fields did not replace local: %s", got.Metadata.Filename)
	}

	// Re-delivery changes nothing.
	if err := env.reg.Merge(ctx, remote); err != nil {
		t.Fatalf("repeat merge: %v", err)
	}
	again, _ := env.reg.Attachment(ctx, rec.ID)
	if len(again.NoteIDs) != len(got.NoteIDs) {
		t.Fatalf("merge is not idempotent: %v vs %v", again.NoteIDs, got.NoteIDs)
	}
}

func TestMergeInsertsUnknownRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	remote := &models.AttachmentRecord{
		ID:      "remote-1",
		NoteIDs: models.NewNoteIDSet("note-9"),
		Metadata: models.Metadata{
			Filename: "remote.png", MimeType: "image/png",
			Hash: "remotehash", HashAlgorithm: models.HashSHA256,
		},
		WrappedKey: []byte{1, 2, 3},
		CreatedAt:  env.clock.Now(),
	}
	if err := env.reg.Merge(ctx, remote); err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := env.reg.Attachment(ctx, "remote-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || !got.NoteIDs.Contains("note-9") {
		t.Fatalf("remote record not inserted: %+v", got)
	}

	if err := env.reg.Merge(ctx, nil); !IsValidation(err) {
		t.Fatalf("expected nil merge to be rejected, got %v", err)
	}
}

func TestMarkAsUploaded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	rec := env.attach(t, []byte("to upload"), "text/plain", "f.txt", "note-1")
	if rec.Uploaded() {
		t.Fatal("fresh record already uploaded")
	}

	if err := env.reg.MarkAsUploaded(ctx, rec.ID); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	got, _ := env.reg.Attachment(ctx, rec.ID)
	if !got.Uploaded() || !got.UploadedAt.Equal(env.clock.Now()) {
		t.Fatalf("uploaded_at not set: %+v", got)
	}
	if got.State() != models.StateActive {
		t.Fatalf("expected active state, got %s", got.State())
	}

	// Unknown ids are a no-op.
	if err := env.reg.MarkAsUploaded(ctx, "missing"); err != nil {
		t.Fatalf("mark unknown: %v", err)
	}
}

func TestRemoveHardDeletes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	rec := env.attach(t, []byte("purge me"), "text/plain", "f.txt", "note-1")

	ok, err := env.reg.Remove(ctx, rec.Metadata.Hash, true)
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	if env.blobs.Exists(rec.Metadata.Hash) {
		t.Fatal("blob survived removal")
	}
	got, err := env.reg.Attachment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("record survived removal")
	}

	ok, err = env.reg.Remove(ctx, "unknown-hash", true)
	if err != nil || ok {
		t.Fatalf("remove unknown: ok=%v err=%v", ok, err)
	}
}

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	img := env.attach(t, []byte("png bytes"), "image/png", "pic.png", "note-1")
	doc := env.attach(t, []byte("pdf bytes"), "application/pdf", "doc.pdf", "note-1")
	env.attach(t, []byte("other note"), "image/jpeg", "other.jpg", "note-2")

	images, err := env.reg.OfNote(ctx, "note-1", models.AttachmentKindImages)
	if err != nil {
		t.Fatalf("of note images: %v", err)
	}
	if len(images) != 1 || images[0].ID != img.ID {
		t.Fatalf("unexpected note images: %+v", images)
	}

	files, err := env.reg.OfNote(ctx, "note-1", models.AttachmentKindFiles)
	if err != nil {
		t.Fatalf("of note files: %v", err)
	}
	if len(files) != 1 || files[0].ID != doc.ID {
		t.Fatalf("unexpected note files: %+v", files)
	}

	all, err := env.reg.OfNote(ctx, "note-1", models.AttachmentKindAll)
	if err != nil {
		t.Fatalf("of note all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 attachments on note-1, got %d", len(all))
	}

	exists, err := env.reg.Exists(ctx, img.Metadata.Hash)
	if err != nil || !exists {
		t.Fatalf("exists: %v %v", exists, err)
	}
	exists, err = env.reg.Exists(ctx, "no-such-hash")
	if err != nil || exists {
		t.Fatalf("exists unknown: %v %v", exists, err)
	}

	pending, err := env.reg.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending uploads, got %d", len(pending))
	}
	if err := env.reg.MarkAsUploaded(ctx, img.ID); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	pending, _ = env.reg.Pending(ctx)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending after upload, got %d", len(pending))
	}

	if err := env.reg.Delete(ctx, doc.Metadata.Hash, "note-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	deleted, err := env.reg.Deleted(ctx)
	if err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != doc.ID {
		t.Fatalf("unexpected tombstones: %+v", deleted)
	}

	imgs, _ := env.reg.Images(ctx)
	if len(imgs) != 2 {
		t.Fatalf("expected 2 image records, got %d", len(imgs))
	}
	nonImgs, _ := env.reg.Files(ctx)
	if len(nonImgs) != 1 {
		t.Fatalf("expected 1 file record, got %d", len(nonImgs))
	}

	// Attachment resolves by id and by hash.
	byHash, err := env.reg.Attachment(ctx, img.Metadata.Hash)
	if err != nil || byHash == nil || byHash.ID != img.ID {
		t.Fatalf("lookup by hash failed: %+v %v", byHash, err)
	}
}
