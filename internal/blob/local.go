package blob

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"

	"notesafe/internal/crypto"
	"notesafe/internal/models"
)

const (
	// CipherAlgorithm names the chunk sealing scheme: zstd compression
	// followed by XChaCha20-Poly1305.
	CipherAlgorithm = "xchacha20poly1305-zstd"

	// DefaultChunkSize is the plaintext chunk size for encrypted writes.
	DefaultChunkSize = 512 * 1024

	frameLenSize = 4
)

// Store is a chunked encrypted local content-addressed store. Files
// live under <root>/<alg>/<aa>/<bb>/<digest>; each file is a sequence
// of length-prefixed sealed chunks.
type Store struct {
	root      string
	alg       models.HashAlgorithm
	chunkSize int
	remote    Remote

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Option configures a Store.
type Option func(*Store)

// WithHashAlgorithm sets the content hash algorithm for new writes.
func WithHashAlgorithm(alg models.HashAlgorithm) Option {
	return func(s *Store) { s.alg = alg }
}

// WithChunkSize sets the plaintext chunk size for new writes.
func WithChunkSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithRemote attaches a remote ciphertext source/target.
func WithRemote(remote Remote) Option {
	return func(s *Store) { s.remote = remote }
}

// NewStore creates a local store rooted at root.
func NewStore(root string, opts ...Option) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:      abs,
		alg:       models.HashSHA256,
		chunkSize: DefaultChunkSize,
		enc:       enc,
		dec:       dec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// WriteEncrypted hashes data, seals it chunk by chunk under key, and
// stores the ciphertext at the content-addressed path. Writing the
// same content twice targets the same path, so concurrent writes of
// one hash are idempotent.
func (s *Store) WriteEncrypted(ctx context.Context, data []byte, mimeType string, key crypto.ContentKey) (Descriptor, error) {
	var zero Descriptor
	if s == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !key.Valid() {
		return zero, fmt.Errorf("content key must be %d bytes", crypto.ContentKeySize)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	digest, err := SumHex(s.alg, data)
	if err != nil {
		return zero, err
	}

	aead, err := chacha20poly1305.NewX(key.Data)
	if err != nil {
		return zero, err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return zero, err
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "write-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	for i, off := 0, 0; off < len(data) || (off == 0 && len(data) == 0); i++ {
		end := off + s.chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		compressed := s.enc.EncodeAll(chunk, nil)
		frame := aead.Seal(nil, chunkNonce(iv, uint64(i)), compressed, salt)

		var lenBuf [frameLenSize]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
		if _, err := tmp.Write(lenBuf[:]); err != nil {
			cleanup()
			return zero, err
		}
		if _, err := tmp.Write(frame); err != nil {
			cleanup()
			return zero, err
		}

		off = end
		if len(data) == 0 {
			break
		}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}

	dst := s.pathFor(s.alg, digest)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return zero, err
	}

	return Descriptor{
		Hash:            digest,
		HashAlgorithm:   s.alg,
		IV:              base64.StdEncoding.EncodeToString(iv),
		Salt:            base64.StdEncoding.EncodeToString(salt),
		Algorithm:       CipherAlgorithm,
		ChunkSize:       s.chunkSize,
		PlaintextLength: int64(len(data)),
		MimeType:        mimeType,
	}, nil
}

// ReadEncrypted opens the local ciphertext for hash and returns the
// decrypted, decompressed plaintext.
func (s *Store) ReadEncrypted(ctx context.Context, hash string, key crypto.ContentKey, params models.CipherParams) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !key.Valid() {
		return nil, fmt.Errorf("content key must be %d bytes", crypto.ContentKeySize)
	}
	if params.Algorithm != CipherAlgorithm {
		return nil, fmt.Errorf("unsupported cipher algorithm: %s", params.Algorithm)
	}

	path, err := s.findLocal(hash)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	iv, err := base64.StdEncoding.DecodeString(params.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(params.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key.Data)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", aead.NonceSize(), len(iv))
	}

	plain := make([]byte, 0, params.PlaintextLength)
	for i := uint64(0); len(raw) > 0; i++ {
		if len(raw) < frameLenSize {
			return nil, fmt.Errorf("truncated chunk header")
		}
		frameLen := int(binary.BigEndian.Uint32(raw[:frameLenSize]))
		raw = raw[frameLenSize:]
		if frameLen > len(raw) {
			return nil, fmt.Errorf("truncated chunk: want %d bytes, have %d", frameLen, len(raw))
		}
		frame := raw[:frameLen]
		raw = raw[frameLen:]

		compressed, err := aead.Open(nil, chunkNonce(iv, i), frame, salt)
		if err != nil {
			return nil, fmt.Errorf("open chunk %d: %w", i, err)
		}
		chunk, err := s.dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress chunk %d: %w", i, err)
		}
		plain = append(plain, chunk...)
	}

	if int64(len(plain)) != params.PlaintextLength {
		return nil, fmt.Errorf("plaintext length mismatch: want %d, got %d", params.PlaintextLength, len(plain))
	}
	return plain, nil
}

// DeleteFile removes the local ciphertext for hash. Unless localOnly,
// the remote copy is deleted too; a remote failure defers deletion and
// returns false so the caller can retry later.
func (s *Store) DeleteFile(ctx context.Context, hash string, localOnly bool) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if path, err := s.findLocal(hash); err == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}

	if !localOnly && s.remote != nil {
		if err := s.remote.Delete(ctx, hash); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// DownloadFile materializes the ciphertext for hash locally. It is a
// no-op returning true when the file is already local, and returns
// false when no remote source can supply it.
func (s *Store) DownloadFile(ctx context.Context, groupID, hash string, chunkSize int, meta models.Metadata) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := s.findLocal(hash); err == nil {
		return true, nil
	}
	if s.remote == nil {
		return false, nil
	}

	src, err := s.remote.Fetch(ctx, hash)
	if err != nil {
		return false, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "download-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}

	alg := meta.HashAlgorithm
	if alg == "" {
		alg = s.alg
	}
	dst := s.pathFor(alg, hash)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	return true, nil
}

// Upload pushes the local ciphertext for hash to the remote.
func (s *Store) Upload(ctx context.Context, hash string) error {
	if s == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if s.remote == nil {
		return fmt.Errorf("no remote configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.findLocal(hash)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.remote.Push(ctx, hash, f)
}

// Exists reports whether the ciphertext for hash is local.
func (s *Store) Exists(hash string) bool {
	_, err := s.findLocal(hash)
	return err == nil
}

// Size returns the local ciphertext size for hash in bytes.
func (s *Store) Size(hash string) (int64, error) {
	path, err := s.findLocal(hash)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *Store) pathFor(alg models.HashAlgorithm, digest string) string {
	return filepath.Join(s.root, string(alg), digest[0:2], digest[2:4], digest)
}

// findLocal probes the known algorithm directories for hash. Records
// written by another device may carry a different hash algorithm than
// this store's default.
func (s *Store) findLocal(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if len(hash) < 4 || strings.ContainsAny(hash, "/\\.") {
		return "", fmt.Errorf("invalid blob hash")
	}
	for _, alg := range []models.HashAlgorithm{s.alg, models.HashSHA256, models.HashBLAKE3} {
		path := s.pathFor(alg, hash)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("blob %s is not local: %w", hash, os.ErrNotExist)
}

// chunkNonce derives the per-chunk nonce from the base IV and the
// chunk index.
func chunkNonce(iv []byte, index uint64) []byte {
	nonce := append([]byte(nil), iv...)
	n := len(nonce)
	binary.BigEndian.PutUint64(nonce[n-8:], binary.BigEndian.Uint64(nonce[n-8:])^index)
	return nonce
}

var _ Transport = (*Store)(nil)
