package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirRemote is a filesystem-backed Remote: a shared or mounted
// directory holding ciphertext flat by digest. It stands in for a
// network blob host without defining a sync protocol.
type DirRemote struct {
	root string
}

// NewDirRemote creates a directory remote rooted at root.
func NewDirRemote(root string) (*DirRemote, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("remote root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &DirRemote{root: abs}, nil
}

func (r *DirRemote) path(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" || strings.ContainsAny(hash, "/\\.") {
		return "", fmt.Errorf("invalid blob hash")
	}
	return filepath.Join(r.root, hash), nil
}

// Fetch opens the remote ciphertext for hash.
func (r *DirRemote) Fetch(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.path(hash)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Push stores ciphertext for hash, replacing any previous copy.
func (r *DirRemote) Push(ctx context.Context, hash string, src io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(hash)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.root, "push-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Delete removes the remote ciphertext for hash. Missing files are
// ignored.
func (r *DirRemote) Delete(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var _ Remote = (*DirRemote)(nil)
