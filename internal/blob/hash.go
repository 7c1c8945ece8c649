package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"

	"notesafe/internal/models"
)

// NewHasher returns a streaming hasher for the given algorithm.
func NewHasher(alg models.HashAlgorithm) (hash.Hash, error) {
	switch alg {
	case models.HashSHA256:
		return sha256.New(), nil
	case models.HashBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", alg)
	}
}

// SumHex returns the hex digest of data under the given algorithm.
func SumHex(alg models.HashAlgorithm, data []byte) (string, error) {
	h, err := NewHasher(alg)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
