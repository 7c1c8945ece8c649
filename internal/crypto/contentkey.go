package crypto

import (
	"encoding/json"
	"fmt"
)

// ContentKey is a per-attachment symmetric key. It is serialized to
// JSON before wrapping so the unwrapped form is self-describing.
type ContentKey struct {
	Data []byte `json:"data"`
}

// NewContentKey wraps raw key bytes.
func NewContentKey(data []byte) ContentKey {
	return ContentKey{Data: append([]byte(nil), data...)}
}

// Valid reports whether the key has the expected size.
func (k ContentKey) Valid() bool {
	return len(k.Data) == ContentKeySize
}

// Marshal serializes the key for wrapping.
func (k ContentKey) Marshal() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("content key must be %d bytes, got %d", ContentKeySize, len(k.Data))
	}
	return json.Marshal(k)
}

// UnmarshalContentKey deserializes an unwrapped content key.
func UnmarshalContentKey(plain []byte) (ContentKey, error) {
	var key ContentKey
	if err := json.Unmarshal(plain, &key); err != nil {
		return ContentKey{}, fmt.Errorf("parse content key: %w", err)
	}
	if !key.Valid() {
		return ContentKey{}, fmt.Errorf("content key must be %d bytes, got %d", ContentKeySize, len(key.Data))
	}
	return key, nil
}
