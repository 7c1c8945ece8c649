package registry

import (
	"errors"
	"fmt"
)

// Kind classifies registry failures.
type Kind int

const (
	// KindValidation marks malformed input; nothing was written.
	KindValidation Kind = iota + 1
	// KindKeyUnavailable marks a missing master key; callers typically
	// surface this as "attachments locked".
	KindKeyUnavailable
	// KindDecryption marks a failed key unwrap or blob decrypt; the
	// record is untouched.
	KindDecryption
	// KindTransport marks a failed blob write/read/delete/download;
	// retryable for remove and cleanup.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindKeyUnavailable:
		return "key_unavailable"
	case KindDecryption:
		return "decryption"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified registry failure.
type Error struct {
	kind Kind
	err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e Error) Unwrap() error {
	return e.err
}

// Kind returns the failure classification.
func (e Error) Kind() Kind {
	return e.kind
}

func classify(kind Kind, err error) error {
	if err == nil {
		err = errors.New(kind.String())
	}
	var existing Error
	if errors.As(err, &existing) {
		return err
	}
	return Error{kind: kind, err: err}
}

func validationError(err error) error  { return classify(KindValidation, err) }
func keyUnavailable(err error) error   { return classify(KindKeyUnavailable, err) }
func decryptionError(err error) error  { return classify(KindDecryption, err) }
func transportFailure(err error) error { return classify(KindTransport, err) }

// HasKind reports whether err carries the given classification.
func HasKind(err error, kind Kind) bool {
	var e Error
	return errors.As(err, &e) && e.kind == kind
}

func IsValidation(err error) bool     { return HasKind(err, KindValidation) }
func IsKeyUnavailable(err error) bool { return HasKind(err, KindKeyUnavailable) }
func IsDecryption(err error) bool     { return HasKind(err, KindDecryption) }
func IsTransport(err error) bool      { return HasKind(err, KindTransport) }
