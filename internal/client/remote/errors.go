package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure for the push processor's retry policy.
type Kind int

const (
	// KindTransient covers network errors, timeouts, 429 and 5xx responses.
	// The outbox retries these on every subsequent push cycle.
	KindTransient Kind = iota

	// KindPermanent covers validation rejections (other 4xx). The entry is
	// kept visible and counted as failed; a later local edit may fix it.
	KindPermanent

	// KindUnauthorized covers 401/403. The whole push run stops.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// Error is a classified remote failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Op         string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// IsTransient reports whether err is a classified transient remote failure.
// Unclassified errors are treated as transient so that nothing queued is
// dropped on an unexpected failure shape.
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return !ok || k == KindTransient
}

// IsPermanent reports whether err is a classified permanent remote failure.
func IsPermanent(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPermanent
}

// IsUnauthorized reports whether err is an auth failure.
func IsUnauthorized(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnauthorized
}
