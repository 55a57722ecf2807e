package metadata

import (
	"context"
	"time"
)

// Well-known metadata keys.
const (
	KeyLastPullAt   = "last_pull_at"
	KeyLastPushAt   = "last_push_at"
	KeySessionToken = "session_token"
	KeyIdentity     = "identity"
)

// Repository is a small durable key/value store for client metadata:
// persisted sync timestamps, the session token, and the current identity.
type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key if present.
	Delete(ctx context.Context, key string) error

	// GetTime reads a timestamp stored by SetTime. Zero time when absent.
	GetTime(ctx context.Context, key string) (time.Time, error)

	// SetTime stores a timestamp in RFC 3339 form.
	SetTime(ctx context.Context, key string, t time.Time) error
}
