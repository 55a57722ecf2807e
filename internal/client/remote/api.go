// Package remote defines the client's contract with the remote authority and
// its HTTP/JSON implementation. The remote endpoints are idempotent: an
// upsert delivered twice stores the same state, a delete of an already
// deleted id is a no-op success.
package remote

import (
	"context"
	"encoding/json"

	"github.com/avoronin/paperkeep/internal/client/models"
)

// RemoteRecord is one record as returned by a collection fetch.
type RemoteRecord struct {
	// ID is the client-assigned identifier of the record.
	ID string

	// Fields is the full stored field set as a JSON object.
	Fields json.RawMessage
}

// API describes the remote operations the sync engine depends on.
//
// Contract:
//   - Upsert accepts full or partial payloads; absent fields keep the stored
//     value (coalesce semantics), never null-overwrite.
//   - Delete soft-deletes (hard for settings); repeating it succeeds.
//   - FetchCollection returns only non-deleted records for the
//     authenticated identity.
//
// All methods must honor context cancellation/timeouts.
type API interface {
	Upsert(ctx context.Context, t models.EntityType, id string, payload json.RawMessage) error
	Delete(ctx context.Context, t models.EntityType, id string) error
	FetchCollection(ctx context.Context, t models.EntityType) ([]RemoteRecord, error)

	// Login exchanges credentials for a bearer token.
	Login(ctx context.Context, email, password string) (string, error)

	// Ping checks remote reachability.
	Ping(ctx context.Context) error

	// AttachmentPutURL returns a presigned URL for uploading attachment
	// bytes under the given key.
	AttachmentPutURL(ctx context.Context, key string) (string, error)
}
