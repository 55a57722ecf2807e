package outbox

import (
	"context"

	"github.com/avoronin/paperkeep/internal/client/models"
)

// Repository describes the durable mutation outbox. Entries are appended in
// the same transaction as the record write they represent, and removed only
// after confirmed remote delivery.
type Repository interface {
	// Enqueue appends a new entry. SeqNo and CreatedAt are assigned by the
	// store.
	Enqueue(ctx context.Context, t models.EntityType, entityID string, op models.Operation, payload []byte) error

	// Pending returns all queued entries in insertion order.
	Pending(ctx context.Context) ([]models.OutboxEntry, error)

	// PendingIDs returns the set of entity ids of the given type that still
	// have queued entries. The merge engine uses it to skip locally-dirty
	// records.
	PendingIDs(ctx context.Context, t models.EntityType) (map[string]struct{}, error)

	// HasPending reports whether any queued entry remains for the given
	// entity id.
	HasPending(ctx context.Context, t models.EntityType, entityID string) (bool, error)

	// Remove deletes an entry after confirmed delivery.
	Remove(ctx context.Context, seqNo int64) error

	// IncrementRetry bumps the retry counter and records the failure message.
	IncrementRetry(ctx context.Context, seqNo int64, lastError string) error

	// DeadLetter moves an entry to the dead-letter table, unblocking later
	// entries for the same entity id.
	DeadLetter(ctx context.Context, seqNo int64) error

	// DeadLettered lists dead-lettered entries for inspection.
	DeadLettered(ctx context.Context) ([]models.OutboxEntry, error)
}
