package records

import (
	"context"

	"github.com/avoronin/paperkeep/internal/client/models"
)

// Repository describes storage operations for entity records. Implementations
// are backed by the local SQLite database and accept a DBTX so callers can
// run several repository calls inside one transaction.
type Repository interface {
	// Upsert inserts a record or overwrites an existing one by (type, id).
	Upsert(ctx context.Context, rec *models.Record) error

	// GetByID returns a record, tombstoned or not. common.ErrNotFound when
	// no row exists.
	GetByID(ctx context.Context, t models.EntityType, id string) (*models.Record, error)

	// ListByType returns all non-deleted records of the given type.
	ListByType(ctx context.Context, t models.EntityType) ([]models.Record, error)

	// SetState updates only the local sync state of a record.
	SetState(ctx context.Context, t models.EntityType, id string, state models.SyncState) error

	// Delete tombstones the record for soft-deleted types and physically
	// removes it otherwise.
	Delete(ctx context.Context, t models.EntityType, id string) error
}
