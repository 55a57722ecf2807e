package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/common"
	"github.com/avoronin/paperkeep/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or overwrites a record by (entity_type, id). On conflict the
// field set, state, tombstone flag and updated_at are replaced; created_at is
// kept from the original insert.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Record) error {
	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `INSERT INTO records (entity_type, id, fields, state, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			fields = excluded.fields,
			state = excluded.state,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		string(rec.Type), rec.ID, string(rec.Fields), string(rec.State),
		rec.Deleted, createdAt.Format(time.RFC3339Nano), updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// GetByID returns a single record, including tombstones.
func (r *SQLiteRepository) GetByID(ctx context.Context, t models.EntityType, id string) (*models.Record, error) {
	query := `SELECT entity_type, id, fields, state, deleted, created_at, updated_at
		FROM records WHERE entity_type = ? AND id = ?`
	row := r.db.QueryRowContext(ctx, query, string(t), id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListByType lists all non-deleted records of one type.
func (r *SQLiteRepository) ListByType(ctx context.Context, t models.EntityType) ([]models.Record, error) {
	query := `SELECT entity_type, id, fields, state, deleted, created_at, updated_at
		FROM records WHERE entity_type = ? AND deleted = 0 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetState updates the local sync state only.
func (r *SQLiteRepository) SetState(ctx context.Context, t models.EntityType, id string, state models.SyncState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET state = ? WHERE entity_type = ? AND id = ?`,
		string(state), string(t), id)
	if err != nil {
		return fmt.Errorf("failed to set record state: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Delete tombstones or removes a record depending on the type's delete mode.
func (r *SQLiteRepository) Delete(ctx context.Context, t models.EntityType, id string) error {
	var res sql.Result
	var err error
	if t.UsesSoftDelete() {
		res, err = r.db.ExecContext(ctx,
			`UPDATE records SET deleted = 1, state = ?, updated_at = ? WHERE entity_type = ? AND id = ? AND deleted = 0`,
			string(models.StatePending), time.Now().UTC().Format(time.RFC3339Nano), string(t), id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM records WHERE entity_type = ? AND id = ?`, string(t), id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var (
		rec                  models.Record
		typ, state, fields   string
		createdAt, updatedAt string
	)
	if err := scan(&typ, &rec.ID, &fields, &state, &rec.Deleted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Type = models.EntityType(typ)
	rec.State = models.SyncState(state)
	rec.Fields = []byte(fields)

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &rec, nil
}
