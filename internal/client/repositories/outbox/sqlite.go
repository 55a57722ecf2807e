package outbox

import (
	"context"
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

func (r *SQLiteRepository) Enqueue(ctx context.Context, t models.EntityType, entityID string, op models.Operation, payload []byte) error {
	if !op.Valid() {
		return models.ErrUnknownOperation
	}
	query := `INSERT INTO outbox (entity_type, entity_id, op, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		string(t), entityID, string(op), string(payload),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Pending(ctx context.Context) ([]models.OutboxEntry, error) {
	query := `SELECT seq_no, entity_type, entity_id, op, payload, retry_count, last_error, created_at
		FROM outbox ORDER BY seq_no`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entries: %w", err)
	}
	defer rows.Close()

	var result []models.OutboxEntry
	for rows.Next() {
		var (
			e            models.OutboxEntry
			typ, op      string
			payload      string
			createdAt    string
		)
		if err := rows.Scan(&e.SeqNo, &typ, &e.EntityID, &op, &payload, &e.RetryCount, &e.LastError, &createdAt); err != nil {
			return nil, err
		}
		e.Type = models.EntityType(typ)
		e.Op = models.Operation(op)
		e.Payload = []byte(payload)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) PendingIDs(ctx context.Context, t models.EntityType) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM outbox WHERE entity_type = ?`, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to select pending ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SQLiteRepository) HasPending(ctx context.Context, t models.EntityType, entityID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE entity_type = ? AND entity_id = ?`,
		string(t), entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, seqNo int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq_no = ?`, seqNo)
	if err != nil {
		return fmt.Errorf("failed to remove outbox entry: %w", err)
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

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, seqNo int64, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ? WHERE seq_no = ?`,
		lastError, seqNo)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
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

// DeadLetter moves the entry into outbox_dead in one statement pair; both run
// against the same DBTX so callers can wrap them in a transaction.
func (r *SQLiteRepository) DeadLetter(ctx context.Context, seqNo int64) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_dead (seq_no, entity_type, entity_id, op, payload, retry_count, last_error, created_at, dead_lettered_at)
		SELECT seq_no, entity_type, entity_id, op, payload, retry_count, last_error, created_at, ?
		FROM outbox WHERE seq_no = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), seqNo)
	if err != nil {
		return fmt.Errorf("failed to dead-letter outbox entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq_no = ?`, seqNo); err != nil {
		return fmt.Errorf("failed to remove dead-lettered entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeadLettered(ctx context.Context) ([]models.OutboxEntry, error) {
	query := `SELECT seq_no, entity_type, entity_id, op, payload, retry_count, last_error, created_at
		FROM outbox_dead ORDER BY seq_no`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select dead-lettered entries: %w", err)
	}
	defer rows.Close()

	var result []models.OutboxEntry
	for rows.Next() {
		var (
			e         models.OutboxEntry
			typ, op   string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&e.SeqNo, &typ, &e.EntityID, &op, &payload, &e.RetryCount, &e.LastError, &createdAt); err != nil {
			return nil, err
		}
		e.Type = models.EntityType(typ)
		e.Op = models.Operation(op)
		e.Payload = []byte(payload)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
