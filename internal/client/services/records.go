// Package services contains the application services of the PaperKeep
// client: record CRUD with atomic outbox enqueueing, and session handling.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/outbox"
	"github.com/avoronin/paperkeep/internal/client/repositories/records"
	"github.com/avoronin/paperkeep/internal/dbx"
	"github.com/avoronin/paperkeep/internal/netx"
	"github.com/google/uuid"
)

// RecordService is the mutation surface for synced records. Every mutation
// commits the record write and its outbox entry in a single transaction:
// both exist afterwards, or neither does.
type RecordService interface {
	// Create stores a new record with a client-assigned id and queues its
	// delivery. Returns the new id.
	Create(ctx context.Context, payload models.TypedPayload) (string, error)

	// Update overlays the given changed fields onto the stored record and
	// queues a partial-payload update.
	Update(ctx context.Context, t models.EntityType, id string, changes json.RawMessage) error

	// Delete tombstones (or, for settings, removes) the record and queues
	// the remote delete.
	Delete(ctx context.Context, t models.EntityType, id string) error

	Get(ctx context.Context, t models.EntityType, id string) (*models.Record, error)
	List(ctx context.Context, t models.EntityType) ([]models.Record, error)

	// AttachFile uploads attachment bytes through a presigned URL and links
	// the resulting key to the record.
	AttachFile(ctx context.Context, t models.EntityType, id string, data []byte) (string, error)
}

type recordService struct {
	db  *sql.DB
	api remote.API
}

func NewRecordService(db *sql.DB, api remote.API) RecordService {
	return &recordService{db: db, api: api}
}

func (s *recordService) Create(ctx context.Context, payload models.TypedPayload) (string, error) {
	fields, err := models.WrapPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payload: %w", err)
	}

	t := payload.GetType()
	// The id exists before the first local write; idempotent remote upserts
	// depend on it never being server-assigned.
	id := uuid.NewString()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)
		if err := rr.Upsert(ctx, &models.Record{
			Type:   t,
			ID:     id,
			Fields: fields,
			State:  models.StatePending,
		}); err != nil {
			return err
		}
		return outbox.NewSQLiteRepository(tx).Enqueue(ctx, t, id, models.OpCreate, fields)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	return id, nil
}

func (s *recordService) Update(ctx context.Context, t models.EntityType, id string, changes json.RawMessage) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)
		rec, err := rr.GetByID(ctx, t, id)
		if err != nil {
			return err
		}

		merged, err := models.MergeFields(rec.Fields, changes)
		if err != nil {
			return err
		}
		rec.Fields = merged
		rec.State = models.StatePending
		if err := rr.Upsert(ctx, rec); err != nil {
			return err
		}

		// Only the changed fields travel; the remote coalesces absent ones.
		return outbox.NewSQLiteRepository(tx).Enqueue(ctx, t, id, models.OpUpdate, changes)
	})
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

func (s *recordService) Delete(ctx context.Context, t models.EntityType, id string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Delete(ctx, t, id); err != nil {
			return err
		}
		return outbox.NewSQLiteRepository(tx).Enqueue(ctx, t, id, models.OpDelete, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *recordService) Get(ctx context.Context, t models.EntityType, id string) (*models.Record, error) {
	return records.NewSQLiteRepository(s.db).GetByID(ctx, t, id)
}

func (s *recordService) List(ctx context.Context, t models.EntityType) ([]models.Record, error) {
	return records.NewSQLiteRepository(s.db).ListByType(ctx, t)
}

func (s *recordService) AttachFile(ctx context.Context, t models.EntityType, id string, data []byte) (string, error) {
	key := uuid.NewString()

	url, err := s.api.AttachmentPutURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to presign attachment: %w", err)
	}
	if err := netx.UploadToPresignedURL(url, data); err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}

	changes, err := json.Marshal(map[string]string{"attachmentKey": key})
	if err != nil {
		return "", err
	}
	if err := s.Update(ctx, t, id, changes); err != nil {
		return "", err
	}
	return key, nil
}
