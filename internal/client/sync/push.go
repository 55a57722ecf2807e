package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/outbox"
	"github.com/avoronin/paperkeep/internal/client/repositories/records"
	"github.com/avoronin/paperkeep/internal/common"
	"github.com/avoronin/paperkeep/internal/dbx"
	"github.com/avoronin/paperkeep/internal/logging"
)

// DefaultDeadLetterThreshold is the number of failed attempts after which a
// permanently failing entry is moved to the dead-letter table so later
// entries for the same entity id can proceed.
const DefaultDeadLetterThreshold = 10

// PushResult aggregates one drain cycle. Per-entry failures never error the
// run; only store-level failures do.
type PushResult struct {
	// Succeeded counts delivered creates and updates.
	Succeeded int
	// Deleted counts delivered delete operations, separately.
	Deleted int
	// Failed counts entries rejected permanently by the remote. They stay
	// in the outbox and must be surfaced to the user.
	Failed int
	// Retried counts entries that hit a transient failure and were left in
	// place for the next cycle.
	Retried int
	// Skipped counts entries not attempted because an earlier entry for the
	// same entity id failed in this cycle.
	Skipped int
	// DeadLettered counts entries moved aside after repeated permanent
	// failures.
	DeadLettered int
}

// Pusher drains the outbox to the remote authority. Remote handlers are
// idempotent upserts, so at-least-once delivery yields exactly-once effect.
type Pusher struct {
	db  *sql.DB
	api remote.API
	log logging.Logger

	deadLetterThreshold int
}

func NewPusher(db *sql.DB, api remote.API, log logging.Logger) *Pusher {
	return &Pusher{db: db, api: api, log: log, deadLetterThreshold: DefaultDeadLetterThreshold}
}

// Run drains all queued entries once, in insertion order. Draining in SeqNo
// order keeps create/update/delete FIFO per entity id; when an entry fails,
// later entries for the same id are skipped for the rest of the cycle.
func (p *Pusher) Run(ctx context.Context) (*PushResult, error) {
	ob := outbox.NewSQLiteRepository(p.db)

	entries, err := ob.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	result := &PushResult{}
	blocked := make(map[string]struct{})

	for i := range entries {
		e := &entries[i]
		key := string(e.Type) + "/" + e.EntityID

		if _, ok := blocked[key]; ok {
			result.Skipped++
			continue
		}

		deliverErr := p.deliver(ctx, e)
		if deliverErr == nil {
			if err := p.acknowledge(ctx, e); err != nil {
				return result, err
			}
			if e.Op == models.OpDelete {
				result.Deleted++
			} else {
				result.Succeeded++
			}
			continue
		}

		if remote.IsUnauthorized(deliverErr) {
			// The whole run stops: nothing queued is lost, the caller
			// surfaces the auth failure.
			return result, fmt.Errorf("push stopped: %w", deliverErr)
		}

		if err := ob.IncrementRetry(ctx, e.SeqNo, deliverErr.Error()); err != nil {
			return result, err
		}

		if remote.IsPermanent(deliverErr) {
			p.log.Warn(ctx, "outbox entry rejected",
				"type", e.Type, "id", e.EntityID, "op", e.Op,
				"attempts", e.RetryCount+1, "err", deliverErr)
			result.Failed++
			if err := p.markError(ctx, e); err != nil {
				return result, err
			}
			if e.RetryCount+1 >= p.deadLetterThreshold {
				if err := ob.DeadLetter(ctx, e.SeqNo); err != nil {
					return result, err
				}
				result.DeadLettered++
				// Later entries for this id may now proceed.
				continue
			}
		} else {
			p.log.Debug(ctx, "outbox entry delivery deferred",
				"type", e.Type, "id", e.EntityID, "op", e.Op, "err", deliverErr)
			result.Retried++
		}

		blocked[key] = struct{}{}
	}

	return result, nil
}

// deliver dispatches one entry to the remote handler for its operation.
func (p *Pusher) deliver(ctx context.Context, e *models.OutboxEntry) error {
	switch e.Op {
	case models.OpCreate, models.OpUpdate:
		return p.api.Upsert(ctx, e.Type, e.EntityID, e.Payload)
	case models.OpDelete:
		return p.api.Delete(ctx, e.Type, e.EntityID)
	}
	return models.ErrUnknownOperation
}

// acknowledge removes the delivered entry and, when no further entries are
// queued for the record, marks it synced, both in one transaction.
func (p *Pusher) acknowledge(ctx context.Context, e *models.OutboxEntry) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ob := outbox.NewSQLiteRepository(tx)
		if err := ob.Remove(ctx, e.SeqNo); err != nil {
			return err
		}

		more, err := ob.HasPending(ctx, e.Type, e.EntityID)
		if err != nil {
			return err
		}
		if more {
			return nil
		}

		rr := records.NewSQLiteRepository(tx)
		err = rr.SetState(ctx, e.Type, e.EntityID, models.StateSynced)
		if errors.Is(err, common.ErrNotFound) {
			// A hard-deleted record has no row left to mark.
			return nil
		}
		return err
	})
}

func (p *Pusher) markError(ctx context.Context, e *models.OutboxEntry) error {
	rr := records.NewSQLiteRepository(p.db)
	err := rr.SetState(ctx, e.Type, e.EntityID, models.StateError)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}
