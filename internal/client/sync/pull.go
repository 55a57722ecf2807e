package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/outbox"
	"github.com/avoronin/paperkeep/internal/client/repositories/records"
	"github.com/avoronin/paperkeep/internal/common"
	"github.com/avoronin/paperkeep/internal/dbx"
	"github.com/avoronin/paperkeep/internal/logging"
)

// CollectionCounts reports what one collection merge did.
type CollectionCounts struct {
	Inserted int
	Updated  int
	Skipped  int
}

// MergeResult reports one pull cycle. Failed collections are isolated: the
// pull itself still succeeds as long as the remote was reachable.
type MergeResult struct {
	Collections map[models.EntityType]CollectionCounts
	Failed      map[models.EntityType]string
}

// Puller fetches the authoritative remote snapshot and folds it into the
// local store. The merge never touches a record that still has a pending
// outbox entry, which is what makes running it alongside a push safe.
type Puller struct {
	db  *sql.DB
	api remote.API
	log logging.Logger
}

func NewPuller(db *sql.DB, api remote.API, log logging.Logger) *Puller {
	return &Puller{db: db, api: api, log: log}
}

type fetchOutcome struct {
	t       models.EntityType
	records []remote.RemoteRecord
	err     error
}

// Run fetches every collection independently and merges the ones that
// succeeded. A single collection failure is logged and skipped for this
// cycle; an auth failure or all collections failing aborts the whole pull.
func (p *Puller) Run(ctx context.Context) (*MergeResult, error) {
	types := models.AllEntityTypes()
	outcomes := make([]fetchOutcome, len(types))

	// Independent fan-out with per-task error capture: one failed fetch
	// must never cancel its siblings.
	var wg gosync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t models.EntityType) {
			defer wg.Done()
			recs, err := p.api.FetchCollection(ctx, t)
			outcomes[i] = fetchOutcome{t: t, records: recs, err: err}
		}(i, t)
	}
	wg.Wait()

	result := &MergeResult{
		Collections: make(map[models.EntityType]CollectionCounts, len(types)),
		Failed:      make(map[models.EntityType]string),
	}

	var firstErr error
	for _, o := range outcomes {
		if o.err == nil {
			continue
		}
		if remote.IsUnauthorized(o.err) {
			return nil, fmt.Errorf("pull aborted: %w", o.err)
		}
		if firstErr == nil {
			firstErr = o.err
		}
		p.log.Warn(ctx, "collection fetch failed, skipping for this cycle",
			"type", o.t, "err", o.err)
		result.Failed[o.t] = o.err.Error()
	}
	if len(result.Failed) == len(types) {
		return nil, fmt.Errorf("pull failed: remote unreachable: %w", firstErr)
	}

	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		counts, err := p.mergeCollection(ctx, o.t, o.records)
		if err != nil {
			// Store-level failure, not a per-collection remote one.
			return nil, fmt.Errorf("merge %s: %w", o.t, err)
		}
		result.Collections[o.t] = counts
	}

	return result, nil
}

// mergeCollection applies one fetched collection inside a single local
// transaction. For each remote record: unknown id is inserted as synced; a
// known id with nothing outstanding is overwritten and marked synced; a
// known id with a pending outbox entry is left untouched: the local
// unsynced mutation wins until it is pushed.
func (p *Puller) mergeCollection(ctx context.Context, t models.EntityType, remoteRecs []remote.RemoteRecord) (CollectionCounts, error) {
	var counts CollectionCounts

	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ob := outbox.NewSQLiteRepository(tx)
		rr := records.NewSQLiteRepository(tx)

		pending, err := ob.PendingIDs(ctx, t)
		if err != nil {
			return err
		}

		for _, rrec := range remoteRecs {
			local, err := rr.GetByID(ctx, t, rrec.ID)
			switch {
			case errors.Is(err, common.ErrNotFound):
				now := time.Now().UTC()
				if err := rr.Upsert(ctx, &models.Record{
					Type:      t,
					ID:        rrec.ID,
					Fields:    rrec.Fields,
					State:     models.StateSynced,
					CreatedAt: now,
					UpdatedAt: now,
				}); err != nil {
					return err
				}
				counts.Inserted++

			case err != nil:
				return err

			default:
				if _, dirty := pending[rrec.ID]; dirty {
					counts.Skipped++
					continue
				}
				local.Fields = rrec.Fields
				local.State = models.StateSynced
				local.Deleted = false
				local.UpdatedAt = time.Now().UTC()
				if err := rr.Upsert(ctx, local); err != nil {
					return err
				}
				counts.Updated++
			}
		}
		return nil
	})

	return counts, err
}
