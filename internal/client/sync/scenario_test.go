package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/outbox"
	"github.com/avoronin/paperkeep/internal/client/repositories/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The full offline round-trip: a receipt total edited to 500 offline must
// survive a pull that still carries the stale remote 300, be delivered on the
// next push, and only then accept remote snapshots again.
func TestScenario_OfflineEditSurvivesStalePull(t *testing.T) {
	db := setupDB(t)
	api := newFakeAPI()
	log := testLogger()
	ctx := context.Background()

	rr := records.NewSQLiteRepository(db)
	ob := outbox.NewSQLiteRepository(db)

	// Both sides start in agreement at 300.
	seedRecord(t, db, models.EntityReceipt, "r7", `{"totalAmount":300}`, models.StateSynced)
	api.stored[key(models.EntityReceipt, "r7")] = json.RawMessage(`{"totalAmount":300}`)
	api.collections[models.EntityReceipt] = []remote.RemoteRecord{
		{ID: "r7", Fields: json.RawMessage(`{"id":"r7","totalAmount":300}`)},
	}

	// Offline edit to 500: record rewritten as pending, mutation queued.
	seedRecord(t, db, models.EntityReceipt, "r7", `{"totalAmount":500}`, models.StatePending)
	require.NoError(t, ob.Enqueue(ctx, models.EntityReceipt, "r7", models.OpUpdate, []byte(`{"totalAmount":500}`)))

	// A pull while the edit is still queued must not clobber it.
	pullRes, err := NewPuller(db, api, log).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pullRes.Collections[models.EntityReceipt].Skipped)

	rec, err := rr.GetByID(ctx, models.EntityReceipt, "r7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalAmount":500}`, string(rec.Fields))

	// Back online: the push drains the queue and the edit reaches the remote.
	pushRes, err := NewPusher(db, api, log).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushRes.Succeeded)
	assert.JSONEq(t, `{"totalAmount":500}`, string(api.stored[key(models.EntityReceipt, "r7")]))

	rec, err = rr.GetByID(ctx, models.EntityReceipt, "r7")
	require.NoError(t, err)
	assert.Equal(t, models.StateSynced, rec.State)

	// With nothing queued anymore, the next pull is authoritative again.
	api.collections[models.EntityReceipt] = []remote.RemoteRecord{
		{ID: "r7", Fields: json.RawMessage(`{"id":"r7","totalAmount":500,"merchantName":"acme"}`)},
	}
	pullRes, err = NewPuller(db, api, log).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pullRes.Collections[models.EntityReceipt].Updated)

	rec, err = rr.GetByID(ctx, models.EntityReceipt, "r7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r7","totalAmount":500,"merchantName":"acme"}`, string(rec.Fields))
}

// Deleting offline queues a tombstone push; the pull in between must not
// resurrect the record while the delete is still queued.
func TestScenario_OfflineDeleteBeatsStaleSnapshot(t *testing.T) {
	db := setupDB(t)
	api := newFakeAPI()
	log := testLogger()
	ctx := context.Background()

	rr := records.NewSQLiteRepository(db)
	ob := outbox.NewSQLiteRepository(db)

	seedRecord(t, db, models.EntitySubscription, "sub1", `{"service":"news"}`, models.StateSynced)
	api.stored[key(models.EntitySubscription, "sub1")] = json.RawMessage(`{"service":"news"}`)
	api.collections[models.EntitySubscription] = []remote.RemoteRecord{
		{ID: "sub1", Fields: json.RawMessage(`{"id":"sub1","service":"news"}`)},
	}

	require.NoError(t, rr.Delete(ctx, models.EntitySubscription, "sub1"))
	require.NoError(t, ob.Enqueue(ctx, models.EntitySubscription, "sub1", models.OpDelete, nil))

	pullRes, err := NewPuller(db, api, log).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pullRes.Collections[models.EntitySubscription].Skipped)

	rec, err := rr.GetByID(ctx, models.EntitySubscription, "sub1")
	require.NoError(t, err)
	assert.True(t, rec.Deleted, "tombstone survives the stale pull")

	pushRes, err := NewPusher(db, api, log).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushRes.Deleted)
	assert.NotContains(t, api.stored, key(models.EntitySubscription, "sub1"))
}
