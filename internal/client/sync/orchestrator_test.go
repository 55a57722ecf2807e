package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T) (*Orchestrator, *fakeAPI, metadata.Repository) {
	t.Helper()
	db := setupDB(t)
	api := newFakeAPI()
	log := testLogger()
	meta := metadata.NewSQLiteRepository(db)
	o := NewOrchestrator(NewPuller(db, api, log), NewPusher(db, api, log), meta, log)
	return o, api, meta
}

func TestOrchestrator_PullSyncUpdatesStatusAndPersistsTimestamp(t *testing.T) {
	o, _, meta := newOrchestrator(t)
	ctx := context.Background()

	before := time.Now().UTC()
	_, err := o.PullSync(ctx)
	require.NoError(t, err)

	st := o.Status()
	assert.False(t, st.Pulling)
	assert.Empty(t, st.PullError)
	assert.False(t, st.LastPullAt.Before(before))

	persisted, err := meta.GetTime(ctx, metadata.KeyLastPullAt)
	require.NoError(t, err)
	assert.False(t, persisted.IsZero())
}

func TestOrchestrator_PullErrorRecordedAndCleared(t *testing.T) {
	o, api, _ := newOrchestrator(t)
	ctx := context.Background()

	for _, typ := range models.AllEntityTypes() {
		api.fetchErrs[typ] = transientErr()
	}
	_, err := o.PullSync(ctx)
	require.Error(t, err)

	st := o.Status()
	assert.NotEmpty(t, st.PullError)
	assert.True(t, st.LastPullAt.IsZero(), "failed pull must not advance the timestamp")

	// A later successful pull clears the error.
	for _, typ := range models.AllEntityTypes() {
		delete(api.fetchErrs, typ)
	}
	_, err = o.PullSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, o.Status().PullError)
	assert.False(t, o.Status().LastPullAt.IsZero())
}

func TestOrchestrator_SingleFlightPerDirection(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	// Re-entering from a listener observes the in-flight flag up.
	var sawBusy bool
	unsub := o.Subscribe(func(s Status) {
		if s.Pulling && !sawBusy {
			sawBusy = true
			_, err := o.PullSync(ctx)
			assert.ErrorIs(t, err, ErrPullInProgress)

			// The other direction is independent.
			_, err = o.PushSync(ctx)
			assert.NoError(t, err)
		}
	})
	defer unsub()

	_, err := o.PullSync(ctx)
	require.NoError(t, err)
	assert.True(t, sawBusy)
}

func TestOrchestrator_SubscribeAndUnsubscribe(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	var got []Status
	unsub := o.Subscribe(func(s Status) { got = append(got, s) })

	_, err := o.PushSync(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "one transition in, one out")
	assert.True(t, got[0].Pushing)
	assert.False(t, got[1].Pushing)

	unsub()
	_, err = o.PushSync(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2, "no notifications after unsubscribe")
}

func TestOrchestrator_RestoreLoadsPersistedTimestamps(t *testing.T) {
	o, _, meta := newOrchestrator(t)
	ctx := context.Background()

	pullAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	pushAt := time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC)
	require.NoError(t, meta.SetTime(ctx, metadata.KeyLastPullAt, pullAt))
	require.NoError(t, meta.SetTime(ctx, metadata.KeyLastPushAt, pushAt))

	require.NoError(t, o.Restore(ctx))

	st := o.Status()
	assert.True(t, st.LastPullAt.Equal(pullAt))
	assert.True(t, st.LastPushAt.Equal(pushAt))
}

func TestOrchestrator_FullSyncPullsThenPushes(t *testing.T) {
	o, api, _ := newOrchestrator(t)
	ctx := context.Background()

	api.collections[models.EntityReceipt] = []remote.RemoteRecord{
		{ID: "r1", Fields: json.RawMessage(`{"id":"r1"}`)},
	}

	res, err := o.FullSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Pull)
	require.NotNil(t, res.Push)
	assert.Equal(t, 1, res.Pull.Collections[models.EntityReceipt].Inserted)

	st := o.Status()
	assert.False(t, st.LastPullAt.IsZero())
	assert.False(t, st.LastPushAt.IsZero())
}

func TestOrchestrator_HandleOnlineTreatsBusyPushAsNoOp(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	o.mu.Lock()
	o.status.Pushing = true
	o.mu.Unlock()

	// Must not panic or log spuriously; the busy error is swallowed.
	o.HandleOnline(ctx)
	assert.True(t, o.Status().Pushing, "flag owned by the in-flight run is untouched")
}
