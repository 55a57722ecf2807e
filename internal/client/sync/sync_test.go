package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	gosync "sync"
	"testing"
	"time"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/outbox"
	"github.com/avoronin/paperkeep/internal/client/repositories/records"
	"github.com/avoronin/paperkeep/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  entity_type TEXT NOT NULL,
  id          TEXT NOT NULL,
  fields      TEXT NOT NULL,
  state       TEXT NOT NULL DEFAULT 'pending',
  deleted     INTEGER NOT NULL DEFAULT 0,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  PRIMARY KEY (entity_type, id)
);

CREATE TABLE outbox (
  seq_no      INTEGER PRIMARY KEY AUTOINCREMENT,
  entity_type TEXT NOT NULL,
  entity_id   TEXT NOT NULL,
  op          TEXT NOT NULL CHECK (op IN ('create','update','delete')),
  payload     TEXT,
  retry_count INTEGER NOT NULL DEFAULT 0,
  last_error  TEXT NOT NULL DEFAULT '',
  created_at  TEXT NOT NULL
);

CREATE TABLE outbox_dead (
  seq_no          INTEGER PRIMARY KEY,
  entity_type     TEXT NOT NULL,
  entity_id       TEXT NOT NULL,
  op              TEXT NOT NULL,
  payload         TEXT,
  retry_count     INTEGER NOT NULL,
  last_error      TEXT NOT NULL DEFAULT '',
  created_at      TEXT NOT NULL,
  dead_lettered_at TEXT NOT NULL
);

CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedRecord(t *testing.T, db *sql.DB, typ models.EntityType, id, fields string, state models.SyncState) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, records.NewSQLiteRepository(db).Upsert(context.Background(), &models.Record{
		Type:      typ,
		ID:        id,
		Fields:    json.RawMessage(fields),
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func enqueue(t *testing.T, db *sql.DB, typ models.EntityType, id string, op models.Operation, payload string) {
	t.Helper()
	var p []byte
	if payload != "" {
		p = []byte(payload)
	}
	require.NoError(t, outbox.NewSQLiteRepository(db).Enqueue(context.Background(), typ, id, op, p))
}

type call struct {
	op  string
	typ models.EntityType
	id  string
}

// fakeAPI is an in-memory remote authority. Errors are injected per entity id
// (for upsert/delete) or per collection (for fetch).
type fakeAPI struct {
	mu gosync.Mutex

	stored  map[string]json.RawMessage
	calls   []call
	upserts map[string]error
	deletes map[string]error

	collections map[models.EntityType][]remote.RemoteRecord
	fetchErrs   map[models.EntityType]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		stored:      make(map[string]json.RawMessage),
		upserts:     make(map[string]error),
		deletes:     make(map[string]error),
		collections: make(map[models.EntityType][]remote.RemoteRecord),
		fetchErrs:   make(map[models.EntityType]error),
	}
}

func key(t models.EntityType, id string) string { return string(t) + "/" + id }

func (f *fakeAPI) Upsert(ctx context.Context, t models.EntityType, id string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "upsert", typ: t, id: id})
	if err := f.upserts[key(t, id)]; err != nil {
		return err
	}
	f.stored[key(t, id)] = payload
	return nil
}

func (f *fakeAPI) Delete(ctx context.Context, t models.EntityType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "delete", typ: t, id: id})
	if err := f.deletes[key(t, id)]; err != nil {
		return err
	}
	delete(f.stored, key(t, id))
	return nil
}

func (f *fakeAPI) FetchCollection(ctx context.Context, t models.EntityType) ([]remote.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[t]; err != nil {
		return nil, err
	}
	return f.collections[t], nil
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (string, error) {
	return "fake-token", nil
}

func (f *fakeAPI) Ping(ctx context.Context) error { return nil }

func (f *fakeAPI) AttachmentPutURL(ctx context.Context, key string) (string, error) {
	return "http://blob.local/" + key, nil
}

func (f *fakeAPI) callsFor(id string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.id == id {
			out = append(out, c)
		}
	}
	return out
}

func transientErr() error {
	return &remote.Error{Kind: remote.KindTransient, StatusCode: 503, Op: "upsert", Err: errBoom}
}

func permanentErr() error {
	return &remote.Error{Kind: remote.KindPermanent, StatusCode: 422, Op: "upsert", Err: errBoom}
}

func unauthorizedErr() error {
	return &remote.Error{Kind: remote.KindUnauthorized, StatusCode: 401, Op: "upsert", Err: errBoom}
}

var errBoom = errors.New("boom")
