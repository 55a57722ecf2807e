// Package cli is the thin interactive surface of the PaperKeep client. All
// record and sync logic lives in the services and sync packages; the CLI
// only wires them together and translates user input.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/avoronin/paperkeep/internal/client/config"
	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/metadata"
	"github.com/avoronin/paperkeep/internal/client/services"
	"github.com/avoronin/paperkeep/internal/client/store"
	syncpkg "github.com/avoronin/paperkeep/internal/client/sync"
	"github.com/avoronin/paperkeep/internal/logging"
	"github.com/avoronin/paperkeep/internal/netx"

	_ "modernc.org/sqlite"
)

type App struct {
	config  *config.Config
	db      *sql.DB
	log     logging.Logger
	records services.RecordService
	session services.SessionService
	orch    *syncpkg.Orchestrator
	watcher *netx.Watcher
	reader  *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	db, err := store.Open(ctx, c.DatabasePath)
	if err != nil {
		return nil, err
	}

	log := logging.NewSlogLogger(slog.Default())
	meta := metadata.NewSQLiteRepository(db)

	// The remote client reads the bearer token from the persisted session
	// on every request, so a fresh login is picked up immediately.
	api := remote.NewHTTPClient(c.ServerBaseURL, func(ctx context.Context) (string, error) {
		raw, err := meta.Get(ctx, metadata.KeySessionToken)
		return string(raw), err
	})

	puller := syncpkg.NewPuller(db, api, log)
	pusher := syncpkg.NewPusher(db, api, log)
	orch := syncpkg.NewOrchestrator(puller, pusher, meta, log)
	if err := orch.Restore(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	watcher := netx.NewWatcher(api.Ping, c.OnlineCheckInterval, log)
	// On reconnect the priority is draining local writes; pulls stay on the
	// login trigger and manual cadence.
	watcher.OnOnline(func() {
		orch.HandleOnline(context.Background())
	})

	return &App{
		config:  c,
		db:      db,
		log:     log,
		records: services.NewRecordService(db, api),
		session: services.NewSessionService(api, meta),
		orch:    orch,
		watcher: watcher,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()

	go a.watcher.Run(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.statusLine, scanner)
}
