package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/avoronin/paperkeep/internal/client/repositories/metadata"
	"github.com/avoronin/paperkeep/internal/logging"
)

var (
	// ErrPullInProgress is returned when a pull is requested while one is
	// already in flight. The second request is rejected, never queued.
	ErrPullInProgress = errors.New("pull already in progress")

	// ErrPushInProgress is the push-direction counterpart.
	ErrPushInProgress = errors.New("push already in progress")
)

// Result aggregates a full (pull then push) cycle.
type Result struct {
	Pull *MergeResult
	Push *PushResult
}

// Orchestrator sequences pull and push runs, owns the observable Status, and
// persists last-success timestamps. Pull and push are independent
// single-flight state machines: at most one run per direction, enforced by
// the Pulling/Pushing flags set before the first suspension point and
// cleared in a deferred step on every exit path.
type Orchestrator struct {
	puller *Puller
	pusher *Pusher
	meta   metadata.Repository
	log    logging.Logger

	mu        gosync.Mutex
	status    Status
	listeners map[int]Listener
	nextID    int
}

func NewOrchestrator(puller *Puller, pusher *Pusher, meta metadata.Repository, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		puller:    puller,
		pusher:    pusher,
		meta:      meta,
		log:       log,
		listeners: make(map[int]Listener),
	}
}

// Restore loads the persisted last-success timestamps into the status,
// typically once at startup.
func (o *Orchestrator) Restore(ctx context.Context) error {
	lastPull, err := o.meta.GetTime(ctx, metadata.KeyLastPullAt)
	if err != nil {
		return err
	}
	lastPush, err := o.meta.GetTime(ctx, metadata.KeyLastPushAt)
	if err != nil {
		return err
	}

	o.update(func(s *Status) {
		s.LastPullAt = lastPull
		s.LastPushAt = lastPush
	})
	return nil
}

// Status returns a copy of the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Subscribe registers a listener for status transitions and returns its
// unsubscribe function. Listeners receive a copy and cannot mutate status.
func (o *Orchestrator) Subscribe(l Listener) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = l
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// update applies fn to the status under the lock, then notifies listeners
// synchronously with a copy, outside the lock.
func (o *Orchestrator) update(fn func(*Status)) {
	o.mu.Lock()
	fn(&o.status)
	snapshot := o.status
	ls := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		ls = append(ls, l)
	}
	o.mu.Unlock()

	for _, l := range ls {
		l(snapshot)
	}
}

// tryBegin atomically checks-and-sets the in-flight flag selected by flag,
// then notifies listeners. The flag is up before the first suspension point
// of the run it guards.
func (o *Orchestrator) tryBegin(flag func(*Status) *bool, busy error) error {
	o.mu.Lock()
	f := flag(&o.status)
	if *f {
		o.mu.Unlock()
		return busy
	}
	*f = true
	snapshot := o.status
	ls := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		ls = append(ls, l)
	}
	o.mu.Unlock()

	for _, l := range ls {
		l(snapshot)
	}
	return nil
}

// PullSync runs one pull/merge cycle. It rejects immediately when a pull is
// already in flight.
func (o *Orchestrator) PullSync(ctx context.Context) (*MergeResult, error) {
	if err := o.tryBegin(func(s *Status) *bool { return &s.Pulling }, ErrPullInProgress); err != nil {
		return nil, err
	}

	var runErr error
	defer func() {
		o.update(func(s *Status) {
			s.Pulling = false
			if runErr != nil {
				s.PullError = runErr.Error()
			} else {
				s.PullError = ""
				s.LastPullAt = time.Now().UTC()
			}
		})
	}()

	result, err := o.puller.Run(ctx)
	if err != nil {
		runErr = err
		o.log.Error(ctx, "pull failed", "err", err)
		return nil, err
	}

	if err := o.meta.SetTime(ctx, metadata.KeyLastPullAt, time.Now().UTC()); err != nil {
		runErr = err
		return nil, err
	}
	o.log.Info(ctx, "pull completed", "collections", len(result.Collections), "failed", len(result.Failed))
	return result, nil
}

// PushSync runs one outbox drain cycle. It rejects immediately when a push
// is already in flight.
func (o *Orchestrator) PushSync(ctx context.Context) (*PushResult, error) {
	if err := o.tryBegin(func(s *Status) *bool { return &s.Pushing }, ErrPushInProgress); err != nil {
		return nil, err
	}

	var runErr error
	defer func() {
		o.update(func(s *Status) {
			s.Pushing = false
			if runErr != nil {
				s.PushError = runErr.Error()
			} else {
				s.PushError = ""
				s.LastPushAt = time.Now().UTC()
			}
		})
	}()

	result, err := o.pusher.Run(ctx)
	if err != nil {
		runErr = err
		o.log.Error(ctx, "push failed", "err", err)
		return nil, err
	}

	if err := o.meta.SetTime(ctx, metadata.KeyLastPushAt, time.Now().UTC()); err != nil {
		runErr = err
		return nil, err
	}
	o.log.Info(ctx, "push completed",
		"succeeded", result.Succeeded, "deleted", result.Deleted,
		"failed", result.Failed, "retried", result.Retried)
	return result, nil
}

// FullSync runs a pull followed by a push. Pull comes first so authoritative
// records land before local changes are evaluated for delivery. It succeeds
// only if both directions succeed.
func (o *Orchestrator) FullSync(ctx context.Context) (*Result, error) {
	pull, err := o.PullSync(ctx)
	if err != nil {
		return nil, err
	}
	push, err := o.PushSync(ctx)
	if err != nil {
		return &Result{Pull: pull}, err
	}
	return &Result{Pull: pull, Push: push}, nil
}

// SyncAfterLogin hydrates the local store once a session starts. A new
// device starts empty; a returning one may be stale.
func (o *Orchestrator) SyncAfterLogin(ctx context.Context) (*MergeResult, error) {
	return o.PullSync(ctx)
}

// HandleOnline is wired to the connectivity watcher's offline-to-online
// transition. The priority on reconnect is not losing local writes, so it
// drains the outbox rather than doing a full sync; pulls stay on their own
// cadence. An in-flight push makes this a no-op.
func (o *Orchestrator) HandleOnline(ctx context.Context) {
	if _, err := o.PushSync(ctx); err != nil && !errors.Is(err, ErrPushInProgress) {
		o.log.Warn(ctx, "reconnect push failed", "err", err)
	}
}
