package netx

import (
	"context"
	"sync"
	"time"

	"github.com/avoronin/paperkeep/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Probe checks remote reachability, typically a health-endpoint ping.
type Probe func(ctx context.Context) error

// Watcher polls a reachability probe and notifies subscribers when the
// connection transitions from absent to present. Subscribers are invoked on
// the watcher goroutine; long work belongs in the callback's own goroutine.
type Watcher struct {
	probe    Probe
	interval time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	subs   []func()
}

func NewWatcher(probe Probe, interval time.Duration, log logging.Logger) *Watcher {
	return &Watcher{probe: probe, interval: interval, log: log}
}

// OnOnline registers fn to run on every offline-to-online transition.
func (w *Watcher) OnOnline(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Online reports the last observed reachability.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// check runs one probe. A couple of quick in-probe retries keep a single
// dropped packet from flapping the state.
func (w *Watcher) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(probeCtx, b, func(ctx context.Context) error {
		if err := w.probe(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	w.mu.Lock()
	wasOnline := w.online
	w.online = err == nil
	var subs []func()
	if !wasOnline && w.online {
		subs = append(subs, w.subs...)
	}
	w.mu.Unlock()

	if err == nil && !wasOnline {
		w.log.Info(ctx, "connectivity restored")
		for _, fn := range subs {
			fn()
		}
	}
	if err != nil && wasOnline {
		w.log.Warn(ctx, "connectivity lost", "err", err)
	}
}
