// Package sync implements the offline-first synchronization engine: the push
// processor that drains the mutation outbox to the remote authority, the
// pull/merge engine that folds authoritative snapshots into the local store
// without clobbering unacknowledged local writes, and the orchestrator that
// sequences the two and publishes status transitions.
package sync

import "time"

// Status is the observable sync state. Listeners always receive a copy;
// LastPullAt/LastPushAt are also persisted and survive restarts.
type Status struct {
	LastPullAt time.Time
	LastPushAt time.Time

	// Pulling/Pushing guard against overlapping runs of the same direction.
	Pulling bool
	Pushing bool

	// PullError/PushError hold the last whole-operation failure message,
	// cleared on the next success of that direction.
	PullError string
	PushError string
}

// Listener observes status transitions. It is invoked synchronously with a
// copy of the status and must not block for long.
type Listener func(Status)
