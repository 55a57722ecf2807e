package models

import "time"

// OutboxEntry is one queued local mutation awaiting remote acknowledgment.
//
// Entries are created in the same transaction as the record write they
// describe and removed only after the remote confirms delivery. Nothing else
// mutates an entry except RetryCount/LastError.
type OutboxEntry struct {
	// SeqNo is the store-assigned insertion sequence. Draining in SeqNo
	// order preserves create/update/delete ordering per entity id.
	SeqNo int64

	// Type and EntityID name the affected record.
	Type     EntityType
	EntityID string

	// Op is the mutation kind.
	Op Operation

	// Payload is the full (create) or partial (update) field set to apply
	// remotely. Empty for deletes.
	Payload []byte

	// RetryCount is the number of failed delivery attempts so far.
	RetryCount int

	// LastError is the message of the most recent delivery failure.
	LastError string

	// CreatedAt is when the mutation was enqueued, in UTC.
	CreatedAt time.Time
}
