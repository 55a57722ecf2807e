package models

import (
	"encoding/json"
	"time"
)

// Record is the generic shape shared by all synced entity types.
//
// ID is assigned client-side (uuid) before the first local write and is
// stable across the local and remote stores; idempotent remote upserts
// depend on this. Fields holds the full domain field set as JSON.
// CreatedAt/UpdatedAt are informational only and play no part in conflict
// resolution.
type Record struct {
	// Type is the collection this record belongs to.
	Type EntityType

	// ID is the client-assigned, globally unique identifier.
	ID string

	// Fields is the full domain field set, serialized as a JSON object.
	Fields json.RawMessage

	// State tracks local delivery: pending, synced or error.
	State SyncState

	// Deleted marks the record as a tombstone (soft-deleted types only).
	Deleted bool

	// CreatedAt is the local creation time in UTC.
	CreatedAt time.Time

	// UpdatedAt is the last local modification time in UTC.
	UpdatedAt time.Time
}

// MergeFields overlays the fields present in partial onto base and returns
// the merged JSON object. Fields absent from partial keep their base value
// (coalesce semantics, never null-overwrite). Used when a local update
// carries only the changed fields.
func MergeFields(base, partial json.RawMessage) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, err
		}
	}
	var patch map[string]any
	if len(partial) > 0 {
		if err := json.Unmarshal(partial, &patch); err != nil {
			return nil, err
		}
	}
	for k, v := range patch {
		merged[k] = v
	}
	return json.Marshal(merged)
}
