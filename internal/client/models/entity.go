// Package models defines the client-side data model: the closed set of
// entity types, the generic synced record shape, the outbox entry, and the
// typed per-entity payloads.
package models

// EntityType identifies one of the synced collections. The set is closed;
// every dispatch site switches exhaustively over these values so adding a
// collection is a compile-time-checked change.
type EntityType string

const (
	EntityReceipt      EntityType = "receipt"
	EntityDevice       EntityType = "device"
	EntityBill         EntityType = "bill"
	EntityReminder     EntityType = "reminder"
	EntityDocument     EntityType = "document"
	EntitySubscription EntityType = "subscription"
	EntitySettings     EntityType = "settings"
)

// AllEntityTypes returns every synced entity type, in a stable order. Used to
// fan out pull fetches and to validate incoming values.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityReceipt,
		EntityDevice,
		EntityBill,
		EntityReminder,
		EntityDocument,
		EntitySubscription,
		EntitySettings,
	}
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityReceipt, EntityDevice, EntityBill, EntityReminder,
		EntityDocument, EntitySubscription, EntitySettings:
		return true
	}
	return false
}

// UsesSoftDelete reports whether records of this type are tombstoned rather
// than physically removed. Settings is a per-identity singleton and is the
// only hard-deleted type.
func (t EntityType) UsesSoftDelete() bool {
	switch t {
	case EntityReceipt, EntityDevice, EntityBill, EntityReminder,
		EntityDocument, EntitySubscription:
		return true
	case EntitySettings:
		return false
	}
	return false
}

// Operation is the kind of local mutation recorded in the outbox.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// SyncState is the local-only delivery state of a record. It is never sent
// to the remote and never trusted from it.
type SyncState string

const (
	StatePending SyncState = "pending"
	StateSynced  SyncState = "synced"
	StateError   SyncState = "error"
)
