package models

import (
	"encoding/json"
	"time"
)

// TypedPayload is implemented by every per-entity field struct.
type TypedPayload interface {
	GetType() EntityType
}

// Receipt stores a purchase record.
type Receipt struct {
	Merchant      string    `json:"merchant"`
	TotalAmount   float64   `json:"totalAmount"`
	Currency      string    `json:"currency"`
	PurchasedAt   time.Time `json:"purchasedAt"`
	Category      string    `json:"category,omitempty"`
	AttachmentKey string    `json:"attachmentKey,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

func (Receipt) GetType() EntityType { return EntityReceipt }

// Device stores a purchased device and its warranty window.
type Device struct {
	Name          string    `json:"name"`
	Brand         string    `json:"brand,omitempty"`
	SerialNumber  string    `json:"serialNumber,omitempty"`
	PurchasedAt   time.Time `json:"purchasedAt"`
	WarrantyUntil time.Time `json:"warrantyUntil,omitempty"`
	ReceiptID     string    `json:"receiptId,omitempty"`
}

func (Device) GetType() EntityType { return EntityDevice }

// Bill stores a payable with a due date.
type Bill struct {
	Payee    string    `json:"payee"`
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
	DueAt    time.Time `json:"dueAt"`
	Paid     bool      `json:"paid"`
}

func (Bill) GetType() EntityType { return EntityBill }

// Reminder stores a dated note tied to an optional parent record.
type Reminder struct {
	Title    string    `json:"title"`
	RemindAt time.Time `json:"remindAt"`
	ParentID string    `json:"parentId,omitempty"`
	Done     bool      `json:"done"`
}

func (Reminder) GetType() EntityType { return EntityReminder }

// Document stores a filed document reference.
type Document struct {
	Title         string    `json:"title"`
	Kind          string    `json:"kind,omitempty"`
	AttachmentKey string    `json:"attachmentKey,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

func (Document) GetType() EntityType { return EntityDocument }

// Subscription stores a recurring charge.
type Subscription struct {
	Service     string    `json:"service"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Interval    string    `json:"interval"`
	NextRenewal time.Time `json:"nextRenewal,omitempty"`
	Active      bool      `json:"active"`
}

func (Subscription) GetType() EntityType { return EntitySubscription }

// Settings is the per-identity preferences singleton.
type Settings struct {
	Currency         string `json:"currency"`
	ReminderLeadDays int    `json:"reminderLeadDays"`
	Locale           string `json:"locale,omitempty"`
}

func (Settings) GetType() EntityType { return EntitySettings }

// WrapPayload serializes a typed payload into record fields.
func WrapPayload(p TypedPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}

// UnwrapPayload deserializes record fields into the typed payload for t.
func UnwrapPayload(t EntityType, fields json.RawMessage) (TypedPayload, error) {
	switch t {
	case EntityReceipt:
		var v Receipt
		return v, json.Unmarshal(fields, &v)
	case EntityDevice:
		var v Device
		return v, json.Unmarshal(fields, &v)
	case EntityBill:
		var v Bill
		return v, json.Unmarshal(fields, &v)
	case EntityReminder:
		var v Reminder
		return v, json.Unmarshal(fields, &v)
	case EntityDocument:
		var v Document
		return v, json.Unmarshal(fields, &v)
	case EntitySubscription:
		var v Subscription
		return v, json.Unmarshal(fields, &v)
	case EntitySettings:
		var v Settings
		return v, json.Unmarshal(fields, &v)
	}
	return nil, ErrUnknownEntityType
}
