package models

import "time"

// Event represents an audited action against the server.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"` // e.g., "record.create", "user.login"
	Collection string    `json:"collection,omitempty"`
	RecordID   string    `json:"recordId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Event types written by the services.
const (
	EventRecordCreate = "record.create"
	EventRecordUpdate = "record.update"
	EventRecordDelete = "record.delete"
	EventUserRegister = "user.register"
	EventUserLogin    = "user.login"
	EventUserLogout   = "user.logout"
)
