package services

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/practice-server/internal/models"
)

// EventServiceProvider defines the interface for the audit log.
type EventServiceProvider interface {
	CreateEvent(eventType, collection, recordID, userID string) error
	GetRecentEvents(limit int) ([]models.Event, error)
}

// EventService writes audit events to the database.
type EventService struct {
	db  *sql.DB
	now func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db, now: time.Now}
}

// CreateEvent records an event.
func (s *EventService) CreateEvent(eventType, collection, recordID, userID string) error {
	event := models.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Collection: collection,
		RecordID:   recordID,
		UserID:     userID,
		CreatedAt:  s.now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO events (id, type, collection, record_id, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(event.ID, event.Type, event.Collection, event.RecordID, event.UserID, event.CreatedAt)
	return err
}

// GetRecentEvents retrieves the most recent events, newest first.
func (s *EventService) GetRecentEvents(limit int) ([]models.Event, error) {
	rows, err := s.db.Query("SELECT id, type, collection, record_id, user_id, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Collection, &event.RecordID, &event.UserID, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
