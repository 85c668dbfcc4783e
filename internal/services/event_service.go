package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/siftwatch/sift-be/internal/models"
)

// Broadcaster pushes a message to all connected live observers. Implemented
// by the websocket hub; fan-out is best-effort and must never block callers.
type Broadcaster interface {
	BroadcastKind(kind string, payload any)
}

// EventServiceProvider defines the interface for event storage.
type EventServiceProvider interface {
	InsertEvent(user, action string, payload map[string]any, timestamp float64) (int64, error)
	FetchUnprocessed(limit int) ([]models.Event, error)
	MarkProcessed(eventID int64) error
	GetRecentEvents(limit int) ([]models.Event, error)
}

// EventService owns the append-only event log. The worker loop is the only
// caller of MarkProcessed; ingestion handlers only insert.
type EventService struct {
	db  *sql.DB
	hub Broadcaster
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB, hub Broadcaster) *EventService {
	return &EventService{db: db, hub: hub}
}

// InsertEvent appends a new event and broadcasts it to live observers.
// A zero timestamp is replaced with the server clock.
func (s *EventService) InsertEvent(user, action string, payload map[string]any, timestamp float64) (int64, error) {
	if action == "" {
		return 0, fmt.Errorf("event action must not be empty")
	}
	if timestamp == 0 {
		timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := s.db.Exec(
		"INSERT INTO events (user, action, payload_json, timestamp, processed) VALUES (?, ?, ?, ?, 0)",
		nullableString(user), action, payloadJSON, timestamp,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if s.hub != nil {
		s.hub.BroadcastKind("event", models.Event{
			ID:        id,
			User:      user,
			Action:    action,
			Payload:   payload,
			Timestamp: timestamp,
		})
	}
	return id, nil
}

// FetchUnprocessed returns up to limit unprocessed events, oldest first.
func (s *EventService) FetchUnprocessed(limit int) ([]models.Event, error) {
	rows, err := s.db.Query(`
		SELECT id, user, action, payload_json, timestamp, processed
		FROM events WHERE processed = 0 ORDER BY timestamp ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkProcessed flags an event as handled. Marking an already-processed
// event is a no-op.
func (s *EventService) MarkProcessed(eventID int64) error {
	_, err := s.db.Exec("UPDATE events SET processed = 1 WHERE id = ?", eventID)
	return err
}

// GetRecentEvents retrieves the most recent events, newest first.
func (s *EventService) GetRecentEvents(limit int) ([]models.Event, error) {
	rows, err := s.db.Query(`
		SELECT id, user, action, payload_json, timestamp, processed
		FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var (
			event       models.Event
			user        sql.NullString
			payloadJSON sql.NullString
			processed   int
		)
		if err := rows.Scan(&event.ID, &user, &event.Action, &payloadJSON, &event.Timestamp, &processed); err != nil {
			return nil, err
		}
		event.User = user.String
		event.Processed = processed != 0
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &event.Payload); err != nil {
				// Leave the payload nil; scoring treats it as empty.
				event.Payload = nil
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
