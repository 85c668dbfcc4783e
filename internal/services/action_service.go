package services

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/siftwatch/sift-be/internal/models"
)

// ActionServiceProvider defines the interface for the action audit trail.
type ActionServiceProvider interface {
	CreateAction(eventID int64, actionType string, details models.ActionDetails) (models.ActionRecord, error)
	GetRecentActions(limit int) ([]models.ActionRecord, error)
	CountSince(ts float64) (total int, triggered int, err error)
}

// ActionService owns the append-only action table. Records are written once
// by the worker loop and never mutated.
type ActionService struct {
	db  *sql.DB
	hub Broadcaster
}

// NewActionService creates a new ActionService.
func NewActionService(db *sql.DB, hub Broadcaster) *ActionService {
	return &ActionService{db: db, hub: hub}
}

// CreateAction appends a new action record and broadcasts it.
func (s *ActionService) CreateAction(eventID int64, actionType string, details models.ActionDetails) (models.ActionRecord, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return models.ActionRecord{}, err
	}
	ts := float64(time.Now().UnixNano()) / float64(time.Second)

	res, err := s.db.Exec(
		"INSERT INTO actions (event_id, action_type, details_json, timestamp) VALUES (?, ?, ?, ?)",
		eventID, actionType, string(detailsJSON), ts,
	)
	if err != nil {
		return models.ActionRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.ActionRecord{}, err
	}

	record := models.ActionRecord{
		ID:         id,
		EventID:    eventID,
		ActionType: actionType,
		Details:    details,
		Timestamp:  ts,
	}
	if s.hub != nil {
		s.hub.BroadcastKind("action", record)
	}
	return record, nil
}

// GetRecentActions retrieves the most recent action records, newest first.
func (s *ActionService) GetRecentActions(limit int) ([]models.ActionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, action_type, details_json, timestamp
		FROM actions ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ActionRecord
	for rows.Next() {
		var (
			record      models.ActionRecord
			detailsJSON sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.EventID, &record.ActionType, &detailsJSON, &record.Timestamp); err != nil {
			return nil, err
		}
		if detailsJSON.Valid {
			_ = json.Unmarshal([]byte(detailsJSON.String), &record.Details)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountSince returns how many events were ingested and how many actions were
// triggered after ts. Used by the digest scheduler.
func (s *ActionService) CountSince(ts float64) (int, int, error) {
	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE timestamp > ?", ts).Scan(&total); err != nil {
		return 0, 0, err
	}
	var triggered int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM actions WHERE timestamp > ?", ts).Scan(&triggered); err != nil {
		return 0, 0, err
	}
	return total, triggered, nil
}
