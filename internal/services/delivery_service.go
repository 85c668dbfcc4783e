package services

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/siftwatch/sift-be/internal/models"
)

// DeliveryServiceProvider defines the interface for the durable retry queue
// and the delivery audit log.
type DeliveryServiceProvider interface {
	Enqueue(entry models.DeliveryQueueEntry) (int64, error)
	FetchDue(now float64, limit int) ([]models.DeliveryQueueEntry, error)
	RecordFailure(id int64, attempts int, nextRetryAt float64) error
	Remove(id int64) error
	QueueDepth() (int, error)
	PendingQueue(limit int) ([]models.DeliveryQueueEntry, error)
	AppendLog(entry models.DeliveryLogEntry) error
	RecentLog(limit int) ([]models.DeliveryLogEntry, error)
}

// DeliveryService owns the delivery_queue and delivery_log tables. The retry
// scheduler is the only mutator of queue rows; the log is append-only and
// never drives control flow.
type DeliveryService struct {
	db *sql.DB
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(db *sql.DB) *DeliveryService {
	return &DeliveryService{db: db}
}

// Enqueue adds a failed delivery to the retry queue.
func (s *DeliveryService) Enqueue(entry models.DeliveryQueueEntry) (int64, error) {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = nowEpoch()
	}
	if entry.NextRetryAt == 0 {
		entry.NextRetryAt = entry.CreatedAt
	}
	res, err := s.db.Exec(`
		INSERT INTO delivery_queue (event_id, subject, body, recipient, attempts, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID, entry.Subject, entry.Body, entry.Recipient, entry.Attempts, entry.NextRetryAt, entry.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FetchDue returns queue entries whose next_retry_at has elapsed, ordered by
// next_retry_at so the longest-waiting deliveries go first.
func (s *DeliveryService) FetchDue(now float64, limit int) ([]models.DeliveryQueueEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, subject, body, recipient, attempts, next_retry_at, created_at
		FROM delivery_queue WHERE next_retry_at <= ? ORDER BY next_retry_at ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DeliveryQueueEntry
	for rows.Next() {
		var e models.DeliveryQueueEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.Subject, &e.Body, &e.Recipient, &e.Attempts, &e.NextRetryAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordFailure bumps the attempt counter and schedules the next retry.
func (s *DeliveryService) RecordFailure(id int64, attempts int, nextRetryAt float64) error {
	_, err := s.db.Exec("UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?", attempts, nextRetryAt, id)
	return err
}

// Remove deletes a queue entry after a successful delivery or dead-letter.
func (s *DeliveryService) Remove(id int64) error {
	_, err := s.db.Exec("DELETE FROM delivery_queue WHERE id = ?", id)
	return err
}

// QueueDepth returns the number of entries still awaiting retry.
func (s *DeliveryService) QueueDepth() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM delivery_queue").Scan(&n)
	return n, err
}

// PendingQueue lists queue entries for inspection, soonest retry first.
func (s *DeliveryService) PendingQueue(limit int) ([]models.DeliveryQueueEntry, error) {
	return s.FetchDue(float64(time.Now().AddDate(100, 0, 0).Unix()), limit)
}

// AppendLog writes one immutable delivery log record.
func (s *DeliveryService) AppendLog(entry models.DeliveryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = nowEpoch()
	}
	_, err := s.db.Exec(`
		INSERT INTO delivery_log (id, event_id, recipient, status, error, attempt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EventID, entry.Recipient, entry.Status, entry.Error, entry.Attempt, entry.CreatedAt,
	)
	return err
}

// RecentLog retrieves the most recent delivery log entries, newest first.
func (s *DeliveryService) RecentLog(limit int) ([]models.DeliveryLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, recipient, status, error, attempt, created_at
		FROM delivery_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DeliveryLogEntry
	for rows.Next() {
		var (
			e      models.DeliveryLogEntry
			errMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Recipient, &e.Status, &errMsg, &e.Attempt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
