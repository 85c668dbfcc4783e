package models

// Delivery log statuses. The log is an append-only audit trail and never
// drives control flow; only the queue table does.
const (
	DeliveryStatusSent       = "sent"
	DeliveryStatusFailed     = "failed"
	DeliveryStatusDeadLetter = "dead_letter"
)

// DeliveryQueueEntry is a notification awaiting retry. Rows are created when
// the initial synchronous attempts fail and removed on a later success.
type DeliveryQueueEntry struct {
	ID          int64   `json:"id"`
	EventID     int64   `json:"event_id"`
	Subject     string  `json:"subject"`
	Body        string  `json:"body"`
	Recipient   string  `json:"recipient"`
	Attempts    int     `json:"attempts"`
	NextRetryAt float64 `json:"next_retry_at"` // epoch seconds
	CreatedAt   float64 `json:"created_at"`
}

// DeliveryLogEntry is an immutable record of one delivery attempt.
type DeliveryLogEntry struct {
	ID        string  `json:"id"`
	EventID   int64   `json:"event_id"`
	Recipient string  `json:"recipient"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	Attempt   int     `json:"attempt"`
	CreatedAt float64 `json:"created_at"`
}
