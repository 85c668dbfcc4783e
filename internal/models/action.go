package models

// ActionRecord is the immutable outcome of evaluating one triggering event.
type ActionRecord struct {
	ID         int64         `json:"id"`
	EventID    int64         `json:"event_id"`
	ActionType string        `json:"action_type"` // e.g. "email_alert"
	Details    ActionDetails `json:"details"`
	Timestamp  float64       `json:"timestamp"`
}

// ActionDetails captures how the triggered action went.
type ActionDetails struct {
	Status    string  `json:"status"` // "sent", "queued_for_retry"
	Recipient string  `json:"recipient"`
	Score     float64 `json:"score"`
	Error     string  `json:"error,omitempty"`
}
