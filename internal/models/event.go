package models

// Event represents a single reported occurrence awaiting evaluation.
type Event struct {
	ID        int64          `json:"id"`
	User      string         `json:"user,omitempty"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp float64        `json:"timestamp"` // epoch seconds
	Processed bool           `json:"processed"`
}
