package websocket

// StreamMessage is what observers receive: the record kind plus the record.
type StreamMessage struct {
	Type    string `json:"type"` // "event", "action", "delivery"
	Payload any    `json:"payload"`
}

// ClientMessage is a control message received from an observer.
type ClientMessage struct {
	Action  string `json:"action"` // "subscribe"
	Payload struct {
		Kinds []string `json:"kinds"`
	} `json:"payload"`
}
