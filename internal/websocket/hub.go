package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/metrics"
)

// Hub maintains the set of active observers and fans messages out to them.
// The hub goroutine is the only owner of the client set; disconnects detected
// during a send are handled here, never by the sender.
type Hub struct {
	// Registered observers.
	clients map[*Client]bool

	// Outbound messages for global broadcast.
	Broadcast chan []byte

	// Register requests from new observers.
	Register chan *Client

	// Unregister requests from observers.
	Unregister chan *Client
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:  make(chan []byte, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			metrics.ObserversConnected.Set(float64(len(h.clients)))
			log.Info().Str("client_id", client.ID).Int("total_observers", len(h.clients)).Msg("Observer connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				metrics.ObserversConnected.Set(float64(len(h.clients)))
				log.Info().Str("client_id", client.ID).Int("total_observers", len(h.clients)).Msg("Observer disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow or gone; drop it rather than stall the hub.
					close(client.Send)
					delete(h.clients, client)
				}
			}
			metrics.BroadcastsSent.Inc()
			metrics.ObserversConnected.Set(float64(len(h.clients)))
		}
	}
}

// BroadcastKind encodes a stream message once and fans it out. Observers that
// narrowed their subscription only receive the kinds they asked for (the
// filter sits in the client write path). Never blocks the caller.
func (h *Hub) BroadcastKind(kind string, payload any) {
	data, err := json.Marshal(StreamMessage{Type: kind, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("Failed to encode broadcast message")
		return
	}
	select {
	case h.Broadcast <- data:
	default:
		// Hub backed up; broadcast is best-effort by contract.
		log.Warn().Str("kind", kind).Msg("Broadcast channel full, message dropped")
	}
}
