package hub

import (
	"encoding/json"
	"log"

	"github.com/cristian138/turnos-act-unad/internal/models"
)

// Envelope is the wire shape pushed to realtime clients.
type Envelope struct {
	Type      string        `json:"type"`
	Ticket    models.Ticket `json:"ticket"`
	CreatedAt string        `json:"created_at"`
}

// Broadcaster publishes ticket events to the hub after the owning store
// transaction has committed. Delivery is best effort, disconnected viewers
// catch up through the events endpoint.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(h *Hub) *Broadcaster {
	return &Broadcaster{hub: h}
}

func (b *Broadcaster) Publish(eventType string, ticket models.Ticket, createdAt string) {
	if b == nil || b.hub == nil {
		return
	}
	payload, err := json.Marshal(Envelope{Type: eventType, Ticket: ticket, CreatedAt: createdAt})
	if err != nil {
		log.Printf("marshal realtime event %s: %v", eventType, err)
		return
	}
	b.hub.Broadcast(payload, Subscription{ServiceID: ticket.ServiceID, EventType: eventType})
}
