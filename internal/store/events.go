package store

import (
	"encoding/json"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/models"
)

// Event types published for every committed ticket transition. The
// payload is always the full ticket snapshot after the transition.
const (
	EventTicketCreated    = "ticket.created"
	EventTicketCalled     = "ticket.called"
	EventTicketAttending  = "ticket.attending"
	EventTicketClosed     = "ticket.closed"
	EventTicketCancelled  = "ticket.cancelled"
	EventTicketRedirected = "ticket.redirected"
)

// Event is one entry of the append-only change record. Successful
// create/update operations append exactly one inside the same commit;
// observers that missed push deliveries replay the record through
// ListEvents.
type Event struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	TicketID  string          `json:"ticket_id"`
	ServiceID string          `json:"service_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an event carrying the given ticket snapshot.
func NewEvent(eventID, eventType string, ticket models.Ticket, at time.Time) (Event, error) {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:   eventID,
		Type:      eventType,
		TicketID:  ticket.TicketID,
		ServiceID: ticket.ServiceID,
		Payload:   payload,
		CreatedAt: at,
	}, nil
}
