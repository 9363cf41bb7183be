package models

import "time"

type Ticket struct {
	TicketID     string     `json:"ticket_id"`
	Code         string     `json:"code"`
	ServiceID    string     `json:"service_id"`
	ServiceName  string     `json:"service_name,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	State        string     `json:"state"`
	AgentID      *string    `json:"agent_id,omitempty"`
	AgentName    *string    `json:"agent_name,omitempty"`
	Module       *string    `json:"module,omitempty"`
	Customer     Customer   `json:"customer"`
	CreatedAt    time.Time  `json:"created_at"`
	QueuedAt     time.Time  `json:"queued_at"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	AttendingAt  *time.Time `json:"attending_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	WaitSeconds  *int       `json:"wait_seconds,omitempty"`
	ServeSeconds *int       `json:"serve_seconds,omitempty"`
	Redirects    []Redirect `json:"redirects,omitempty"`
}

// Customer holds the walk-in data captured when the ticket is generated.
// Read-only after creation.
type Customer struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	UserType       string `json:"user_type,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Redirect is one hop in a ticket's append-only redirect history.
type Redirect struct {
	FromServiceID string    `json:"from_service_id"`
	ToServiceID   string    `json:"to_service_id"`
	At            time.Time `json:"at"`
}

const (
	StateCreated   = "created"
	StateCalled    = "called"
	StateAttending = "attending"
	StateClosed    = "closed"
	StateCancelled = "cancelled"
)

// IsTerminal reports whether a ticket in the given state can never change
// again.
func IsTerminal(state string) bool {
	return state == StateClosed || state == StateCancelled
}

func ValidState(state string) bool {
	switch state {
	case StateCreated, StateCalled, StateAttending, StateClosed, StateCancelled:
		return true
	}
	return false
}
