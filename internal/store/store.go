package store

import (
	"context"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/models"
)

type CreateTicketInput struct {
	ServiceID string
	Priority  string
	Customer  models.Customer
	CreatedAt time.Time
}

type CallNextInput struct {
	AgentID    string
	AgentName  string
	Module     string
	ServiceIDs []string
	CalledAt   time.Time
}

type TicketActionInput struct {
	TicketID   string
	AgentID    string
	OccurredAt time.Time
}

type RedirectInput struct {
	TicketID    string
	AgentID     string
	ToServiceID string
	OccurredAt  time.Time
}

type CreateServiceInput struct {
	Name   string
	Prefix string
}

type UpdateServiceInput struct {
	Name   *string
	Prefix *string
	Active *bool
}

// TicketStore is the durable record of tickets and the serialization point
// for every state mutation. Implementations guarantee that call-next never
// hands the same ticket to two agents and that queue reads never observe a
// torn update.
type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)

	// ListQueue returns the created tickets of one service in call order:
	// priority tier first, FIFO within a tier.
	ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error)
	// ListTickets returns tickets in any of the given states across all
	// services, oldest first. An empty state set means all states.
	ListTickets(ctx context.Context, states []string) ([]models.Ticket, error)
	// ListRecentCalls feeds the public display: tickets that have been
	// called, most recent call first, bounded by limit and window.
	ListRecentCalls(ctx context.Context, window time.Duration, limit int) ([]models.Ticket, error)
	// FindCustomer returns the customer data of the most recent ticket
	// carrying the given document number, for prefilling staff-assisted
	// ticket creation.
	FindCustomer(ctx context.Context, documentNumber string) (models.Customer, error)

	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, error)
	AttendTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CloseTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	RedirectTicket(ctx context.Context, input RedirectInput) (models.Ticket, error)
	// RecallTicket replays the call notification for a ticket currently in
	// state called. It mutates nothing; the returned snapshot is re-broadcast.
	RecallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)

	CreateService(ctx context.Context, input CreateServiceInput) (models.Service, error)
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	ListServices(ctx context.Context, includeInactive bool) ([]models.Service, error)
	UpdateService(ctx context.Context, serviceID string, input UpdateServiceInput) (models.Service, error)

	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error)

	ListEvents(ctx context.Context, after time.Time, limit int) ([]Event, error)
}
