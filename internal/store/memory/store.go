// Package memory implements the ticket store and dispatch coordination
// in process. A single mutex covers every read-modify-write of ticket
// state and the queue index, so concurrent call-next invocations can
// never hand out the same ticket.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/models"
	"github.com/cristian138/turnos-act-unad/internal/queue"
	"github.com/cristian138/turnos-act-unad/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu          sync.Mutex
	tickets     map[string]*models.Ticket
	services    map[string]*models.Service
	settings    models.Settings
	index       *queue.Index
	sequences   map[string]int
	agentActive map[string]string
	events      []store.Event
}

func NewStore() *Store {
	return &Store{
		tickets:     make(map[string]*models.Ticket),
		services:    make(map[string]*models.Service),
		settings:    models.Settings{PrintingEnabled: true, Priorities: models.DefaultPriorities()},
		index:       queue.New(),
		sequences:   make(map[string]int),
		agentActive: make(map[string]string),
	}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[input.ServiceID]
	if !ok || !svc.Active {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	if input.Priority != "" && !contains(s.settings.Priorities, input.Priority) {
		return models.Ticket{}, store.ErrUnknownPriority
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ticket := &models.Ticket{
		TicketID:    uuid.NewString(),
		Code:        s.nextCode(svc, createdAt),
		ServiceID:   svc.ServiceID,
		ServiceName: svc.Name,
		Priority:    input.Priority,
		State:       models.StateCreated,
		Customer:    input.Customer,
		CreatedAt:   createdAt,
		QueuedAt:    createdAt,
	}
	s.tickets[ticket.TicketID] = ticket
	s.index.Enqueue(*ticket)
	s.appendEvent(store.EventTicketCreated, *ticket, createdAt)
	return *ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return snapshot(ticket), nil
}

func (s *Store) ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[serviceID]; !ok {
		return nil, store.ErrServiceNotFound
	}
	var tickets []models.Ticket
	for _, ticketID := range s.index.Ordered(serviceID) {
		tickets = append(tickets, snapshot(s.tickets[ticketID]))
	}
	return tickets, nil
}

func (s *Store) ListTickets(ctx context.Context, states []string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tickets []models.Ticket
	for _, ticket := range s.tickets {
		if len(states) > 0 && !contains(states, ticket.State) {
			continue
		}
		tickets = append(tickets, snapshot(ticket))
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
		}
		return tickets[i].TicketID < tickets[j].TicketID
	})
	return tickets, nil
}

func (s *Store) ListRecentCalls(ctx context.Context, window time.Duration, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}
	var tickets []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.CalledAt == nil || ticket.State == models.StateCancelled {
			continue
		}
		if !cutoff.IsZero() && ticket.CalledAt.Before(cutoff) {
			continue
		}
		tickets = append(tickets, snapshot(ticket))
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CalledAt.Equal(*tickets[j].CalledAt) {
			return tickets[i].CalledAt.After(*tickets[j].CalledAt)
		}
		return tickets[i].TicketID < tickets[j].TicketID
	})
	if limit > 0 && len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets, nil
}

func (s *Store) FindCustomer(ctx context.Context, documentNumber string) (models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found    bool
		latest   time.Time
		customer models.Customer
	)
	for _, ticket := range s.tickets {
		if ticket.Customer.DocumentNumber != documentNumber {
			continue
		}
		if !found || ticket.CreatedAt.After(latest) {
			found = true
			latest = ticket.CreatedAt
			customer = ticket.Customer
		}
	}
	if !found {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return customer, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activeID, busy := s.agentActive[input.AgentID]; busy {
		if active, ok := s.tickets[activeID]; ok && !models.IsTerminal(active.State) {
			return models.Ticket{}, store.ErrAgentBusy
		}
		delete(s.agentActive, input.AgentID)
	}

	ticketID, ok := s.index.Head(input.ServiceIDs...)
	if !ok {
		return models.Ticket{}, store.ErrQueueEmpty
	}
	ticket := s.tickets[ticketID]
	if !store.ValidTransition("call_next", ticket.State) {
		return models.Ticket{}, store.ErrInvalidState
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	waitSeconds := int(calledAt.Sub(ticket.CreatedAt).Seconds())

	s.index.Remove(ticket.TicketID)
	ticket.State = models.StateCalled
	ticket.AgentID = ptr(input.AgentID)
	ticket.AgentName = ptr(input.AgentName)
	ticket.Module = ptr(input.Module)
	ticket.CalledAt = &calledAt
	ticket.WaitSeconds = &waitSeconds
	s.agentActive[input.AgentID] = ticket.TicketID

	s.appendEvent(store.EventTicketCalled, *ticket, calledAt)
	return snapshot(ticket), nil
}

func (s *Store) AttendTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("attend", ticket.State) || !assignedTo(ticket, input.AgentID) {
		return models.Ticket{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	ticket.State = models.StateAttending
	ticket.AttendingAt = &occurredAt

	s.appendEvent(store.EventTicketAttending, *ticket, occurredAt)
	return snapshot(ticket), nil
}

func (s *Store) CloseTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("close", ticket.State) || !assignedTo(ticket, input.AgentID) {
		return models.Ticket{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	ticket.State = models.StateClosed
	ticket.ClosedAt = &occurredAt
	if ticket.AttendingAt != nil {
		serveSeconds := int(occurredAt.Sub(*ticket.AttendingAt).Seconds())
		ticket.ServeSeconds = &serveSeconds
	}
	if ticket.AgentID != nil {
		delete(s.agentActive, *ticket.AgentID)
	}

	s.appendEvent(store.EventTicketClosed, *ticket, occurredAt)
	return snapshot(ticket), nil
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("cancel", ticket.State) {
		return models.Ticket{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	s.index.Remove(ticket.TicketID)
	ticket.State = models.StateCancelled
	ticket.ClosedAt = &occurredAt

	s.appendEvent(store.EventTicketCancelled, *ticket, occurredAt)
	return snapshot(ticket), nil
}

func (s *Store) RedirectTicket(ctx context.Context, input store.RedirectInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("redirect", ticket.State) || !assignedTo(ticket, input.AgentID) {
		return models.Ticket{}, store.ErrInvalidState
	}
	if input.ToServiceID == ticket.ServiceID {
		return models.Ticket{}, store.ErrSameService
	}
	target, ok := s.services[input.ToServiceID]
	if !ok || !target.Active {
		return models.Ticket{}, store.ErrServiceNotFound
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	if ticket.AgentID != nil {
		delete(s.agentActive, *ticket.AgentID)
	}
	ticket.Redirects = append(ticket.Redirects, models.Redirect{
		FromServiceID: ticket.ServiceID,
		ToServiceID:   target.ServiceID,
		At:            occurredAt,
	})
	ticket.ServiceID = target.ServiceID
	ticket.ServiceName = target.Name
	ticket.State = models.StateCreated
	ticket.AgentID = nil
	ticket.AgentName = nil
	ticket.Module = nil
	ticket.CalledAt = nil
	ticket.AttendingAt = nil
	ticket.WaitSeconds = nil
	// Normal tickets rejoin at the tail of their tier; priority tickets
	// keep their original tier position.
	if ticket.Priority == "" {
		ticket.QueuedAt = occurredAt
	}
	s.index.Enqueue(*ticket)

	s.appendEvent(store.EventTicketRedirected, *ticket, occurredAt)
	return snapshot(ticket), nil
}

func (s *Store) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("recall", ticket.State) || !assignedTo(ticket, input.AgentID) {
		return models.Ticket{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	// Replay only: the snapshot is re-broadcast, called_at stays put.
	s.appendEvent(store.EventTicketCalled, *ticket, occurredAt)
	return snapshot(ticket), nil
}

func (s *Store) CreateService(ctx context.Context, input store.CreateServiceInput) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := strings.ToUpper(strings.TrimSpace(input.Prefix))
	for _, svc := range s.services {
		if svc.Prefix == prefix && svc.Active {
			return models.Service{}, store.ErrDuplicatePrefix
		}
	}
	svc := &models.Service{
		ServiceID: uuid.NewString(),
		Name:      strings.TrimSpace(input.Name),
		Prefix:    prefix,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.services[svc.ServiceID] = svc
	return *svc, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	return *svc, nil
}

func (s *Store) ListServices(ctx context.Context, includeInactive bool) ([]models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var services []models.Service
	for _, svc := range s.services {
		if !includeInactive && !svc.Active {
			continue
		}
		services = append(services, *svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *Store) UpdateService(ctx context.Context, serviceID string, input store.UpdateServiceInput) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[serviceID]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	if input.Prefix != nil {
		prefix := strings.ToUpper(strings.TrimSpace(*input.Prefix))
		for _, other := range s.services {
			if other.ServiceID != serviceID && other.Prefix == prefix && other.Active {
				return models.Service{}, store.ErrDuplicatePrefix
			}
		}
		svc.Prefix = prefix
	}
	if input.Name != nil {
		svc.Name = strings.TrimSpace(*input.Name)
	}
	if input.Active != nil {
		svc.Active = *input.Active
	}
	return *svc, nil
}

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySettings(s.settings), nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = copySettings(settings)
	return copySettings(s.settings), nil
}

func (s *Store) ListEvents(ctx context.Context, after time.Time, limit int) ([]store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var events []store.Event
	for _, event := range s.events {
		if !after.IsZero() && !event.CreatedAt.After(after) {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

// nextCode allocates the next per-service code for the creation day.
func (s *Store) nextCode(svc *models.Service, createdAt time.Time) string {
	key := svc.ServiceID + "|" + createdAt.UTC().Format("2006-01-02")
	s.sequences[key]++
	return fmt.Sprintf("%s%03d", svc.Prefix, s.sequences[key])
}

func (s *Store) appendEvent(eventType string, ticket models.Ticket, at time.Time) {
	event, err := store.NewEvent(uuid.NewString(), eventType, ticket, at)
	if err != nil {
		return
	}
	s.events = append(s.events, event)
}

func assignedTo(ticket *models.Ticket, agentID string) bool {
	return ticket.AgentID != nil && *ticket.AgentID == agentID
}

func snapshot(ticket *models.Ticket) models.Ticket {
	copied := *ticket
	if len(ticket.Redirects) > 0 {
		copied.Redirects = append([]models.Redirect(nil), ticket.Redirects...)
	}
	return copied
}

func copySettings(settings models.Settings) models.Settings {
	copied := settings
	copied.Priorities = append([]string(nil), settings.Priorities...)
	return copied
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func ptr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
