// Package postgres implements the ticket store on PostgreSQL. Dispatch
// atomicity comes from the database: call-next claims the queue head with
// FOR UPDATE SKIP LOCKED inside a transaction, and day codes come from an
// ON CONFLICT upsert on the per-service sequence row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/models"
	"github.com/cristian138/turnos-act-unad/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const codePad = 3

const ticketColumns = `ticket_id, code, service_id, service_name, priority, state,
	agent_id, agent_name, module, customer, redirects, created_at, queued_at,
	called_at, attending_at, closed_at, wait_seconds, serve_seconds`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	svc, err := lookupActiveService(ctx, tx, input.ServiceID)
	if err != nil {
		return models.Ticket{}, err
	}

	if input.Priority != "" {
		var allowed bool
		allowed, err = priorityAllowed(ctx, tx, input.Priority)
		if err != nil {
			return models.Ticket{}, err
		}
		if !allowed {
			return models.Ticket{}, store.ErrUnknownPriority
		}
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	seq, err := nextTicketNumber(ctx, tx, svc.ServiceID, createdAt)
	if err != nil {
		return models.Ticket{}, err
	}
	code := fmt.Sprintf("%s%0*d", svc.Prefix, codePad, seq)

	customerJSON, err := json.Marshal(input.Customer)
	if err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, code, service_id, service_name, priority, state,
			customer, redirects, created_at, queued_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,'[]',$8,$8)
		RETURNING `+ticketColumns+`
	`, uuid.NewString(), code, svc.ServiceID, svc.Name, nullIfEmpty(input.Priority), models.StateCreated, customerJSON, createdAt)
	if ticket, err = scanTicket(row); err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventTicketCreated, ticket, createdAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM services WHERE service_id = $1)`, serviceID)
	if err := row.Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrServiceNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE service_id = $1 AND state = $2
		ORDER BY (priority IS NOT NULL) DESC, queued_at ASC, ticket_id ASC
	`, serviceID, models.StateCreated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *Store) ListTickets(ctx context.Context, states []string) ([]models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
	`
	args := []interface{}{}
	if len(states) > 0 {
		query += " WHERE state = ANY($1)"
		args = append(args, states)
	}
	query += " ORDER BY created_at ASC, ticket_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *Store) ListRecentCalls(ctx context.Context, window time.Duration, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE called_at IS NOT NULL AND state <> $1
	`
	args := []interface{}{models.StateCancelled}
	if window > 0 {
		query += " AND called_at >= $2 ORDER BY called_at DESC, ticket_id ASC LIMIT $3"
		args = append(args, time.Now().UTC().Add(-window), limit)
	} else {
		query += " ORDER BY called_at DESC, ticket_id ASC LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *Store) FindCustomer(ctx context.Context, documentNumber string) (models.Customer, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT customer
		FROM tickets
		WHERE customer->>'document_number' = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, documentNumber)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, store.ErrCustomerNotFound
		}
		return models.Customer{}, err
	}
	var customer models.Customer
	if err := json.Unmarshal(raw, &customer); err != nil {
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serialize per agent so a double-click cannot assign two tickets.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, input.AgentID); err != nil {
		return models.Ticket{}, err
	}
	var busy bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE agent_id = $1 AND state IN ($2, $3)
		)
	`, input.AgentID, models.StateCalled, models.StateAttending)
	if err = row.Scan(&busy); err != nil {
		return models.Ticket{}, err
	}
	if busy {
		return models.Ticket{}, store.ErrAgentBusy
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var ticket models.Ticket
	row = tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE service_id = ANY($1) AND state = $2
			ORDER BY (priority IS NOT NULL) DESC, queued_at ASC, ticket_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET state = $3,
			agent_id = $4,
			agent_name = $5,
			module = $6,
			called_at = $7,
			wait_seconds = EXTRACT(EPOCH FROM ($7 - tickets.created_at))::int
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING `+prefixedTicketColumns("tickets")+`
	`, input.ServiceIDs, models.StateCreated, models.StateCalled,
		input.AgentID, nullIfEmpty(input.AgentName), nullIfEmpty(input.Module), calledAt)
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrQueueEmpty
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventTicketCalled, ticket, calledAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) AttendTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := orNow(input.OccurredAt)
	return s.transition(ctx, input, store.EventTicketAttending, `
		UPDATE tickets
		SET state = $1, attending_at = $2
		WHERE ticket_id = $3 AND state = $4 AND agent_id = $5
		RETURNING `+ticketColumns, occurredAt,
		[]interface{}{models.StateAttending, occurredAt, input.TicketID, models.StateCalled, input.AgentID})
}

func (s *Store) CloseTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := orNow(input.OccurredAt)
	return s.transition(ctx, input, store.EventTicketClosed, `
		UPDATE tickets
		SET state = $1,
			closed_at = $2,
			serve_seconds = CASE
				WHEN attending_at IS NOT NULL THEN EXTRACT(EPOCH FROM ($2 - attending_at))::int
			END
		WHERE ticket_id = $3 AND state = $4 AND agent_id = $5
		RETURNING `+ticketColumns, occurredAt,
		[]interface{}{models.StateClosed, occurredAt, input.TicketID, models.StateAttending, input.AgentID})
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := orNow(input.OccurredAt)
	return s.transition(ctx, input, store.EventTicketCancelled, `
		UPDATE tickets
		SET state = $1, closed_at = $2
		WHERE ticket_id = $3 AND state = $4
		RETURNING `+ticketColumns, occurredAt,
		[]interface{}{models.StateCancelled, occurredAt, input.TicketID, models.StateCreated})
}

// transition runs one guarded UPDATE and distinguishes a missing ticket
// from an illegal state when no row matched.
func (s *Store) transition(ctx context.Context, input store.TicketActionInput, eventType, query string, occurredAt time.Time, args []interface{}) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ticket models.Ticket
	row := tx.QueryRow(ctx, query, args...)
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			checkErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id = $1)`, input.TicketID).Scan(&exists)
			if checkErr != nil {
				return models.Ticket{}, checkErr
			}
			if !exists {
				return models.Ticket{}, store.ErrTicketNotFound
			}
			return models.Ticket{}, store.ErrInvalidState
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, eventType, ticket, occurredAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) RedirectTicket(ctx context.Context, input store.RedirectInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
		FOR UPDATE
	`, input.TicketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}

	if !store.ValidTransition("redirect", ticket.State) || ticket.AgentID == nil || *ticket.AgentID != input.AgentID {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}
	if input.ToServiceID == ticket.ServiceID {
		err = store.ErrSameService
		return models.Ticket{}, err
	}
	target, err := lookupActiveService(ctx, tx, input.ToServiceID)
	if err != nil {
		return models.Ticket{}, err
	}

	occurredAt := orNow(input.OccurredAt)
	redirects := append(ticket.Redirects, models.Redirect{
		FromServiceID: ticket.ServiceID,
		ToServiceID:   target.ServiceID,
		At:            occurredAt,
	})
	redirectsJSON, err := json.Marshal(redirects)
	if err != nil {
		return models.Ticket{}, err
	}

	queuedAt := ticket.QueuedAt
	if ticket.Priority == "" {
		queuedAt = occurredAt
	}

	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET service_id = $1,
			service_name = $2,
			state = $3,
			agent_id = NULL,
			agent_name = NULL,
			module = NULL,
			called_at = NULL,
			attending_at = NULL,
			wait_seconds = NULL,
			queued_at = $4,
			redirects = $5
		WHERE ticket_id = $6
		RETURNING `+ticketColumns+`
	`, target.ServiceID, target.Name, models.StateCreated, queuedAt, redirectsJSON, input.TicketID)
	if ticket, err = scanTicket(row); err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventTicketRedirected, ticket, occurredAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, input.TicketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !store.ValidTransition("recall", ticket.State) || ticket.AgentID == nil || *ticket.AgentID != input.AgentID {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}

	// Notification replay, not a transition: only the outbox is touched.
	if err = insertOutboxEvent(ctx, tx, store.EventTicketCalled, ticket, orNow(input.OccurredAt)); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CreateService(ctx context.Context, input store.CreateServiceInput) (models.Service, error) {
	prefix := strings.ToUpper(strings.TrimSpace(input.Prefix))
	var svc models.Service
	row := s.pool.QueryRow(ctx, `
		INSERT INTO services (service_id, name, prefix, active, created_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT DO NOTHING
		RETURNING service_id, name, prefix, active, created_at
	`, uuid.NewString(), strings.TrimSpace(input.Name), prefix, time.Now().UTC())
	if err := row.Scan(&svc.ServiceID, &svc.Name, &svc.Prefix, &svc.Active, &svc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrDuplicatePrefix
		}
		return models.Service{}, err
	}
	return svc, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	var svc models.Service
	row := s.pool.QueryRow(ctx, `
		SELECT service_id, name, prefix, active, created_at
		FROM services
		WHERE service_id = $1
	`, serviceID)
	if err := row.Scan(&svc.ServiceID, &svc.Name, &svc.Prefix, &svc.Active, &svc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, includeInactive bool) ([]models.Service, error) {
	query := `
		SELECT service_id, name, prefix, active, created_at
		FROM services
	`
	if !includeInactive {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.Name, &svc.Prefix, &svc.Active, &svc.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) UpdateService(ctx context.Context, serviceID string, input store.UpdateServiceInput) (models.Service, error) {
	sets := []string{}
	args := []interface{}{}
	argPos := 1
	if input.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argPos))
		args = append(args, strings.TrimSpace(*input.Name))
		argPos++
	}
	if input.Prefix != nil {
		sets = append(sets, fmt.Sprintf("prefix = $%d", argPos))
		args = append(args, strings.ToUpper(strings.TrimSpace(*input.Prefix)))
		argPos++
	}
	if input.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", argPos))
		args = append(args, *input.Active)
		argPos++
	}
	if len(sets) == 0 {
		return s.GetService(ctx, serviceID)
	}

	args = append(args, serviceID)
	var svc models.Service
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE services
		SET %s
		WHERE service_id = $%d
		RETURNING service_id, name, prefix, active, created_at
	`, strings.Join(sets, ", "), argPos), args...)
	if err := row.Scan(&svc.ServiceID, &svc.Name, &svc.Prefix, &svc.Active, &svc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	var settings models.Settings
	row := s.pool.QueryRow(ctx, `SELECT printing_enabled, priorities FROM settings`)
	if err := row.Scan(&settings.PrintingEnabled, &settings.Priorities); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Settings{PrintingEnabled: true, Priorities: models.DefaultPriorities()}, nil
		}
		return models.Settings{}, err
	}
	return settings, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO settings (singleton, printing_enabled, priorities)
		VALUES (TRUE, $1, $2)
		ON CONFLICT (singleton)
		DO UPDATE SET printing_enabled = EXCLUDED.printing_enabled, priorities = EXCLUDED.priorities
		RETURNING printing_enabled, priorities
	`, settings.PrintingEnabled, settings.Priorities)
	var updated models.Settings
	if err := row.Scan(&updated.PrintingEnabled, &updated.Priorities); err != nil {
		return models.Settings{}, err
	}
	return updated, nil
}

func (s *Store) ListEvents(ctx context.Context, after time.Time, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, type, ticket_id, service_id, payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.Event
	for rows.Next() {
		var event store.Event
		if err := rows.Scan(&event.EventID, &event.Type, &event.TicketID, &event.ServiceID, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func lookupActiveService(ctx context.Context, tx pgx.Tx, serviceID string) (models.Service, error) {
	var svc models.Service
	row := tx.QueryRow(ctx, `
		SELECT service_id, name, prefix, active, created_at
		FROM services
		WHERE service_id = $1 AND active = TRUE
	`, serviceID)
	if err := row.Scan(&svc.ServiceID, &svc.Name, &svc.Prefix, &svc.Active, &svc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func priorityAllowed(ctx context.Context, tx pgx.Tx, priority string) (bool, error) {
	var priorities []string
	row := tx.QueryRow(ctx, `SELECT priorities FROM settings`)
	if err := row.Scan(&priorities); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			priorities = models.DefaultPriorities()
		} else {
			return false, err
		}
	}
	for _, tag := range priorities {
		if tag == priority {
			return true, nil
		}
	}
	return false, nil
}

func nextTicketNumber(ctx context.Context, tx pgx.Tx, serviceID string, createdAt time.Time) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (service_id, seq_date, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_id, seq_date)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, serviceID, createdAt.UTC().Format("2006-01-02"))
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket, at time.Time) error {
	event, err := store.NewEvent(uuid.NewString(), eventType, ticket, at)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, ticket_id, service_id, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.EventID, event.Type, event.TicketID, event.ServiceID, []byte(event.Payload), event.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var priority, agentID, agentName, module sql.NullString
	var calledAt, attendingAt, closedAt sql.NullTime
	var waitSeconds, serveSeconds sql.NullInt64
	var customerJSON, redirectsJSON []byte

	if err := row.Scan(
		&ticket.TicketID, &ticket.Code, &ticket.ServiceID, &ticket.ServiceName,
		&priority, &ticket.State, &agentID, &agentName, &module,
		&customerJSON, &redirectsJSON, &ticket.CreatedAt, &ticket.QueuedAt,
		&calledAt, &attendingAt, &closedAt, &waitSeconds, &serveSeconds,
	); err != nil {
		return models.Ticket{}, err
	}

	if priority.Valid {
		ticket.Priority = priority.String
	}
	ticket.AgentID = nullStringPtr(agentID)
	ticket.AgentName = nullStringPtr(agentName)
	ticket.Module = nullStringPtr(module)
	ticket.CalledAt = nullTimePtr(calledAt)
	ticket.AttendingAt = nullTimePtr(attendingAt)
	ticket.ClosedAt = nullTimePtr(closedAt)
	ticket.WaitSeconds = nullIntPtr(waitSeconds)
	ticket.ServeSeconds = nullIntPtr(serveSeconds)

	if len(customerJSON) > 0 {
		if err := json.Unmarshal(customerJSON, &ticket.Customer); err != nil {
			return models.Ticket{}, err
		}
	}
	if len(redirectsJSON) > 0 {
		if err := json.Unmarshal(redirectsJSON, &ticket.Redirects); err != nil {
			return models.Ticket{}, err
		}
	}
	return ticket, nil
}

func scanTickets(rows pgx.Rows) ([]models.Ticket, error) {
	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func prefixedTicketColumns(alias string) string {
	parts := strings.Split(ticketColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func orNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullIntPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	intValue := int(value.Int64)
	return &intValue
}
