package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/models"
	"github.com/cristian138/turnos-act-unad/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestCallNextConcurrency(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := createTestService(t, ctx, st, "Registro", "A")
	for i := 0; i < 4; i++ {
		createTestTicket(t, ctx, st, svc.ServiceID, "")
	}

	var wg sync.WaitGroup
	results := make(chan string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			ticket, err := st.CallNext(ctx, store.CallNextInput{
				AgentID:    agent,
				ServiceIDs: []string{svc.ServiceID},
				CalledAt:   time.Now().UTC(),
			})
			if err != nil {
				t.Errorf("call next: %v", err)
				return
			}
			results <- ticket.TicketID
		}(uuid.NewString())
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Fatalf("ticket %s assigned twice", id)
		}
		seen[id] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct tickets, got %d", len(seen))
	}
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := createTestService(t, ctx, st, "Registro", "A")
	ticket := createTestTicket(t, ctx, st, svc.ServiceID, "")
	if ticket.Code != "A001" {
		t.Fatalf("expected code A001, got %s", ticket.Code)
	}

	agent := uuid.NewString()
	called, err := st.CallNext(ctx, store.CallNextInput{
		AgentID:    agent,
		AgentName:  "Luz",
		Module:     "Modulo 3",
		ServiceIDs: []string{svc.ServiceID},
		CalledAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.State != models.StateCalled || called.WaitSeconds == nil {
		t.Fatalf("unexpected called ticket: %+v", called)
	}

	// The same agent cannot take a second ticket while one is active.
	createTestTicket(t, ctx, st, svc.ServiceID, "")
	if _, err := st.CallNext(ctx, store.CallNextInput{AgentID: agent, ServiceIDs: []string{svc.ServiceID}, CalledAt: time.Now().UTC()}); !errors.Is(err, store.ErrAgentBusy) {
		t.Fatalf("expected ErrAgentBusy, got %v", err)
	}

	attending, err := st.AttendTicket(ctx, store.TicketActionInput{TicketID: ticket.TicketID, AgentID: agent, OccurredAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("attend: %v", err)
	}
	if attending.State != models.StateAttending || attending.AttendingAt == nil {
		t.Fatalf("unexpected attending ticket: %+v", attending)
	}

	closed, err := st.CloseTicket(ctx, store.TicketActionInput{TicketID: ticket.TicketID, AgentID: agent, OccurredAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State != models.StateClosed || closed.ServeSeconds == nil {
		t.Fatalf("unexpected closed ticket: %+v", closed)
	}

	events, err := st.ListEvents(ctx, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var types []string
	for _, event := range events {
		if event.TicketID == ticket.TicketID {
			types = append(types, event.Type)
		}
	}
	want := []string{store.EventTicketCreated, store.EventTicketCalled, store.EventTicketAttending, store.EventTicketClosed}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestPriorityBeforeNormal(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := createTestService(t, ctx, st, "Registro", "A")
	createTestTicket(t, ctx, st, svc.ServiceID, "")
	priority := createTestTicket(t, ctx, st, svc.ServiceID, "Embarazo")

	first, err := st.CallNext(ctx, store.CallNextInput{
		AgentID:    uuid.NewString(),
		ServiceIDs: []string{svc.ServiceID},
		CalledAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if first.TicketID != priority.TicketID {
		t.Fatalf("expected priority ticket first, got %s", first.Code)
	}
}

func TestRedirectRequeuesAtTail(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	source := createTestService(t, ctx, st, "Registro", "A")
	target := createTestService(t, ctx, st, "Consejeria", "C")

	moved := createTestTicket(t, ctx, st, source.ServiceID, "")
	waiting := createTestTicket(t, ctx, st, target.ServiceID, "")

	agent := uuid.NewString()
	if _, err := st.CallNext(ctx, store.CallNextInput{AgentID: agent, ServiceIDs: []string{source.ServiceID}, CalledAt: time.Now().UTC()}); err != nil {
		t.Fatalf("call next: %v", err)
	}

	redirected, err := st.RedirectTicket(ctx, store.RedirectInput{
		TicketID:    moved.TicketID,
		AgentID:     agent,
		ToServiceID: target.ServiceID,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if redirected.ServiceID != target.ServiceID || redirected.State != models.StateCreated {
		t.Fatalf("unexpected redirected ticket: %+v", redirected)
	}
	if redirected.AgentID != nil || redirected.CalledAt != nil {
		t.Fatalf("expected call assignment cleared: %+v", redirected)
	}
	if len(redirected.Redirects) != 1 {
		t.Fatalf("expected 1 redirect entry, got %d", len(redirected.Redirects))
	}
	if redirected.Code != moved.Code {
		t.Fatalf("expected code kept, got %s", redirected.Code)
	}

	first, err := st.CallNext(ctx, store.CallNextInput{AgentID: uuid.NewString(), ServiceIDs: []string{target.ServiceID}, CalledAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if first.TicketID != waiting.TicketID {
		t.Fatalf("expected earlier walk-in first, got %s", first.Code)
	}
}

func TestDailyCodesIndependentPerService(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	a := createTestService(t, ctx, st, "Registro", "A")
	b := createTestService(t, ctx, st, "Pagos", "B")

	if got := createTestTicket(t, ctx, st, a.ServiceID, "").Code; got != "A001" {
		t.Fatalf("expected A001, got %s", got)
	}
	if got := createTestTicket(t, ctx, st, a.ServiceID, "").Code; got != "A002" {
		t.Fatalf("expected A002, got %s", got)
	}
	if got := createTestTicket(t, ctx, st, b.ServiceID, "").Code; got != "B001" {
		t.Fatalf("expected B001, got %s", got)
	}
}

func TestFindCustomerByDocument(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := createTestService(t, ctx, st, "Registro", "A")

	if _, err := st.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID: svc.ServiceID,
		Customer:  models.Customer{DocumentNumber: "1012345678", FullName: "Ana Prueba"},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if _, err := st.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID: svc.ServiceID,
		Customer:  models.Customer{DocumentNumber: "1012345678", FullName: "Ana P. Gomez", Phone: "3001234567"},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	customer, err := st.FindCustomer(ctx, "1012345678")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if customer.FullName != "Ana P. Gomez" {
		t.Fatalf("expected most recent customer data, got %+v", customer)
	}

	if _, err := st.FindCustomer(ctx, "999"); !errors.Is(err, store.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func createTestService(t *testing.T, ctx context.Context, st *Store, name, prefix string) models.Service {
	t.Helper()
	svc, err := st.CreateService(ctx, store.CreateServiceInput{Name: name, Prefix: prefix})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

func createTestTicket(t *testing.T, ctx context.Context, st *Store, serviceID, priority string) models.Ticket {
	t.Helper()
	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID: serviceID,
		Priority:  priority,
		Customer:  models.Customer{DocumentType: "CC", DocumentNumber: "1012345678", FullName: "Ana Prueba"},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return NewStore(pool), cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return err
		}
	}
	return nil
}
