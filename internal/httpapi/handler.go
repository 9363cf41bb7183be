package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/hub"
	"github.com/cristian138/turnos-act-unad/internal/models"
	"github.com/cristian138/turnos-act-unad/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store        store.TicketStore
	broadcaster  *hub.Broadcaster
	recentLimit  int
	recentWindow time.Duration
}

type Options struct {
	Broadcaster  *hub.Broadcaster
	RecentLimit  int
	RecentWindow time.Duration
}

func NewHandler(st store.TicketStore, options Options) *Handler {
	limit := options.RecentLimit
	if limit <= 0 {
		limit = 10
	}
	return &Handler{
		store:        st,
		broadcaster:  options.Broadcaster,
		recentLimit:  limit,
		recentWindow: options.RecentWindow,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubtree)
	mux.HandleFunc("/api/queues", h.handleQueue)
	mux.HandleFunc("/api/recent-calls", h.handleRecentCalls)
	mux.HandleFunc("/api/customers", h.handleCustomerLookup)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/services/", h.handleServiceByID)
	mux.HandleFunc("/api/settings", h.handleSettings)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTicketRequest struct {
	ServiceID string          `json:"service_id"`
	Priority  string          `json:"priority"`
	Customer  models.Customer `json:"customer"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateTicket(w, r)
	case http.MethodGet:
		h.handleListTickets(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Priority = strings.TrimSpace(req.Priority)
	req.Customer.DocumentNumber = strings.TrimSpace(req.Customer.DocumentNumber)
	req.Customer.FullName = strings.TrimSpace(req.Customer.FullName)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)

	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if req.Customer.DocumentNumber == "" || req.Customer.FullName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer document_number and full_name are required")
		return
	}
	if req.Customer.Phone != "" && !isValidPhone(req.Customer.Phone) {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone must be 7-16 digits")
		return
	}

	ticket, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
		ServiceID: req.ServiceID,
		Priority:  req.Priority,
		Customer:  req.Customer,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.publish(store.EventTicketCreated, ticket)
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	var states []string
	for _, raw := range r.URL.Query()["state"] {
		state := strings.TrimSpace(raw)
		if state == "" {
			continue
		}
		if !models.ValidState(state) {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown state "+state)
			return
		}
		states = append(states, state)
	}

	tickets, err := h.store.ListTickets(r.Context(), states)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

type callNextRequest struct {
	AgentID    string   `json:"agent_id"`
	AgentName  string   `json:"agent_name"`
	Module     string   `json:"module"`
	ServiceIDs []string `json:"service_ids"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.AgentID = strings.TrimSpace(req.AgentID)
	req.AgentName = strings.TrimSpace(req.AgentName)
	req.Module = strings.TrimSpace(req.Module)
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}

	serviceIDs := make([]string, 0, len(req.ServiceIDs))
	for _, raw := range req.ServiceIDs {
		serviceID := strings.TrimSpace(raw)
		if serviceID == "" {
			continue
		}
		if !isValidUUID(serviceID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "service_ids must be UUIDs")
			return
		}
		serviceIDs = append(serviceIDs, serviceID)
	}
	if len(serviceIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one service_id is required")
		return
	}

	ticket, err := h.store.CallNext(r.Context(), store.CallNextInput{
		AgentID:    req.AgentID,
		AgentName:  req.AgentName,
		Module:     req.Module,
		ServiceIDs: serviceIDs,
		CalledAt:   time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.publish(store.EventTicketCalled, ticket)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		h.handleGetTicket(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTicketAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	ticket, err := h.store.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type ticketActionRequest struct {
	AgentID string `json:"agent_id"`
}

type redirectRequest struct {
	AgentID     string `json:"agent_id"`
	ToServiceID string `json:"to_service_id"`
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	if action == "redirect" {
		h.handleRedirectTicket(w, r, ticketID)
		return
	}

	// Cancel takes no fields, so an empty body is fine for it.
	var req ticketActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)

	input := store.TicketActionInput{
		TicketID:   ticketID,
		AgentID:    req.AgentID,
		OccurredAt: time.Now().UTC(),
	}

	var (
		ticket    models.Ticket
		err       error
		eventType string
	)
	switch action {
	case "attend":
		if !requireAgent(w, req.AgentID) {
			return
		}
		ticket, err = h.store.AttendTicket(r.Context(), input)
		eventType = store.EventTicketAttending
	case "close":
		if !requireAgent(w, req.AgentID) {
			return
		}
		ticket, err = h.store.CloseTicket(r.Context(), input)
		eventType = store.EventTicketClosed
	case "cancel":
		ticket, err = h.store.CancelTicket(r.Context(), input)
		eventType = store.EventTicketCancelled
	case "recall":
		if !requireAgent(w, req.AgentID) {
			return
		}
		ticket, err = h.store.RecallTicket(r.Context(), input)
		eventType = store.EventTicketCalled
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.publish(eventType, ticket)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleRedirectTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	var req redirectRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.ToServiceID = strings.TrimSpace(req.ToServiceID)
	if !requireAgent(w, req.AgentID) {
		return
	}
	if req.ToServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "to_service_id is required")
		return
	}
	if !isValidUUID(req.ToServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "to_service_id must be a UUID")
		return
	}

	ticket, err := h.store.RedirectTicket(r.Context(), store.RedirectInput{
		TicketID:    ticketID,
		AgentID:     req.AgentID,
		ToServiceID: req.ToServiceID,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.publish(store.EventTicketRedirected, ticket)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	if !isValidUUID(serviceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	tickets, err := h.store.ListQueue(r.Context(), serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := h.recentLimit
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	window := h.recentWindow
	if windowRaw := strings.TrimSpace(r.URL.Query().Get("window_minutes")); windowRaw != "" {
		parsed, err := strconv.Atoi(windowRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "window_minutes must be a positive integer")
			return
		}
		window = time.Duration(parsed) * time.Minute
	}

	tickets, err := h.store.ListRecentCalls(r.Context(), window, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleCustomerLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	document := strings.TrimSpace(r.URL.Query().Get("document_number"))
	if document == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "document_number is required")
		return
	}

	customer, err := h.store.FindCustomer(r.Context(), document)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type createServiceRequest struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

type updateServiceRequest struct {
	Name   *string `json:"name"`
	Prefix *string `json:"prefix"`
	Active *bool   `json:"active"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		services, err := h.store.ListServices(r.Context(), includeInactive)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		if services == nil {
			services = []models.Service{}
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		var req createServiceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Prefix = strings.TrimSpace(req.Prefix)
		if req.Name == "" || req.Prefix == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name and prefix are required")
			return
		}
		if !isValidPrefix(req.Prefix) {
			writeError(w, http.StatusBadRequest, "invalid_request", "prefix must be 1-3 letters")
			return
		}

		svc, err := h.store.CreateService(r.Context(), store.CreateServiceInput{Name: req.Name, Prefix: req.Prefix})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, svc)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleServiceByID(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/services/"), "/")
	if serviceID == "" || strings.Contains(serviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(serviceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		svc, err := h.store.GetService(r.Context(), serviceID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case http.MethodPatch:
		var req updateServiceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.Prefix != nil && !isValidPrefix(strings.TrimSpace(*req.Prefix)) {
			writeError(w, http.StatusBadRequest, "invalid_request", "prefix must be 1-3 letters")
			return
		}

		svc, err := h.store.UpdateService(r.Context(), serviceID, store.UpdateServiceInput{
			Name:   req.Name,
			Prefix: req.Prefix,
			Active: req.Active,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type settingsRequest struct {
	PrintingEnabled bool     `json:"printing_enabled"`
	Priorities      []string `json:"priorities"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.store.GetSettings(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req settingsRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		priorities := make([]string, 0, len(req.Priorities))
		for _, raw := range req.Priorities {
			tag := strings.TrimSpace(raw)
			if tag == "" {
				writeError(w, http.StatusBadRequest, "invalid_request", "priorities must not contain empty entries")
				return
			}
			priorities = append(priorities, tag)
		}

		settings, err := h.store.UpdateSettings(r.Context(), models.Settings{
			PrintingEnabled: req.PrintingEnabled,
			Priorities:      priorities,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) publish(eventType string, ticket models.Ticket) {
	if h.broadcaster == nil {
		return
	}
	h.broadcaster.Publish(eventType, ticket, time.Now().UTC().Format(time.RFC3339Nano))
}

func requireAgent(w http.ResponseWriter, agentID string) bool {
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	if len(value) < 7 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isValidPrefix(value string) bool {
	if len(value) < 1 || len(value) > 3 {
		return false
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found or inactive"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrQueueEmpty):
		return http.StatusConflict, "queue_empty", "no tickets available"
	case errors.Is(err, store.ErrAgentBusy):
		return http.StatusConflict, "agent_busy", "agent already has an active ticket"
	case errors.Is(err, store.ErrSameService):
		return http.StatusConflict, "same_service", "ticket already belongs to target service"
	case errors.Is(err, store.ErrUnknownPriority):
		return http.StatusBadRequest, "unknown_priority", "priority tag is not configured"
	case errors.Is(err, store.ErrDuplicatePrefix):
		return http.StatusConflict, "duplicate_prefix", "service prefix already in use"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
