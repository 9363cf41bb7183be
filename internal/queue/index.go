// Package queue maintains the per-service ordered view of pending tickets.
// The index is a pure projection of store state: it only ever contains
// tickets in state created, and callers serialize access under the store's
// critical section.
package queue

import (
	"sort"
	"time"

	"github.com/cristian138/turnos-act-unad/internal/models"
)

type entry struct {
	ticketID string
	priority bool
	queuedAt time.Time
}

type Index struct {
	byService map[string][]entry
	service   map[string]string
}

func New() *Index {
	return &Index{
		byService: make(map[string][]entry),
		service:   make(map[string]string),
	}
}

// less defines the call order: any priority tag sorts before none, then
// FIFO by queue timestamp, ties broken by ticket id for determinism.
func less(a, b entry) bool {
	if a.priority != b.priority {
		return a.priority
	}
	if !a.queuedAt.Equal(b.queuedAt) {
		return a.queuedAt.Before(b.queuedAt)
	}
	return a.ticketID < b.ticketID
}

func (i *Index) Enqueue(ticket models.Ticket) {
	i.Remove(ticket.TicketID)
	item := entry{
		ticketID: ticket.TicketID,
		priority: ticket.Priority != "",
		queuedAt: ticket.QueuedAt,
	}
	entries := i.byService[ticket.ServiceID]
	pos := sort.Search(len(entries), func(n int) bool {
		return less(item, entries[n])
	})
	entries = append(entries, entry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = item
	i.byService[ticket.ServiceID] = entries
	i.service[ticket.TicketID] = ticket.ServiceID
}

func (i *Index) Remove(ticketID string) bool {
	serviceID, ok := i.service[ticketID]
	if !ok {
		return false
	}
	entries := i.byService[serviceID]
	for n, item := range entries {
		if item.ticketID == ticketID {
			i.byService[serviceID] = append(entries[:n], entries[n+1:]...)
			break
		}
	}
	delete(i.service, ticketID)
	return true
}

// Head returns the id of the highest-priority, oldest-eligible ticket
// across the given services. It does not dequeue; callers remove the
// ticket once its transition commits.
func (i *Index) Head(serviceIDs ...string) (string, bool) {
	var best entry
	found := false
	for _, serviceID := range serviceIDs {
		entries := i.byService[serviceID]
		if len(entries) == 0 {
			continue
		}
		if !found || less(entries[0], best) {
			best = entries[0]
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.ticketID, true
}

func (i *Index) Contains(ticketID string) bool {
	_, ok := i.service[ticketID]
	return ok
}

func (i *Index) Len(serviceID string) int {
	return len(i.byService[serviceID])
}

// Ordered returns the ticket ids of one service in call order.
func (i *Index) Ordered(serviceID string) []string {
	entries := i.byService[serviceID]
	ids := make([]string, len(entries))
	for n, item := range entries {
		ids[n] = item.ticketID
	}
	return ids
}
