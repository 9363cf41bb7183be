package store

import "errors"

var (
	ErrServiceNotFound  = errors.New("service not found or inactive")
	ErrSameService      = errors.New("ticket already belongs to target service")
	ErrDuplicatePrefix  = errors.New("service prefix already in use")
	ErrUnknownPriority  = errors.New("priority tag not configured")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrInvalidState     = errors.New("invalid ticket state")
	ErrQueueEmpty       = errors.New("no ticket available")
	ErrAgentBusy        = errors.New("agent already has an active ticket")
)
