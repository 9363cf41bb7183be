package models

import "time"

type Service struct {
	ServiceID string    `json:"service_id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings is the branch-wide configuration the queue core depends on:
// the finite set of priority tags and the printing toggle consumed by the
// kiosk layer.
type Settings struct {
	PrintingEnabled bool     `json:"printing_enabled"`
	Priorities      []string `json:"priorities"`
}

// DefaultPriorities mirrors the tags the service points started with.
func DefaultPriorities() []string {
	return []string{"Discapacidad", "Embarazo", "Adulto Mayor"}
}
