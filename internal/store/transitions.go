package store

import "github.com/cristian138/turnos-act-unad/internal/models"

var transitionMap = map[string][]string{
	"call_next": {models.StateCreated},
	"attend":    {models.StateCalled},
	"close":     {models.StateAttending},
	"cancel":    {models.StateCreated},
	"redirect":  {models.StateCalled, models.StateAttending},
	"recall":    {models.StateCalled},
}

func ValidTransition(action, fromState string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == fromState {
			return true
		}
	}
	return false
}
