// Package booking implements booking creation with conflict detection and the
// booking status lifecycle.
package booking

import "barberbook/internal/domain"

// Lifecycle holds the allowed status transitions.
type Lifecycle struct {
	transitions map[domain.Status][]domain.Status
}

// NewLifecycle creates the lifecycle with its predefined transitions.
// Completed and cancelled are terminal.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		transitions: map[domain.Status][]domain.Status{
			domain.StatusPending:   {domain.StatusCompleted, domain.StatusCancelled},
			domain.StatusCompleted: nil,
			domain.StatusCancelled: nil,
		},
	}
}

// CanTransition checks if transition is allowed.
func (l *Lifecycle) CanTransition(from, to domain.Status) bool {
	for _, s := range l.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns an invalid transition error unless from → to is allowed.
func (l *Lifecycle) Transition(from, to domain.Status) error {
	if !l.CanTransition(from, to) {
		return domain.InvalidTransition(from, to)
	}
	return nil
}

// Terminal reports whether no transition leaves s.
func (l *Lifecycle) Terminal(s domain.Status) bool {
	return len(l.transitions[s]) == 0
}
