// Package access decides which actor may read or change which booking.
// Identity is resolved upstream; the policy only compares ids and roles.
package access

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"barberbook/internal/domain"
)

// Role of an authenticated caller.
type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleWorker, RoleAdmin:
		return r, nil
	}
	return "", domain.Errorf(domain.KindFormat, "unknown role %q", s)
}

// Actor is the caller as resolved by the authentication layer. For workers
// ID is the worker id; for clients it is the client id.
type Actor struct {
	ID   int64
	Role Role
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Role, a.ID)
}

// Policy enforces ownership rules.
type Policy struct {
	logger zerolog.Logger
}

// NewPolicy creates a policy.
func NewPolicy(logger *zerolog.Logger) *Policy {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "access").Logger()
	}
	return &Policy{logger: l}
}

func (p *Policy) deny(a Actor, action string, bookingID int64) error {
	p.logger.Debug().
		Str("actor", a.String()).
		Str("action", action).
		Int64("booking_id", bookingID).
		Msg("access denied")
	return domain.Errorf(domain.KindForbidden, "%s may not %s", a, action)
}

func owns(a Actor, b *domain.Booking) bool {
	switch a.Role {
	case RoleClient:
		return b.ClientID == a.ID
	case RoleWorker:
		return b.WorkerID == a.ID
	}
	return false
}

// CanView allows the owning client, the assigned worker and admins.
func (p *Policy) CanView(a Actor, b *domain.Booking) error {
	if a.Role == RoleAdmin || owns(a, b) {
		return nil
	}
	return p.deny(a, "view booking", b.ID)
}

// CanTransition applies the actor table: completing is for the assigned
// worker or an admin; cancelling is also open to the owning client.
func (p *Policy) CanTransition(a Actor, b *domain.Booking, to domain.Status) error {
	if a.Role == RoleAdmin {
		return nil
	}
	switch to {
	case domain.StatusCompleted:
		if a.Role == RoleWorker && owns(a, b) {
			return nil
		}
	case domain.StatusCancelled:
		if owns(a, b) {
			return nil
		}
	default:
		// Illegal targets are left to the lifecycle to reject.
		if owns(a, b) {
			return nil
		}
	}
	return p.deny(a, "set status "+string(to), b.ID)
}

// CanDelete allows admins and the owning client.
func (p *Policy) CanDelete(a Actor, b *domain.Booking) error {
	if a.Role == RoleAdmin || (a.Role == RoleClient && owns(a, b)) {
		return nil
	}
	return p.deny(a, "delete booking", b.ID)
}

// BookFor resolves the client a booking is made for. Clients may only book
// for themselves; staff must name the client.
func (p *Policy) BookFor(a Actor, clientID int64) (int64, error) {
	switch a.Role {
	case RoleClient:
		if clientID == 0 || clientID == a.ID {
			return a.ID, nil
		}
		return 0, p.deny(a, "book for another client", 0)
	case RoleWorker, RoleAdmin:
		if clientID <= 0 {
			return 0, domain.Errorf(domain.KindFormat, "client_id is required")
		}
		return clientID, nil
	}
	return 0, p.deny(a, "create booking", 0)
}

// CanViewAgenda allows a worker to see their own agenda and admins to see any.
func (p *Policy) CanViewAgenda(a Actor, workerID int64) error {
	if a.Role == RoleAdmin || (a.Role == RoleWorker && a.ID == workerID) {
		return nil
	}
	return p.deny(a, fmt.Sprintf("view agenda of worker %d", workerID), 0)
}

// CanExport allows admins only.
func (p *Policy) CanExport(a Actor) error {
	if a.Role == RoleAdmin {
		return nil
	}
	return p.deny(a, "export bookings", 0)
}

// Scope narrows a listing filter to what the actor may see.
func (p *Policy) Scope(a Actor, f domain.BookingFilter) domain.BookingFilter {
	switch a.Role {
	case RoleClient:
		f.ClientID = a.ID
	case RoleWorker:
		f.WorkerID = a.ID
	}
	return f
}
