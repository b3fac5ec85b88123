package school

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role represents what a session is allowed to do with school collections
type Role string

const (
	RoleViewer Role = "viewer"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleStaff:  2,
	RoleAdmin:  3,
}

// ErrPermissionDenied is returned when a session lacks the required role
var ErrPermissionDenied = errors.New("permission denied")

// Session identifies an authenticated actor for the duration of a browsing
// context. It is passed explicitly to every mutating operation; there is
// no ambient global auth state.
type Session struct {
	ID       string
	Actor    string
	Role     Role
	IssuedAt time.Time
}

// NewSession creates a session for the given actor and role
func NewSession(actor string, role Role) Session {
	return Session{
		ID:       uuid.NewString(),
		Actor:    actor,
		Role:     role,
		IssuedAt: time.Now(),
	}
}

// Allows reports whether the session holds a role at least as strong as r
func (s Session) Allows(r Role) bool {
	return roleRank[s.Role] >= roleRank[r]
}

func requireRole(s Session, r Role) error {
	if !s.Allows(r) {
		return ErrPermissionDenied
	}
	return nil
}
