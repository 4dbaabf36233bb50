package domain

import "time"

// Role is the privilege level of a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// User is an entry of the local identity directory
type User struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Role  Role   `json:"role" db:"role"`
}

// Caller is the authenticated identity behind a request
type Caller struct {
	UserID    string
	Email     string
	Role      Role
	ExpiresAt time.Time
}

// Authenticate checks that the caller is present and its credential is still
// valid. It returns ErrUnauthenticated or ErrSessionExpired.
func (c *Caller) Authenticate(now time.Time) error {
	if c == nil || c.UserID == "" {
		return ErrUnauthenticated
	}
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// IsOwner reports whether the caller holds the highest privilege role
func (c *Caller) IsOwner() bool {
	return c != nil && c.Role == RoleOwner
}

// IsAdmin reports whether the caller may manage manual grants and codes
func (c *Caller) IsAdmin() bool {
	return c != nil && (c.Role == RoleAdmin || c.Role == RoleOwner)
}
