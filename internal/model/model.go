// Package model defines domain entities used by the sync engine, the remote store and the migration.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role scopes what a staff member may do against the remote store.
type Role string

const (
	RoleViewer Role = "viewer" // read-only
	RoleStaff  Role = "staff"  // may create and edit
	RoleAdmin  Role = "admin"  // may also hard-delete
)

// CanWrite reports whether the role may create or modify records.
func (r Role) CanWrite() bool { return r == RoleStaff || r == RoleAdmin }

// CanPurge reports whether the role may permanently delete records.
func (r Role) CanPurge() bool { return r == RoleAdmin }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Tokens collects issued access tokens for a staff session.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Staff represents a facility account stored on the server. Passwords are never stored in plaintext.
type Staff struct {
	ID          uuid.UUID // PK
	Username    string    // unique
	DisplayName string
	Role        Role
	PwdHash     []byte // Argon2id(password, SaltAuth)
	SaltAuth    []byte // per-staff auth salt
	CreatedAt   time.Time
}

// Actor identifies who performs a mutation on the client side.
type Actor struct {
	ID   string
	Name string
}
