// Package models defines the data models used in the application.
package models

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new time-ordered identifier.
func NewID() string { return ulid.Make().String() }

// ValidID reports whether s is a well-formed identifier.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Stamp normalises t to UTC second precision, the resolution every
// persisted timestamp uses.
func Stamp(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// Role determines what a user may do.
type Role string

// Possible values for Role
const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "superviseur"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSupervisor:
		return true
	}
	return false
}

// Staff reports whether r may act on other users' records.
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleSupervisor }

// ParseRole accepts the stored spelling plus "supervisor".
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "supervisor" {
		return RoleSupervisor, true
	}
	r := Role(s)
	return r, r.Valid()
}
