package domain

import (
	"strings"
	"time"
)

// Role distinguishes residents filing reports from the councillors handling them.
type Role string

const (
	RoleCitizen    Role = "CITIZEN"
	RoleCouncillor Role = "COUNCILLOR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleCouncillor
}

// ParseRole normalises user input into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// User is an account holder. Role is fixed at signup.
type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Ward         string
	CreatedAt    time.Time
}
