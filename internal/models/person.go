// Package models provides data models for the DropMyBeat API.
package models

import (
	"errors"
	"strings"
	"time"
)

// Role represents a person's system-wide role.
type Role string

const (
	// RoleAdmin can perform every action on every event.
	RoleAdmin Role = "admin"
	// RoleManager can create events and curate the events they manage.
	RoleManager Role = "manager"
	// RoleMember is a registered participant.
	RoleMember Role = "member"
	// RoleGuest is an unauthenticated joiner identified by email and name.
	RoleGuest Role = "guest"
)

// IsValid returns true if the role is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember, RoleGuest:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ValidRoles returns all valid roles.
func ValidRoles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleMember, RoleGuest}
}

// Person is a registered identity. People are deactivated, never hard-deleted.
type Person struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validation errors for people.
var (
	ErrPersonEmailRequired = errors.New("email is required")
	ErrPersonEmailInvalid  = errors.New("email is invalid")
	ErrPersonRoleInvalid   = errors.New("role is invalid")
)

// Validate checks the person's fields.
func (p *Person) Validate() error {
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if !p.Role.IsValid() || p.Role == RoleGuest {
		return ErrPersonRoleInvalid
	}
	return nil
}

// FullName joins first and last name.
func (p *Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ValidateEmail performs a minimal structural check on an email address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrPersonEmailRequired
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return ErrPersonEmailInvalid
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
