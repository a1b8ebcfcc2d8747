package models

import (
	"errors"
	"strings"
	"time"
)

// EventParticipant is an unauthenticated guest who joined an event by email and name.
// A guest is unique per (event, email, last name).
type EventParticipant struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	IsApproved bool      `json:"is_approved"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Validation errors for guest participants.
var (
	ErrParticipantNameRequired = errors.New("first and last name are required")
)

// NewEventParticipant builds a guest record for event. Guests are auto-approved
// unless the event requires approval.
func NewEventParticipant(event *Event, email, firstName, lastName string, now time.Time) *EventParticipant {
	return &EventParticipant{
		EventID:    event.ID,
		Email:      NormalizeEmail(email),
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		IsApproved: !event.RequiresApproval,
		JoinedAt:   now,
	}
}

// Validate checks the guest's fields.
func (p *EventParticipant) Validate() error {
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return ErrParticipantNameRequired
	}
	return nil
}

// Matches reports whether the guest record belongs to eventID and email.
func (p *EventParticipant) Matches(eventID, email string) bool {
	return p.EventID == eventID && p.Email == NormalizeEmail(email)
}
