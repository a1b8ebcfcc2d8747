package models

import (
	"errors"
	"strings"
	"time"
)

// EventStatus represents the lifecycle state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusActive    EventStatus = "active"
	EventStatusPaused    EventStatus = "paused"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// TimeBomb duration bounds, in minutes.
const (
	MinTimeBombMinutes = 5
	MaxTimeBombMinutes = 180
)

// eventTransitions lists the statuses reachable from each status.
var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusDraft:     {EventStatusPublished, EventStatusCancelled},
	EventStatusPublished: {EventStatusActive, EventStatusDraft, EventStatusCancelled},
	EventStatusActive:    {EventStatusPaused, EventStatusCompleted, EventStatusCancelled},
	EventStatusPaused:    {EventStatusActive, EventStatusCompleted, EventStatusCancelled},
}

// IsValid returns true if the status is a known event status.
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusActive,
		EventStatusPaused, EventStatusCompleted, EventStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed and cancelled events.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	for _, candidate := range eventTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AcceptsRequests reports whether song requests may be created in this status.
func (s EventStatus) AcceptsRequests() bool {
	return s == EventStatusPublished || s == EventStatusActive
}

// AcceptsMembers reports whether members and guests may join in this status.
func (s EventStatus) AcceptsMembers() bool {
	return s == EventStatusPublished || s == EventStatusActive || s == EventStatusPaused
}

// Member is a registered person on an event's roster.
type Member struct {
	UserID     string    `json:"user_id"`
	JoinedAt   time.Time `json:"joined_at"`
	IsApproved bool      `json:"is_approved"`
}

// Event is a scheduled gathering owned by one manager.
type Event struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	Venue            string      `json:"venue,omitempty"`
	ManagerID        string      `json:"manager_id"`
	Status           EventStatus `json:"status"`
	IsPublic         bool        `json:"is_public"`
	MaxMembers       int         `json:"max_members"`
	RequiresApproval bool        `json:"requires_approval"`
	MaxSongsPerUser  int         `json:"max_songs_per_user"`
	AllowDuplicates  bool        `json:"allow_duplicates"`
	TimeBombEnabled  bool        `json:"time_bomb_enabled"`
	// TimeBombDuration is expressed in minutes.
	TimeBombDuration  int       `json:"time_bomb_duration,omitempty"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	Members           []Member  `json:"members"`
	LastQueuePosition int       `json:"last_queue_position"`
	Version           int       `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validation errors for events.
var (
	ErrEventNameRequired     = errors.New("event name is required")
	ErrEventNameTooLong      = errors.New("event name must be 120 characters or less")
	ErrEventManagerRequired  = errors.New("event manager is required")
	ErrEventStatusInvalid    = errors.New("event status is invalid")
	ErrEventDatesInvalid     = errors.New("event start date must be before end date")
	ErrEventLimitsInvalid    = errors.New("event limits must not be negative")
	ErrEventTimeBombDuration = errors.New("time bomb duration must be between 5 and 180 minutes")
	ErrEventStatusTransition = errors.New("event status transition is not allowed")
	ErrMemberAlreadyJoined   = errors.New("user is already a member of this event")
	ErrMemberNotFound        = errors.New("user is not a member of this event")
)

// Validate checks the event's invariants.
func (e *Event) Validate() error {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return ErrEventNameRequired
	}
	if len(name) > 120 {
		return ErrEventNameTooLong
	}
	if e.ManagerID == "" {
		return ErrEventManagerRequired
	}
	if !e.Status.IsValid() {
		return ErrEventStatusInvalid
	}
	if !e.StartDate.Before(e.EndDate) {
		return ErrEventDatesInvalid
	}
	if e.MaxMembers < 0 || e.MaxSongsPerUser < 0 {
		return ErrEventLimitsInvalid
	}
	if e.TimeBombEnabled &&
		(e.TimeBombDuration < MinTimeBombMinutes || e.TimeBombDuration > MaxTimeBombMinutes) {
		return ErrEventTimeBombDuration
	}
	return nil
}

// TransitionTo moves the event to next if the status machine allows it.
func (e *Event) TransitionTo(next EventStatus) error {
	if e.Status == next {
		return nil
	}
	if !e.Status.CanTransitionTo(next) {
		return ErrEventStatusTransition
	}
	e.Status = next
	return nil
}

// FindMember returns the roster entry for userID.
func (e *Event) FindMember(userID string) (*Member, bool) {
	for i := range e.Members {
		if e.Members[i].UserID == userID {
			return &e.Members[i], true
		}
	}
	return nil, false
}

// IsApprovedMember reports whether userID is on the roster and approved.
func (e *Event) IsApprovedMember(userID string) bool {
	m, ok := e.FindMember(userID)
	return ok && m.IsApproved
}

// ApprovedMemberCount counts approved roster entries.
func (e *Event) ApprovedMemberCount() int {
	n := 0
	for _, m := range e.Members {
		if m.IsApproved {
			n++
		}
	}
	return n
}

// AddMember appends userID to the roster. Approval follows the event's RequiresApproval flag.
func (e *Event) AddMember(userID string, now time.Time) (*Member, error) {
	if _, ok := e.FindMember(userID); ok {
		return nil, ErrMemberAlreadyJoined
	}
	e.Members = append(e.Members, Member{
		UserID:     userID,
		JoinedAt:   now,
		IsApproved: !e.RequiresApproval,
	})
	return &e.Members[len(e.Members)-1], nil
}

// RemoveMember drops userID from the roster.
func (e *Event) RemoveMember(userID string) error {
	for i := range e.Members {
		if e.Members[i].UserID == userID {
			e.Members = append(e.Members[:i], e.Members[i+1:]...)
			return nil
		}
	}
	return ErrMemberNotFound
}

// TimeBombDeadline returns the expiry for a TimeBomb request created at createdAt.
func (e *Event) TimeBombDeadline(createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(e.TimeBombDuration) * time.Minute)
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	c.Members = append([]Member(nil), e.Members...)
	return &c
}
