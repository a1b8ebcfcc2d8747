// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/musudik/dropmybeat-api/internal/models"
)

// Common store errors. Every implementation returns these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateKey is returned when a unique constraint would be violated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConcurrentModification is returned when a conditional update finds the row
	// in a different state (version or status) than the caller expected.
	ErrConcurrentModification = errors.New("resource was modified by another request")

	// ErrInvalidCredentials is returned when email and password do not match an active person.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PersonStore defines operations for registered people.
type PersonStore interface {
	// Create stores a new person with a bcrypt hash of password.
	Create(ctx context.Context, person *models.Person, password string) error
	// Get retrieves a person by ID.
	Get(ctx context.Context, id string) (*models.Person, error)
	// GetByEmail retrieves a person by email.
	GetByEmail(ctx context.Context, email string) (*models.Person, error)
	// Authenticate verifies credentials and returns the active person.
	Authenticate(ctx context.Context, email, password string) (*models.Person, error)
	// List retrieves all people ordered by creation time.
	List(ctx context.Context) ([]*models.Person, error)
	// SetRole changes a person's role.
	SetRole(ctx context.Context, id string, role models.Role) error
	// SetActive activates or deactivates a person.
	SetActive(ctx context.Context, id string, active bool) error
}

// EventFilter selects events for listing.
type EventFilter struct {
	Status     models.EventStatus
	ManagerID  string
	PublicOnly bool
	// VisibleTo, when set, also includes private events managed by or joined by this user.
	VisibleTo string
	Limit     int
	Offset    int
}

// EventStore defines operations for events and their member rosters.
type EventStore interface {
	// Create creates a new event.
	Create(ctx context.Context, event *models.Event) error
	// Get retrieves an event with its roster.
	Get(ctx context.Context, id string) (*models.Event, error)
	// GetForUpdate retrieves an event and, inside a transaction, locks it until commit.
	GetForUpdate(ctx context.Context, id string) (*models.Event, error)
	// List retrieves events matching filter, newest start date first.
	List(ctx context.Context, filter EventFilter) ([]*models.Event, error)
	// Update writes event attributes if event.Version matches, then increments it.
	Update(ctx context.Context, event *models.Event) error
	// Delete removes an event together with its requests, likes, members and guests.
	Delete(ctx context.Context, id string) error
	// AddMember adds a roster entry.
	AddMember(ctx context.Context, eventID string, member models.Member) error
	// RemoveMember removes a roster entry.
	RemoveMember(ctx context.Context, eventID, userID string) error
	// SetMemberApproval approves or unapproves a roster entry.
	SetMemberApproval(ctx context.Context, eventID, userID string, approved bool) error
	// NextQueuePosition atomically advances the event's queue counter and returns the new value.
	// A hint greater than the current counter moves the counter to the hint.
	NextQueuePosition(ctx context.Context, eventID string, hint int) (int, error)
	// LastQueuePosition returns the current counter without advancing it.
	LastQueuePosition(ctx context.Context, eventID string) (int, error)
}

// ParticipantStore defines operations for guest participants.
type ParticipantStore interface {
	// Create stores a guest. A second guest with the same event, email and last name is ErrDuplicateKey.
	Create(ctx context.Context, p *models.EventParticipant) error
	// Get retrieves a guest by ID.
	Get(ctx context.Context, id string) (*models.EventParticipant, error)
	// ListByEvent retrieves all guests of an event.
	ListByEvent(ctx context.Context, eventID string) ([]*models.EventParticipant, error)
	// SetApproval approves or unapproves a guest.
	SetApproval(ctx context.Context, id string, approved bool) error
	// Delete removes a guest.
	Delete(ctx context.Context, id string) error
}

// RequestFilter selects song requests for listing.
type RequestFilter struct {
	Statuses    []models.RequestStatus
	RequestedBy string
	TimeBomb    *bool
	Limit       int
	Offset      int
}

// SongRequestStore defines operations for song requests.
type SongRequestStore interface {
	// Create stores a new request.
	Create(ctx context.Context, r *models.SongRequest) error
	// Get retrieves a request with its likes.
	Get(ctx context.Context, id string) (*models.SongRequest, error)
	// ListByEvent retrieves the requests of an event in creation order.
	ListByEvent(ctx context.Context, eventID string, filter RequestFilter) ([]*models.SongRequest, error)
	// Save writes every mutable field of r only if the stored status still equals expected.
	// It returns ErrConcurrentModification when the status has moved on.
	Save(ctx context.Context, r *models.SongRequest, expected models.RequestStatus) error
	// ToggleLike adds or removes userID's like and recomputes the like count atomically.
	// It returns the updated request and whether userID now likes it.
	ToggleLike(ctx context.Context, id, userID string, now time.Time) (*models.SongRequest, bool, error)
	// Delete removes a request and its likes.
	Delete(ctx context.Context, id string) error
	// ListExpiredTimeBombs returns pending TimeBomb requests whose deadline is at or before now.
	ListExpiredTimeBombs(ctx context.Context, now time.Time, limit int) ([]*models.SongRequest, error)
}

// Store is the main interface for database operations.
type Store interface {
	// People returns the PersonStore.
	People() PersonStore
	// Events returns the EventStore.
	Events() EventStore
	// Participants returns the ParticipantStore.
	Participants() ParticipantStore
	// SongRequests returns the SongRequestStore.
	SongRequests() SongRequestStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
