// Package requests implements the song request lifecycle and the event, membership
// and account operations around it. Every operation takes the verified caller explicitly,
// evaluates the authorization policy, mutates state in one transaction and then emits
// at most one domain event.
package requests

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/events"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// TokenIssuer mints credentials for people and guests.
type TokenIssuer interface {
	GenerateToken(userID, email string, role models.Role) (string, error)
	GenerateGuestToken(participantID, email, eventID string) (string, error)
}

// Service is the lifecycle orchestrator.
type Service struct {
	store     store.Store
	publisher events.Publisher
	tokens    TokenIssuer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTokenIssuer sets the issuer used by Login and JoinAsGuest.
func WithTokenIssuer(tokens TokenIssuer) Option {
	return func(s *Service) {
		s.tokens = tokens
	}
}

// NewService creates a new orchestrator.
func NewService(st store.Store, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	s := &Service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish emits e after its mutation committed. A delivery failure does not undo the mutation.
func (s *Service) publish(ctx context.Context, name events.Name, r *models.SongRequest) {
	if err := s.publisher.Publish(ctx, events.New(name, r)); err != nil {
		s.logger.Error("failed to publish domain event",
			"type", name,
			"event_id", r.EventID,
			"request_id", r.ID,
			"error", err,
		)
	}
}

// scope is the state an event-scoped operation is authorized against.
type scope struct {
	event *models.Event
	guest *models.EventParticipant
}

func (sc scope) auth(ownerID string) auth.Scope {
	return auth.Scope{Event: sc.event, Guest: sc.guest, ResourceOwnerID: ownerID}
}

// loadScope reads the event and, for guests, their participant record.
// forUpdate locks the event row for the rest of the transaction.
func (s *Service) loadScope(ctx context.Context, st store.Store, p auth.Principal, eventID string, forUpdate bool) (scope, error) {
	var (
		event *models.Event
		err   error
	)
	if forUpdate {
		event, err = st.Events().GetForUpdate(ctx, eventID)
	} else {
		event, err = st.Events().Get(ctx, eventID)
	}
	if err != nil {
		return scope{}, storeError(err, "event")
	}

	sc := scope{event: event}
	if p.IsGuest() && p.EventID == eventID {
		guest, err := st.Participants().Get(ctx, p.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return scope{}, storeError(err, "participant")
		}
		sc.guest = guest
	}
	return sc, nil
}

// authorize evaluates the policy for action.
func authorize(p auth.Principal, sc auth.Scope, action auth.Action) error {
	d := auth.CanPerform(p, sc, action)
	if d.Allowed {
		return nil
	}
	return denied(d, action)
}

// loadRequest reads a request of the scoped event. Existence is checked only after the
// caller passed the visibility check, so requests of hidden events are reported as absent.
func (s *Service) loadRequest(ctx context.Context, st store.Store, p auth.Principal, sc scope, requestID string) (*models.SongRequest, error) {
	if d := auth.CanPerform(p, sc.auth(""), auth.ActionViewEvent); d.Reason == auth.ReasonHidden {
		return nil, denied(d, auth.ActionViewEvent)
	}
	r, err := st.SongRequests().Get(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "song request")
	}
	if r.EventID != sc.event.ID {
		return nil, storeError(store.ErrNotFound, "song request")
	}
	return r, nil
}

// IsApprovedParticipant reports whether p is an approved member or approved guest of eventID.
func (s *Service) IsApprovedParticipant(ctx context.Context, p auth.Principal, eventID string) (bool, error) {
	sc, err := s.loadScope(ctx, s.store, p, eventID, false)
	if err != nil {
		return false, err
	}
	return auth.ResolveEventRole(p, sc.auth("")) == auth.EventRoleParticipant, nil
}

// EventManager returns the ID of the person managing eventID.
func (s *Service) EventManager(ctx context.Context, eventID string) (string, error) {
	event, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		return "", storeError(err, "event")
	}
	return event.ManagerID, nil
}
