package requests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/events"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testStart = time.Date(2026, 6, 20, 21, 0, 0, 0, time.UTC)

// fixture wires a Service to an in-memory store, a recording publisher and a manual clock.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	rec   *events.Recorder
	svc   *Service

	mu  sync.Mutex
	now time.Time

	admin   auth.Principal
	manager auth.Principal
	seq     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(memory.WithPasswordCost(bcrypt.MinCost)),
		rec:   &events.Recorder{},
		now:   testStart,
	}
	tokens := auth.NewService(&auth.Config{
		JWTSecret:   []byte("test-secret-that-is-at-least-32-bytes"),
		TokenExpiry: time.Hour,
	}, nil)
	f.svc = NewService(f.store, f.rec, nil, WithClock(f.clock), WithTokenIssuer(tokens))
	f.admin = f.person(models.RoleAdmin)
	f.manager = f.person(models.RoleManager)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// person stores an active account with role and returns its principal.
func (f *fixture) person(role models.Role) auth.Principal {
	f.t.Helper()
	f.seq++
	p := &models.Person{
		Email:     fmt.Sprintf("%s%d@example.com", role, f.seq),
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
		IsActive:  true,
	}
	require.NoError(f.t, f.store.People().Create(f.ctx, p, "password123"))
	return auth.Principal{ID: p.ID, Role: p.Role, Email: p.Email}
}

// event creates a published public event managed by f.manager, adjusted by opts.
func (f *fixture) event(opts ...func(*models.Event)) *models.Event {
	f.t.Helper()
	e := &models.Event{
		Name:      "Friday Night",
		Status:    models.EventStatusPublished,
		IsPublic:  true,
		StartDate: testStart,
		EndDate:   testStart.Add(6 * time.Hour),
	}
	for _, opt := range opts {
		opt(e)
	}
	created, err := f.svc.CreateEvent(f.ctx, f.manager, e)
	require.NoError(f.t, err)
	return created
}

// member creates an account and joins it to the event as an approved member.
func (f *fixture) member(eventID string) auth.Principal {
	f.t.Helper()
	p := f.person(models.RoleMember)
	m, err := f.svc.JoinEvent(f.ctx, p, eventID)
	require.NoError(f.t, err)
	if !m.IsApproved {
		require.NoError(f.t, f.svc.ApproveMember(f.ctx, f.manager, eventID, p.ID))
	}
	return p
}

func (f *fixture) request(p auth.Principal, eventID, title string) *models.SongRequest {
	f.t.Helper()
	r, err := f.svc.CreateRequest(f.ctx, p, eventID, CreateRequestInput{
		Song: models.Song{Title: title, Artist: "Artist " + title},
	})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) guest(eventID, email string) auth.Principal {
	f.t.Helper()
	session, err := f.svc.JoinAsGuest(f.ctx, auth.Principal{}, eventID, GuestJoinInput{
		Email:     email,
		FirstName: "Guest",
		LastName:  "Person",
	})
	require.NoError(f.t, err)
	g := session.Participant
	return auth.Principal{ID: g.ID, Role: models.RoleGuest, Email: g.Email, EventID: g.EventID}
}

func private(e *models.Event) { e.IsPublic = false }

func requiresApproval(e *models.Event) { e.RequiresApproval = true }

func maxSongs(n int) func(*models.Event) {
	return func(e *models.Event) { e.MaxSongsPerUser = n }
}

func timeBomb(minutes int) func(*models.Event) {
	return func(e *models.Event) {
		e.TimeBombEnabled = true
		e.TimeBombDuration = minutes
	}
}
