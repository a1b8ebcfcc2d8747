package requests

import (
	"testing"
	"time"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEventAssignsManager(t *testing.T) {
	f := newFixture(t)
	e := f.event()
	assert.Equal(t, f.manager.ID, e.ManagerID)
	assert.Equal(t, 1, e.Version)

	other := f.person(models.RoleManager)
	input := &models.Event{
		Name:      "Delegated",
		ManagerID: other.ID,
		StartDate: testStart,
		EndDate:   testStart.Add(time.Hour),
	}
	_, err := f.svc.CreateEvent(f.ctx, f.manager, input)
	assert.ErrorIs(t, err, ErrForbidden)

	created, err := f.svc.CreateEvent(f.ctx, f.admin, input)
	require.NoError(t, err)
	assert.Equal(t, other.ID, created.ManagerID)
	assert.Equal(t, models.EventStatusDraft, created.Status)

	member := f.person(models.RoleMember)
	input.ManagerID = member.ID
	_, err = f.svc.CreateEvent(f.ctx, f.admin, input)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateEvent(f.ctx, member, &models.Event{Name: "Mine", StartDate: testStart, EndDate: testStart.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CreateEvent(f.ctx, auth.Principal{}, input)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]*models.Event{
		"missing name": {StartDate: testStart, EndDate: testStart.Add(time.Hour)},
		"inverted dates": {
			Name: "Backwards", StartDate: testStart, EndDate: testStart.Add(-time.Hour),
		},
		"timebomb too short": {
			Name: "Short fuse", StartDate: testStart, EndDate: testStart.Add(time.Hour),
			TimeBombEnabled: true, TimeBombDuration: 4,
		},
		"timebomb too long": {
			Name: "Long fuse", StartDate: testStart, EndDate: testStart.Add(time.Hour),
			TimeBombEnabled: true, TimeBombDuration: 181,
		},
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateEvent(f.ctx, f.manager, e)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUpdateEventVersionAndStatusMachine(t *testing.T) {
	f := newFixture(t)
	e := f.event()

	name := "Renamed"
	updated, err := f.svc.UpdateEvent(f.ctx, f.manager, e.ID, EventPatch{Name: &name, Version: e.Version})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, e.Version+1, updated.Version)

	_, err = f.svc.UpdateEvent(f.ctx, f.manager, e.ID, EventPatch{Name: &name, Version: e.Version})
	assert.ErrorIs(t, err, ErrConflict)

	completed := models.EventStatusCompleted
	_, err = f.svc.UpdateEvent(f.ctx, f.manager, e.ID, EventPatch{Status: &completed, Version: updated.Version})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	member := f.member(e.ID)
	_, err = f.svc.UpdateEvent(f.ctx, member, e.ID, EventPatch{Name: &name, Version: updated.Version})
	assert.ErrorIs(t, err, ErrForbidden)

	bad := 0
	enabled := true
	_, err = f.svc.UpdateEvent(f.ctx, f.manager, e.ID, EventPatch{
		TimeBombEnabled:  &enabled,
		TimeBombDuration: &bad,
		Version:          updated.Version,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPrivateEventsAreHiddenFromStrangers(t *testing.T) {
	f := newFixture(t)
	e := f.event(private, requiresApproval)

	stranger := f.person(models.RoleMember)
	_, err := f.svc.GetEvent(f.ctx, stranger, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetEvent(f.ctx, auth.Principal{}, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetQueue(f.ctx, stranger, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The event ID works as an invitation.
	m, err := f.svc.JoinEvent(f.ctx, stranger, e.ID)
	require.NoError(t, err)
	assert.False(t, m.IsApproved)

	_, err = f.svc.GetEvent(f.ctx, stranger, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.ApproveMember(f.ctx, f.manager, e.ID, stranger.ID))
	got, err := f.svc.GetEvent(f.ctx, stranger, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = f.svc.GetEvent(f.ctx, f.admin, e.ID)
	assert.NoError(t, err)
}

func TestRequestsOfHiddenEventsAreNotFound(t *testing.T) {
	f := newFixture(t)
	e := f.event(private)
	u := f.member(e.ID)
	r := f.request(u, e.ID, "secret")

	stranger := f.person(models.RoleMember)
	_, err := f.svc.GetRequest(f.ctx, stranger, e.ID, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.svc.ToggleLike(f.ctx, stranger, e.ID, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteRequest(f.ctx, stranger, e.ID, r.ID), ErrNotFound)
}

func TestListEventsRespectsVisibility(t *testing.T) {
	f := newFixture(t)
	public := f.event()
	hidden := f.event(private)
	joined := f.event(private)
	u := f.member(joined.ID)

	ids := func(list []*models.Event) []string {
		out := make([]string, len(list))
		for i, e := range list {
			out[i] = e.ID
		}
		return out
	}

	anon, err := f.svc.ListEvents(f.ctx, auth.Principal{}, store.EventFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{public.ID}, ids(anon))

	mine, err := f.svc.ListEvents(f.ctx, u, store.EventFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{public.ID, joined.ID}, ids(mine))

	all, err := f.svc.ListEvents(f.ctx, f.admin, store.EventFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{public.ID, hidden.ID, joined.ID}, ids(all))

	managed, err := f.svc.ListEvents(f.ctx, f.manager, store.EventFilter{ManagerID: f.manager.ID})
	require.NoError(t, err)
	assert.Len(t, managed, 3)

	_, err = f.svc.ListEvents(f.ctx, u, store.EventFilter{Status: "live"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteEventCascades(t *testing.T) {
	f := newFixture(t)
	e := f.event()
	u := f.member(e.ID)
	r := f.request(u, e.ID, "gone")
	g := f.guest(e.ID, "g@example.com")

	assert.ErrorIs(t, f.svc.DeleteEvent(f.ctx, u, e.ID), ErrForbidden)
	require.NoError(t, f.svc.DeleteEvent(f.ctx, f.manager, e.ID))

	_, err := f.store.SongRequests().Get(f.ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.Participants().Get(f.ctx, g.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.svc.GetEvent(f.ctx, f.admin, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event()
	u := f.person(models.RoleMember)

	m, err := f.svc.JoinEvent(f.ctx, u, e.ID)
	require.NoError(t, err)
	assert.True(t, m.IsApproved)

	_, err = f.svc.JoinEvent(f.ctx, u, e.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.JoinEvent(f.ctx, auth.Principal{}, e.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	ok, err := f.svc.IsApprovedParticipant(f.ctx, u, e.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	manager, err := f.svc.EventManager(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, f.manager.ID, manager)

	require.NoError(t, f.svc.LeaveEvent(f.ctx, u, e.ID))
	ok, err = f.svc.IsApprovedParticipant(f.ctx, u, e.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJoinRequiresOpenEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event(func(e *models.Event) { e.Status = models.EventStatusDraft })

	_, err := f.svc.JoinEvent(f.ctx, f.person(models.RoleMember), e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.JoinAsGuest(f.ctx, auth.Principal{}, e.ID, GuestJoinInput{
		Email: "g@example.com", FirstName: "G", LastName: "H",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCapacityCountsMembersAndGuests(t *testing.T) {
	f := newFixture(t)
	e := f.event(func(e *models.Event) { e.MaxMembers = 2 })

	f.member(e.ID)
	f.guest(e.ID, "first@example.com")

	_, err := f.svc.JoinEvent(f.ctx, f.person(models.RoleMember), e.ID)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	_, err = f.svc.JoinAsGuest(f.ctx, auth.Principal{}, e.ID, GuestJoinInput{
		Email: "second@example.com", FirstName: "Second", LastName: "Guest",
	})
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestCapacityAppliesOnApproval(t *testing.T) {
	f := newFixture(t)
	e := f.event(requiresApproval, func(e *models.Event) { e.MaxMembers = 1 })

	a := f.person(models.RoleMember)
	b := f.person(models.RoleMember)
	_, err := f.svc.JoinEvent(f.ctx, a, e.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinEvent(f.ctx, b, e.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ApproveMember(f.ctx, f.manager, e.ID, a.ID))
	assert.ErrorIs(t, f.svc.ApproveMember(f.ctx, f.manager, e.ID, b.ID), ErrLimitExceeded)

	require.NoError(t, f.svc.RemoveMember(f.ctx, f.manager, e.ID, a.ID))
	assert.NoError(t, f.svc.ApproveMember(f.ctx, f.manager, e.ID, b.ID))
}

func TestJoinAsGuest(t *testing.T) {
	f := newFixture(t)
	e := f.event(requiresApproval)

	session, err := f.svc.JoinAsGuest(f.ctx, auth.Principal{}, e.ID, GuestJoinInput{
		Email: " Guest@Example.com ", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "guest@example.com", session.Participant.Email)
	assert.False(t, session.Participant.IsApproved)

	_, err = f.svc.JoinAsGuest(f.ctx, auth.Principal{}, e.ID, GuestJoinInput{
		Email: "guest@example.com", FirstName: "Ada", LastName: "LOVELACE",
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.JoinAsGuest(f.ctx, auth.Principal{}, e.ID, GuestJoinInput{
		Email: "not-an-email", FirstName: "Ada", LastName: "Lovelace",
	})
	assert.ErrorIs(t, err, ErrValidation)

	guests, err := f.svc.ListParticipants(f.ctx, f.manager, e.ID)
	require.NoError(t, err)
	assert.Len(t, guests, 1)

	_, err = f.svc.ListParticipants(f.ctx, f.person(models.RoleMember), e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGuestTokenIsBoundToEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event()
	other := f.event()
	g := f.guest(e.ID, "g@example.com")

	f.request(g, e.ID, "mine")

	_, err := f.svc.CreateRequest(f.ctx, g, other.ID, CreateRequestInput{Song: models.Song{Title: "x", Artist: "y"}})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.JoinEvent(f.ctx, g, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.LeaveEvent(f.ctx, g, e.ID))
	_, err = f.svc.ResolvePrincipal(f.ctx, g)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
