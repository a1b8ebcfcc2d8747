package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore() *Store {
	return NewStore(WithPasswordCost(bcrypt.MinCost))
}

func seedEvent(t *testing.T, s *Store) *models.Event {
	t.Helper()
	ctx := context.Background()

	manager := &models.Person{Email: "dj@example.com", Role: models.RoleManager, IsActive: true}
	require.NoError(t, s.People().Create(ctx, manager, "secret-password"))

	start := time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC)
	event := &models.Event{
		Name:             "Friday Night",
		ManagerID:        manager.ID,
		Status:           models.EventStatusActive,
		IsPublic:         true,
		TimeBombEnabled:  true,
		TimeBombDuration: 5,
		StartDate:        start,
		EndDate:          start.Add(4 * time.Hour),
	}
	require.NoError(t, s.Events().Create(ctx, event))
	return event
}

func TestPeopleEmailIsCaseInsensitive(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	p := &models.Person{Email: "  Sam@Example.com ", Role: models.RoleMember, IsActive: true}
	require.NoError(t, s.People().Create(ctx, p, "hunter22!"))
	assert.Equal(t, "sam@example.com", p.Email)
	assert.NotEmpty(t, p.ID)

	err := s.People().Create(ctx, &models.Person{Email: "SAM@example.com", Role: models.RoleMember}, "other-pass")
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	got, err := s.People().GetByEmail(ctx, "SAM@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestAuthenticate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	p := &models.Person{Email: "sam@example.com", Role: models.RoleMember, IsActive: true}
	require.NoError(t, s.People().Create(ctx, p, "hunter22!"))

	got, err := s.People().Authenticate(ctx, "Sam@example.com", "hunter22!")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.People().Authenticate(ctx, "sam@example.com", "wrong")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	_, err = s.People().Authenticate(ctx, "nobody@example.com", "hunter22!")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	require.NoError(t, s.People().SetActive(ctx, p.ID, false))
	_, err = s.People().Authenticate(ctx, "sam@example.com", "hunter22!")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
}

func TestEventUpdateChecksVersion(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)
	assert.Equal(t, 1, event.Version)

	stale, err := s.Events().Get(ctx, event.ID)
	require.NoError(t, err)

	event.Venue = "Pier 9"
	require.NoError(t, s.Events().Update(ctx, event))
	assert.Equal(t, 2, event.Version)

	stale.Venue = "Somewhere else"
	assert.ErrorIs(t, s.Events().Update(ctx, stale), store.ErrConcurrentModification)

	got, err := s.Events().Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pier 9", got.Venue)
}

func TestEventUpdateKeepsRosterAndQueueCounter(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)

	require.NoError(t, s.Events().AddMember(ctx, event.ID, models.Member{UserID: "u1", IsApproved: true}))
	_, err := s.Events().NextQueuePosition(ctx, event.ID, 0)
	require.NoError(t, err)

	event.Name = "Saturday Night"
	require.NoError(t, s.Events().Update(ctx, event))

	got, err := s.Events().Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)
	assert.Equal(t, 1, got.LastQueuePosition)
}

func TestEventMembers(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)

	require.NoError(t, s.Events().AddMember(ctx, event.ID, models.Member{UserID: "u1"}))
	assert.ErrorIs(t, s.Events().AddMember(ctx, event.ID, models.Member{UserID: "u1"}), store.ErrDuplicateKey)

	require.NoError(t, s.Events().SetMemberApproval(ctx, event.ID, "u1", true))
	got, err := s.Events().Get(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 1)
	assert.True(t, got.Members[0].IsApproved)

	require.NoError(t, s.Events().RemoveMember(ctx, event.ID, "u1"))
	assert.ErrorIs(t, s.Events().RemoveMember(ctx, event.ID, "u1"), store.ErrNotFound)
	assert.ErrorIs(t, s.Events().SetMemberApproval(ctx, event.ID, "u1", true), store.ErrNotFound)
}

func TestEventListVisibility(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	public := seedEvent(t, s)

	private := &models.Event{
		Name:      "Private Party",
		ManagerID: public.ManagerID,
		Status:    models.EventStatusPublished,
		StartDate: public.StartDate.Add(24 * time.Hour),
		EndDate:   public.EndDate.Add(24 * time.Hour),
	}
	require.NoError(t, s.Events().Create(ctx, private))
	require.NoError(t, s.Events().AddMember(ctx, private.ID, models.Member{UserID: "guest-of-honour"}))

	all, err := s.Events().List(ctx, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, private.ID, all[0].ID, "latest start first")

	publicOnly, err := s.Events().List(ctx, store.EventFilter{PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, publicOnly, 1)

	stranger, err := s.Events().List(ctx, store.EventFilter{VisibleTo: "stranger"})
	require.NoError(t, err)
	assert.Len(t, stranger, 1)

	member, err := s.Events().List(ctx, store.EventFilter{VisibleTo: "guest-of-honour"})
	require.NoError(t, err)
	assert.Len(t, member, 2)

	paged, err := s.Events().List(ctx, store.EventFilter{Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, public.ID, paged[0].ID)
}

func TestEventDeleteCascades(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)

	guest := &models.EventParticipant{EventID: event.ID, Email: "g@example.com", FirstName: "G", LastName: "Uest"}
	require.NoError(t, s.Participants().Create(ctx, guest))
	req := models.NewSongRequest(event, "u1", models.Song{Title: "Song", Artist: "Artist"}, false, time.Now())
	require.NoError(t, s.SongRequests().Create(ctx, req))

	require.NoError(t, s.Events().Delete(ctx, event.ID))

	_, err := s.Participants().Get(ctx, guest.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.SongRequests().Get(ctx, req.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Events().Delete(ctx, event.ID), store.ErrNotFound)
}

func TestParticipantUniqueness(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)

	first := &models.EventParticipant{EventID: event.ID, Email: "Kim@Example.com", FirstName: "Kim", LastName: "Lee"}
	require.NoError(t, s.Participants().Create(ctx, first))
	assert.Equal(t, "kim@example.com", first.Email)

	dup := &models.EventParticipant{EventID: event.ID, Email: "kim@example.com", FirstName: "Kimberly", LastName: "LEE"}
	assert.ErrorIs(t, s.Participants().Create(ctx, dup), store.ErrDuplicateKey)

	sibling := &models.EventParticipant{EventID: event.ID, Email: "kim@example.com", FirstName: "Kim", LastName: "Park"}
	require.NoError(t, s.Participants().Create(ctx, sibling))

	orphan := &models.EventParticipant{EventID: "missing", Email: "x@example.com", FirstName: "X", LastName: "Y"}
	assert.ErrorIs(t, s.Participants().Create(ctx, orphan), store.ErrNotFound)

	list, err := s.Participants().ListByEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSaveRequiresExpectedStatus(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)
	now := time.Now().UTC()

	req := models.NewSongRequest(event, "u1", models.Song{Title: "Song", Artist: "Artist"}, false, now)
	require.NoError(t, s.SongRequests().Create(ctx, req))

	first, err := s.SongRequests().Get(ctx, req.ID)
	require.NoError(t, err)
	second, err := s.SongRequests().Get(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, first.Approve("dj", 1, now))
	require.NoError(t, s.SongRequests().Save(ctx, first, models.RequestStatusPending))

	require.NoError(t, second.Reject("dj", "late", now))
	assert.ErrorIs(t, s.SongRequests().Save(ctx, second, models.RequestStatusPending), store.ErrConcurrentModification)

	got, err := s.SongRequests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, got.Status)
	assert.Equal(t, 1, got.QueuePosition)
}

func TestSaveKeepsConcurrentLikes(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)
	now := time.Now().UTC()

	req := models.NewSongRequest(event, "u1", models.Song{Title: "Song", Artist: "Artist"}, false, now)
	require.NoError(t, s.SongRequests().Create(ctx, req))

	loaded, err := s.SongRequests().Get(ctx, req.ID)
	require.NoError(t, err)

	_, liked, err := s.SongRequests().ToggleLike(ctx, req.ID, "fan", now)
	require.NoError(t, err)
	assert.True(t, liked)

	loaded.Priority = 3
	require.NoError(t, s.SongRequests().Save(ctx, loaded, models.RequestStatusPending))
	assert.Equal(t, 1, loaded.LikeCount)

	got, err := s.SongRequests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, 1, got.LikeCount)
}

func TestListByEventFilters(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)
	base := time.Now().UTC()

	for i, by := range []string{"u1", "u2", "u1"} {
		req := models.NewSongRequest(event, by, models.Song{Title: "Song", Artist: "Artist"}, i == 2, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.SongRequests().Create(ctx, req))
	}

	all, err := s.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.Before(all[2].CreatedAt))

	mine, err := s.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{RequestedBy: "u1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	bombs := true
	timeBombs, err := s.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{TimeBomb: &bombs})
	require.NoError(t, err)
	assert.Len(t, timeBombs, 1)

	approved, err := s.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{
		Statuses: []models.RequestStatus{models.RequestStatusApproved},
	})
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func TestListExpiredTimeBombs(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)
	created := time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC)

	early := models.NewSongRequest(event, "u1", models.Song{Title: "A", Artist: "X"}, true, created)
	late := models.NewSongRequest(event, "u2", models.Song{Title: "B", Artist: "X"}, true, created.Add(time.Minute))
	plain := models.NewSongRequest(event, "u3", models.Song{Title: "C", Artist: "X"}, false, created)
	for _, r := range []*models.SongRequest{late, early, plain} {
		require.NoError(t, s.SongRequests().Create(ctx, r))
	}

	none, err := s.SongRequests().ListExpiredTimeBombs(ctx, created.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	expired, err := s.SongRequests().ListExpiredTimeBombs(ctx, created.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, early.ID, expired[0].ID)

	limited, err := s.SongRequests().ListExpiredTimeBombs(ctx, created.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.Events().NextQueuePosition(ctx, event.ID, 0); err != nil {
			return err
		}
		req := models.NewSongRequest(event, "u1", models.Song{Title: "Song", Artist: "Artist"}, false, time.Now())
		if err := tx.SongRequests().Create(ctx, req); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	last, err := s.Events().LastQueuePosition(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, last)

	reqs, err := s.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestWithTxCommits(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	event := seedEvent(t, s)

	require.NoError(t, s.WithTx(ctx, func(tx store.Store) error {
		return tx.WithTx(ctx, func(inner store.Store) error {
			_, err := inner.Events().NextQueuePosition(ctx, event.ID, 4)
			return err
		})
	}))

	last, err := s.Events().LastQueuePosition(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, last)
}

func TestQueuePositionsStrictlyIncrease(t *testing.T) {
	s := newTestStore()
	event := seedEvent(t, s)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every allocation exceeds the previous one and honours the hint", prop.ForAll(
		func(hints []int) bool {
			for _, hint := range hints {
				last, err := s.Events().LastQueuePosition(ctx, event.ID)
				if err != nil {
					return false
				}
				next, err := s.Events().NextQueuePosition(ctx, event.ID, hint)
				if err != nil || next <= last || next < hint {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-5, 50)),
	))

	properties.TestingRun(t)
}
