package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

// genRequestStatus generates a random RequestStatus.
func genRequestStatus() gopter.Gen {
	return gen.OneConstOf(
		models.RequestStatusPending,
		models.RequestStatusApproved,
		models.RequestStatusRejected,
		models.RequestStatusPlayed,
		models.RequestStatusSkipped,
	)
}

// genRequests generates a batch of requests with distinct IDs and queue positions.
func genRequests() gopter.Gen {
	one := gopter.CombineGens(
		genRequestStatus(),
		gen.IntRange(-2, 2),   // Priority
		gen.IntRange(0, 5),    // LikeCount
		gen.IntRange(0, 600),  // seconds after epoch
		gen.Bool(),            // IsTimeBomb
		gen.IntRange(-30, 30), // minutes until expiry
	)
	return gen.SliceOf(one).Map(func(rows [][]interface{}) []*models.SongRequest {
		out := make([]*models.SongRequest, len(rows))
		for i, vals := range rows {
			r := &models.SongRequest{
				ID:        fmt.Sprintf("req-%03d", i),
				Status:    vals[0].(models.RequestStatus),
				Priority:  vals[1].(int),
				LikeCount: vals[2].(int),
				CreatedAt: epoch.Add(time.Duration(vals[3].(int)) * time.Second),
			}
			if r.Status != models.RequestStatusPending {
				r.QueuePosition = len(rows) - i
			}
			if vals[4].(bool) {
				expires := epoch.Add(time.Duration(vals[5].(int)) * time.Minute)
				r.IsTimeBomb = true
				r.TimeBombExpiresAt = &expires
			}
			out[i] = r
		}
		return out
	})
}

func snapshot(requests []*models.SongRequest) []models.SongRequest {
	out := make([]models.SongRequest, len(requests))
	for i, r := range requests {
		out[i] = *r
	}
	return out
}

func unchanged(before []models.SongRequest, after []*models.SongRequest) bool {
	for i := range before {
		if before[i].ID != after[i].ID || before[i].QueuePosition != after[i].QueuePosition ||
			before[i].Priority != after[i].Priority || before[i].Status != after[i].Status {
			return false
		}
	}
	return true
}

func TestReviewQueueOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("review queue holds only pending requests in rank order", prop.ForAll(
		func(requests []*models.SongRequest) bool {
			before := snapshot(requests)
			view := ReviewQueue(requests)

			pending := 0
			for _, r := range requests {
				if r.Status == models.RequestStatusPending {
					pending++
				}
			}
			if len(view) != pending {
				return false
			}
			for i := 1; i < len(view); i++ {
				a, b := view[i-1], view[i]
				if a.Priority < b.Priority {
					return false
				}
				if a.Priority == b.Priority && a.LikeCount < b.LikeCount {
					return false
				}
				if a.Priority == b.Priority && a.LikeCount == b.LikeCount && b.CreatedAt.Before(a.CreatedAt) {
					return false
				}
			}
			return unchanged(before, requests)
		},
		genRequests(),
	))

	properties.Property("review queue does not depend on input order", prop.ForAll(
		func(requests []*models.SongRequest) bool {
			reversed := make([]*models.SongRequest, len(requests))
			for i, r := range requests {
				reversed[len(requests)-1-i] = r
			}
			a, b := ReviewQueue(requests), ReviewQueue(reversed)
			for i := range a {
				if a[i].ID != b[i].ID {
					return false
				}
			}
			return true
		},
		genRequests(),
	))

	properties.TestingRun(t)
}

func TestPlaybackQueueOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("playback queue is approved requests by ascending queue position", prop.ForAll(
		func(requests []*models.SongRequest) bool {
			before := snapshot(requests)
			view := PlaybackQueue(requests)
			for i, r := range view {
				if r.Status != models.RequestStatusApproved {
					return false
				}
				if i > 0 && view[i-1].QueuePosition >= r.QueuePosition {
					return false
				}
			}
			return unchanged(before, requests)
		},
		genRequests(),
	))

	properties.TestingRun(t)
}

func TestTimeBombView(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("active and expired TimeBombs never overlap", prop.ForAll(
		func(requests []*models.SongRequest) bool {
			active := TimeBombs(requests, epoch)
			expired := Expired(requests, epoch)
			seen := map[string]bool{}
			for i, r := range active {
				if !r.IsTimeBomb || !r.Status.IsOutstanding() || !r.TimeBombExpiresAt.After(epoch) {
					return false
				}
				if i > 0 && r.TimeBombExpiresAt.Before(*active[i-1].TimeBombExpiresAt) {
					return false
				}
				seen[r.ID] = true
			}
			for _, r := range expired {
				if seen[r.ID] || r.Status != models.RequestStatusPending {
					return false
				}
			}
			return true
		},
		genRequests(),
	))

	properties.TestingRun(t)
}

func TestTimeBombExpiresAfterDuration(t *testing.T) {
	event := &models.Event{ID: "event-1", TimeBombEnabled: true, TimeBombDuration: 5}
	r := models.NewSongRequest(event, "user-1", models.Song{Title: "Song", Artist: "Artist"}, true, epoch)
	r.ID = "req-1"
	requests := []*models.SongRequest{r}

	require.Len(t, TimeBombs(requests, epoch.Add(4*time.Minute)), 1)
	assert.Empty(t, TimeBombs(requests, epoch.Add(6*time.Minute)))
	assert.Len(t, Expired(requests, epoch.Add(6*time.Minute)), 1)
}

func TestComputeStats(t *testing.T) {
	expires := epoch.Add(time.Minute)
	requests := []*models.SongRequest{
		{ID: "a", Status: models.RequestStatusPending, Priority: 1, LikeCount: 3, IsTimeBomb: true, TimeBombExpiresAt: &expires},
		{ID: "b", Status: models.RequestStatusApproved, Priority: 0, LikeCount: 1},
		{ID: "c", Status: models.RequestStatusPlayed, Priority: 0, LikeCount: 2},
	}

	stats := ComputeStats(requests, epoch)

	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, 6, stats.TotalLikes)
	assert.Equal(t, 1, stats.ActiveTimeBombs)
	assert.Equal(t, 1, stats.ByStatus[models.RequestStatusPending])
	assert.Equal(t, 0, stats.ByStatus[models.RequestStatusSkipped])
	assert.Equal(t, map[int]int{0: 2, 1: 1}, stats.ByPriority)
}
