// Package queue derives the ordered read views of an event's song requests.
// Every function here is a pure query over a snapshot; none of them modify the requests.
package queue

import (
	"sort"
	"time"

	"github.com/musudik/dropmybeat-api/internal/models"
)

// ReviewQueue returns the pending requests, highest priority first, then most liked,
// then oldest. This is the order managers review in.
func ReviewQueue(requests []*models.SongRequest) []*models.SongRequest {
	pending := filter(requests, func(r *models.SongRequest) bool {
		return r.Status == models.RequestStatusPending
	})
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.LikeCount != b.LikeCount {
			return a.LikeCount > b.LikeCount
		}
		return submittedBefore(a, b)
	})
	return pending
}

// PlaybackQueue returns the approved requests in approval order.
func PlaybackQueue(requests []*models.SongRequest) []*models.SongRequest {
	approved := filter(requests, func(r *models.SongRequest) bool {
		return r.Status == models.RequestStatusApproved
	})
	sort.SliceStable(approved, func(i, j int) bool {
		return approved[i].QueuePosition < approved[j].QueuePosition
	})
	return approved
}

// TimeBombs returns the outstanding TimeBomb requests that have not expired at now,
// soonest deadline first.
func TimeBombs(requests []*models.SongRequest, now time.Time) []*models.SongRequest {
	active := filter(requests, func(r *models.SongRequest) bool {
		return r.IsTimeBombActive(now)
	})
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if !a.TimeBombExpiresAt.Equal(*b.TimeBombExpiresAt) {
			return a.TimeBombExpiresAt.Before(*b.TimeBombExpiresAt)
		}
		return submittedBefore(a, b)
	})
	return active
}

// Expired returns the pending TimeBomb requests whose deadline is at or before now.
func Expired(requests []*models.SongRequest, now time.Time) []*models.SongRequest {
	return filter(requests, func(r *models.SongRequest) bool {
		return r.IsTimeBombExpired(now)
	})
}

// Stats summarizes an event's requests.
type Stats struct {
	TotalRequests   int                          `json:"total_requests"`
	ByStatus        map[models.RequestStatus]int `json:"by_status"`
	ByPriority      map[int]int                  `json:"by_priority"`
	TotalLikes      int                          `json:"total_likes"`
	ActiveTimeBombs int                          `json:"active_time_bombs"`
}

// ComputeStats counts requests by status and priority and totals their likes.
// Every known status is present in ByStatus, with zero when unused.
func ComputeStats(requests []*models.SongRequest, now time.Time) Stats {
	stats := Stats{
		ByStatus:   make(map[models.RequestStatus]int),
		ByPriority: make(map[int]int),
	}
	for _, s := range models.ValidRequestStatuses() {
		stats.ByStatus[s] = 0
	}
	for _, r := range requests {
		stats.TotalRequests++
		stats.ByStatus[r.Status]++
		stats.ByPriority[r.Priority]++
		stats.TotalLikes += r.LikeCount
		if r.IsTimeBombActive(now) {
			stats.ActiveTimeBombs++
		}
	}
	return stats
}

func filter(requests []*models.SongRequest, keep func(*models.SongRequest) bool) []*models.SongRequest {
	out := make([]*models.SongRequest, 0, len(requests))
	for _, r := range requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// submittedBefore orders by creation time, falling back to ID so equal timestamps stay deterministic.
func submittedBefore(a, b *models.SongRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
