package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/events"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/queue"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// CreateRequestInput is a validated song request command.
type CreateRequestInput struct {
	Song       models.Song
	IsTimeBomb bool
}

// CreateRequest nominates a song for eventID on behalf of p.
func (s *Service) CreateRequest(ctx context.Context, p auth.Principal, eventID string, in CreateRequestInput) (*models.SongRequest, error) {
	if err := in.Song.Validate(); err != nil {
		return nil, invalid(err)
	}

	var created *models.SongRequest
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		// The event row lock serializes concurrent creates by the same requester,
		// keeping the per-user cap and duplicate check exact.
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionCreateRequest); err != nil {
			return err
		}
		event := sc.event
		if !event.Status.AcceptsRequests() {
			return fmt.Errorf("%w: event is %s and not accepting requests", ErrForbidden, event.Status)
		}
		if in.IsTimeBomb && !event.TimeBombEnabled {
			return fmt.Errorf("%w: event does not allow TimeBomb requests", ErrValidation)
		}

		mine, err := tx.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{RequestedBy: p.ID})
		if err != nil {
			return storeError(err, "song requests")
		}
		if err := checkDuplicate(event, mine, &in.Song, ""); err != nil {
			return err
		}
		outstanding := 0
		for _, r := range mine {
			if r.Status.IsOutstanding() {
				outstanding++
			}
		}
		if event.MaxSongsPerUser > 0 && outstanding >= event.MaxSongsPerUser {
			return fmt.Errorf("%w: at most %d outstanding requests per participant", ErrLimitExceeded, event.MaxSongsPerUser)
		}

		created = models.NewSongRequest(event, p.ID, in.Song, in.IsTimeBomb, s.now())
		return storeError(tx.SongRequests().Create(ctx, created), "song request")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("song request created",
		"event_id", eventID,
		"request_id", created.ID,
		"requested_by", p.ID,
		"time_bomb", created.IsTimeBomb,
	)
	s.publish(ctx, events.SongRequestCreated, created)
	return created, nil
}

// checkDuplicate fails when one of the requester's non-rejected requests, other than skipID,
// is for the same song and the event does not allow duplicates.
func checkDuplicate(event *models.Event, mine []*models.SongRequest, song *models.Song, skipID string) error {
	if event.AllowDuplicates {
		return nil
	}
	for _, r := range mine {
		if r.ID == skipID || r.Status == models.RequestStatusRejected {
			continue
		}
		if r.Song.SameSong(song) {
			return fmt.Errorf("%w: %q by %s already requested", ErrDuplicateRequest, r.Song.Title, r.Song.Artist)
		}
	}
	return nil
}

// ToggleLike adds p's like to the request, or removes it if already present.
// It returns the updated request and whether p now likes it.
func (s *Service) ToggleLike(ctx context.Context, p auth.Principal, eventID, requestID string) (*models.SongRequest, bool, error) {
	sc, err := s.loadScope(ctx, s.store, p, eventID, false)
	if err != nil {
		return nil, false, err
	}
	r, err := s.loadRequest(ctx, s.store, p, sc, requestID)
	if err != nil {
		return nil, false, err
	}
	if err := authorize(p, sc.auth(r.RequestedBy), auth.ActionLikeRequest); err != nil {
		return nil, false, err
	}

	updated, liked, err := s.store.SongRequests().ToggleLike(ctx, requestID, p.ID, s.now())
	if errors.Is(err, models.ErrNotLikeable) {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	if err != nil {
		return nil, false, storeError(err, "song request")
	}

	s.publish(ctx, events.SongRequestLiked, updated)
	return updated, liked, nil
}

// mutation changes a loaded request in place. It returns a model or kind error.
type mutation func(tx store.Store, event *models.Event, r *models.SongRequest, now time.Time) error

// transition runs one guarded, conditional status change and publishes name on success.
func (s *Service) transition(ctx context.Context, p auth.Principal, eventID, requestID string,
	action auth.Action, name events.Name, mutate mutation) (*models.SongRequest, error) {

	var updated *models.SongRequest
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		// Song edits repeat the duplicate check, so they take the event lock like CreateRequest.
		sc, err := s.loadScope(ctx, tx, p, eventID, action == auth.ActionUpdateRequest)
		if err != nil {
			return err
		}
		r, err := s.loadRequest(ctx, tx, p, sc, requestID)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(r.RequestedBy), action); err != nil {
			return err
		}

		expected := r.Status
		if err := mutate(tx, sc.event, r, s.now()); err != nil {
			return mutationError(err)
		}
		if err := tx.SongRequests().Save(ctx, r, expected); err != nil {
			if errors.Is(err, store.ErrConcurrentModification) {
				return fmt.Errorf("%w: request is no longer %s", ErrInvalidTransition, expected)
			}
			return storeError(err, "song request")
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("song request changed",
		"event_id", eventID,
		"request_id", requestID,
		"status", updated.Status,
		"actor", p.ID,
		"type", name,
	)
	s.publish(ctx, name, updated)
	return updated, nil
}

func mutationError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrNotEditable):
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	case errors.Is(err, models.ErrSongTitleRequired), errors.Is(err, models.ErrSongArtistRequired),
		errors.Is(err, models.ErrSongFieldTooLong), errors.Is(err, models.ErrSongMessageTooLong),
		errors.Is(err, models.ErrSongDuration):
		return invalid(err)
	default:
		return err
	}
}

// Approve moves a pending request into the playback queue. A positive hint asks for a
// specific queue position, which must lie beyond every position already assigned.
func (s *Service) Approve(ctx context.Context, p auth.Principal, eventID, requestID string, hint int) (*models.SongRequest, error) {
	if hint < 0 {
		return nil, fmt.Errorf("%w: queue position must be positive", ErrValidation)
	}
	return s.transition(ctx, p, eventID, requestID, auth.ActionReviewRequest, events.SongRequestApproved,
		func(tx store.Store, _ *models.Event, r *models.SongRequest, now time.Time) error {
			if r.Status != models.RequestStatusPending {
				return models.ErrInvalidTransition
			}
			if hint > 0 {
				last, err := tx.Events().LastQueuePosition(ctx, eventID)
				if err != nil {
					return storeError(err, "event")
				}
				if hint <= last {
					return fmt.Errorf("%w: queue position %d is already taken; next free is %d", ErrValidation, hint, last+1)
				}
			}
			pos, err := tx.Events().NextQueuePosition(ctx, eventID, hint)
			if err != nil {
				return storeError(err, "event")
			}
			if hint > 0 && pos != hint {
				return fmt.Errorf("%w: queue position %d was taken concurrently", ErrValidation, hint)
			}
			return r.Approve(p.ID, pos, now)
		})
}

// Reject ends a pending or approved request.
func (s *Service) Reject(ctx context.Context, p auth.Principal, eventID, requestID, reason string) (*models.SongRequest, error) {
	if len(reason) > 500 {
		return nil, fmt.Errorf("%w: rejection reason must be 500 characters or less", ErrValidation)
	}
	return s.transition(ctx, p, eventID, requestID, auth.ActionReviewRequest, events.SongRequestRejected,
		func(_ store.Store, _ *models.Event, r *models.SongRequest, now time.Time) error {
			return r.Reject(p.ID, reason, now)
		})
}

// MarkPlayed records that an approved request was played for duration seconds.
func (s *Service) MarkPlayed(ctx context.Context, p auth.Principal, eventID, requestID string, duration int) (*models.SongRequest, error) {
	if duration < 0 {
		return nil, fmt.Errorf("%w: play duration must not be negative", ErrValidation)
	}
	return s.transition(ctx, p, eventID, requestID, auth.ActionReviewRequest, events.SongRequestPlayed,
		func(_ store.Store, _ *models.Event, r *models.SongRequest, now time.Time) error {
			return r.MarkPlayed(p.ID, duration, now)
		})
}

// Skip ends an approved request without playing it.
func (s *Service) Skip(ctx context.Context, p auth.Principal, eventID, requestID string) (*models.SongRequest, error) {
	return s.transition(ctx, p, eventID, requestID, auth.ActionReviewRequest, events.SongRequestSkipped,
		func(_ store.Store, _ *models.Event, r *models.SongRequest, now time.Time) error {
			return r.Skip(p.ID, now)
		})
}

// SetPriority changes the review priority of an outstanding request.
func (s *Service) SetPriority(ctx context.Context, p auth.Principal, eventID, requestID string, priority int) (*models.SongRequest, error) {
	return s.transition(ctx, p, eventID, requestID, auth.ActionReviewRequest, events.SongRequestUpdated,
		func(_ store.Store, _ *models.Event, r *models.SongRequest, now time.Time) error {
			if r.Status.IsTerminal() {
				return models.ErrInvalidTransition
			}
			r.Priority = priority
			r.UpdatedAt = now
			return nil
		})
}

// UpdateRequest lets the requester edit the song of a pending request.
// The edited song may not duplicate another of the requester's requests.
func (s *Service) UpdateRequest(ctx context.Context, p auth.Principal, eventID, requestID string, u models.SongUpdate) (*models.SongRequest, error) {
	return s.transition(ctx, p, eventID, requestID, auth.ActionUpdateRequest, events.SongRequestUpdated,
		func(tx store.Store, event *models.Event, r *models.SongRequest, now time.Time) error {
			if err := r.ApplyUpdate(u, now); err != nil {
				return err
			}
			mine, err := tx.SongRequests().ListByEvent(ctx, event.ID, store.RequestFilter{RequestedBy: r.RequestedBy})
			if err != nil {
				return storeError(err, "song requests")
			}
			return checkDuplicate(event, mine, &r.Song, r.ID)
		})
}

// DeleteRequest removes a request in any status. Its requester and the event's managers may delete it.
func (s *Service) DeleteRequest(ctx context.Context, p auth.Principal, eventID, requestID string) error {
	var deleted *models.SongRequest
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, false)
		if err != nil {
			return err
		}
		r, err := s.loadRequest(ctx, tx, p, sc, requestID)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(r.RequestedBy), auth.ActionDeleteRequest); err != nil {
			return err
		}
		if err := tx.SongRequests().Delete(ctx, r.ID); err != nil {
			return storeError(err, "song request")
		}
		deleted = r
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("song request deleted", "event_id", eventID, "request_id", requestID, "actor", p.ID)
	s.publish(ctx, events.SongRequestDeleted, deleted)
	return nil
}

// ExpireTimeBombs rejects up to limit pending TimeBomb requests whose deadline passed at now.
// A request whose status changed since it was listed is skipped. It returns how many were rejected.
func (s *Service) ExpireTimeBombs(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := s.store.SongRequests().ListExpiredTimeBombs(ctx, now, limit)
	if err != nil {
		return 0, storeError(err, "song requests")
	}

	rejected := 0
	for _, r := range expired {
		if err := ctx.Err(); err != nil {
			return rejected, err
		}
		if err := r.Reject("", models.TimeBombExpiredReason, now); err != nil {
			continue
		}
		err := s.store.SongRequests().Save(ctx, r, models.RequestStatusPending)
		if errors.Is(err, store.ErrConcurrentModification) || errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("timebomb request changed before expiry", "request_id", r.ID)
			continue
		}
		if err != nil {
			return rejected, storeError(err, "song request")
		}
		rejected++
		s.logger.Info("timebomb request expired", "event_id", r.EventID, "request_id", r.ID)
		s.publish(ctx, events.SongRequestRejected, r)
	}
	return rejected, nil
}

// GetRequest returns one request of eventID.
func (s *Service) GetRequest(ctx context.Context, p auth.Principal, eventID, requestID string) (*models.SongRequest, error) {
	sc, err := s.loadScope(ctx, s.store, p, eventID, false)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, sc.auth(""), auth.ActionViewQueue); err != nil {
		return nil, err
	}
	return s.loadRequest(ctx, s.store, p, sc, requestID)
}

// ListRequests returns the requests of eventID matching filter, oldest first.
func (s *Service) ListRequests(ctx context.Context, p auth.Principal, eventID string, filter store.RequestFilter) ([]*models.SongRequest, error) {
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, st)
		}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	if _, err := s.readableScope(ctx, p, eventID, auth.ActionViewQueue); err != nil {
		return nil, err
	}
	list, err := s.store.SongRequests().ListByEvent(ctx, eventID, filter)
	if err != nil {
		return nil, storeError(err, "song requests")
	}
	return list, nil
}

// GetQueue returns the playback queue of eventID.
func (s *Service) GetQueue(ctx context.Context, p auth.Principal, eventID string) ([]*models.SongRequest, error) {
	all, err := s.outstanding(ctx, p, eventID, auth.ActionViewQueue)
	if err != nil {
		return nil, err
	}
	return queue.PlaybackQueue(all), nil
}

// GetReviewQueue returns the pending requests of eventID in review order.
func (s *Service) GetReviewQueue(ctx context.Context, p auth.Principal, eventID string) ([]*models.SongRequest, error) {
	all, err := s.outstanding(ctx, p, eventID, auth.ActionViewReviewQueue)
	if err != nil {
		return nil, err
	}
	return queue.ReviewQueue(all), nil
}

// GetTimeBombs returns the unexpired TimeBomb requests of eventID, soonest first.
func (s *Service) GetTimeBombs(ctx context.Context, p auth.Principal, eventID string) ([]*models.SongRequest, error) {
	all, err := s.outstanding(ctx, p, eventID, auth.ActionViewQueue)
	if err != nil {
		return nil, err
	}
	return queue.TimeBombs(all, s.now()), nil
}

// GetEventStats summarizes the requests of eventID.
func (s *Service) GetEventStats(ctx context.Context, p auth.Principal, eventID string) (queue.Stats, error) {
	if _, err := s.readableScope(ctx, p, eventID, auth.ActionViewQueue); err != nil {
		return queue.Stats{}, err
	}
	all, err := s.store.SongRequests().ListByEvent(ctx, eventID, store.RequestFilter{})
	if err != nil {
		return queue.Stats{}, storeError(err, "song requests")
	}
	return queue.ComputeStats(all, s.now()), nil
}

func (s *Service) readableScope(ctx context.Context, p auth.Principal, eventID string, action auth.Action) (scope, error) {
	sc, err := s.loadScope(ctx, s.store, p, eventID, false)
	if err != nil {
		return scope{}, err
	}
	if err := authorize(p, sc.auth(""), action); err != nil {
		return scope{}, err
	}
	return sc, nil
}

func (s *Service) outstanding(ctx context.Context, p auth.Principal, eventID string, action auth.Action) ([]*models.SongRequest, error) {
	if _, err := s.readableScope(ctx, p, eventID, action); err != nil {
		return nil, err
	}
	all, err := s.store.SongRequests().ListByEvent(ctx, eventID, store.RequestFilter{
		Statuses: []models.RequestStatus{models.RequestStatusPending, models.RequestStatusApproved},
	})
	if err != nil {
		return nil, storeError(err, "song requests")
	}
	return all, nil
}
