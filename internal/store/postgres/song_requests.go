package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// SongRequestStore implements store.SongRequestStore using PostgreSQL.
type SongRequestStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *SongRequestStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const requestColumns = `
	r.id, r.event_id, r.requested_by, r.title, r.artist, r.album, r.duration, r.external_ids, r.message,
	r.status, r.priority, r.queue_position, r.like_count, r.is_time_bomb, r.time_bomb_expires_at,
	r.approved_by, r.approved_at, r.rejected_by, r.rejected_at, r.rejection_reason,
	r.played_by, r.played_at, r.play_duration, r.skipped_by, r.skipped_at,
	r.created_at, r.updated_at,
	COALESCE((
		SELECT json_agg(json_build_object('user_id', l.user_id, 'liked_at', l.liked_at) ORDER BY l.liked_at)
		FROM song_request_likes l WHERE l.request_id = r.id
	), '[]')`

func scanRequest(row interface{ Scan(...any) error }) (*models.SongRequest, error) {
	r := &models.SongRequest{}
	var externalIDs, likes []byte
	var expires, approved, rejected, played, skipped sql.NullTime
	err := row.Scan(
		&r.ID, &r.EventID, &r.RequestedBy, &r.Song.Title, &r.Song.Artist, &r.Song.Album, &r.Song.Duration,
		&externalIDs, &r.Song.Message,
		&r.Status, &r.Priority, &r.QueuePosition, &r.LikeCount, &r.IsTimeBomb, &expires,
		&r.ApprovedBy, &approved, &r.RejectedBy, &rejected, &r.RejectionReason,
		&r.PlayedBy, &played, &r.PlayDuration, &r.SkippedBy, &skipped,
		&r.CreatedAt, &r.UpdatedAt,
		&likes,
	)
	if err != nil {
		return nil, err
	}
	if len(externalIDs) > 0 {
		if err := json.Unmarshal(externalIDs, &r.Song.ExternalIDs); err != nil {
			return nil, fmt.Errorf("decoding external ids: %w", err)
		}
	}
	if err := json.Unmarshal(likes, &r.Likes); err != nil {
		return nil, fmt.Errorf("decoding likes: %w", err)
	}
	if r.Likes == nil {
		r.Likes = []models.Like{}
	}
	r.TimeBombExpiresAt = timePtr(expires)
	r.ApprovedAt = timePtr(approved)
	r.RejectedAt = timePtr(rejected)
	r.PlayedAt = timePtr(played)
	r.SkippedAt = timePtr(skipped)
	return r, nil
}

func marshalExternalIDs(ids map[string]string) ([]byte, error) {
	if ids == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(ids)
}

// Create stores a new request.
func (s *SongRequestStore) Create(ctx context.Context, r *models.SongRequest) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Likes == nil {
		r.Likes = []models.Like{}
	}
	externalIDs, err := marshalExternalIDs(r.Song.ExternalIDs)
	if err != nil {
		return fmt.Errorf("encoding external ids: %w", err)
	}

	query := `
		INSERT INTO song_requests (
			id, event_id, requested_by, title, artist, album, duration, external_ids, message,
			status, priority, queue_position, like_count, is_time_bomb, time_bomb_expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = s.conn().ExecContext(ctx, query,
		r.ID, r.EventID, r.RequestedBy, r.Song.Title, r.Song.Artist, r.Song.Album, r.Song.Duration,
		externalIDs, r.Song.Message,
		r.Status, r.Priority, r.QueuePosition, len(r.Likes), r.IsTimeBomb, nullTime(r.TimeBombExpiresAt),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("event %s: %w", r.EventID, store.ErrNotFound)
		}
		return fmt.Errorf("inserting song request: %w", err)
	}
	r.LikeCount = len(r.Likes)
	return nil
}

// Get retrieves a request with its likes.
func (s *SongRequestStore) Get(ctx context.Context, id string) (*models.SongRequest, error) {
	return s.get(ctx, s.conn(), id, "")
}

func (s *SongRequestStore) get(ctx context.Context, q queryable, id, lock string) (*models.SongRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + requestColumns + ` FROM song_requests r WHERE r.id = $1` + lock
	r, err := scanRequest(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying song request: %w", err)
	}
	return r, nil
}

// ListByEvent retrieves the requests of an event in creation order.
func (s *SongRequestStore) ListByEvent(ctx context.Context, eventID string, filter store.RequestFilter) ([]*models.SongRequest, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, nil
	}
	args := []any{eventID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds := []string{"r.event_id = $1"}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conds = append(conds, "r.status = ANY("+arg(pq.Array(statuses))+"::text[])")
	}
	if filter.RequestedBy != "" {
		conds = append(conds, "r.requested_by = "+arg(filter.RequestedBy))
	}
	if filter.TimeBomb != nil {
		conds = append(conds, "r.is_time_bomb = "+arg(*filter.TimeBomb))
	}

	query := `SELECT ` + requestColumns + ` FROM song_requests r WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY r.created_at, r.id LIMIT NULLIF(` + arg(filter.Limit) + `, 0) OFFSET ` + arg(filter.Offset)

	return s.list(ctx, query, args...)
}

func (s *SongRequestStore) list(ctx context.Context, query string, args ...any) ([]*models.SongRequest, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing song requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.SongRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning song request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// Save writes the mutable fields of r only if the stored status still equals expected.
// Likes are owned by ToggleLike; the stored likes are copied back into r.
func (s *SongRequestStore) Save(ctx context.Context, r *models.SongRequest, expected models.RequestStatus) error {
	externalIDs, err := marshalExternalIDs(r.Song.ExternalIDs)
	if err != nil {
		return fmt.Errorf("encoding external ids: %w", err)
	}

	query := `
		UPDATE song_requests SET
			title = $3, artist = $4, album = $5, duration = $6, external_ids = $7, message = $8,
			status = $9, priority = $10, queue_position = $11,
			approved_by = $12, approved_at = $13, rejected_by = $14, rejected_at = $15, rejection_reason = $16,
			played_by = $17, played_at = $18, play_duration = $19, skipped_by = $20, skipped_at = $21,
			updated_at = $22
		WHERE id = $1 AND status = $2`

	result, err := s.conn().ExecContext(ctx, query,
		r.ID, expected,
		r.Song.Title, r.Song.Artist, r.Song.Album, r.Song.Duration, externalIDs, r.Song.Message,
		r.Status, r.Priority, r.QueuePosition,
		r.ApprovedBy, nullTime(r.ApprovedAt), r.RejectedBy, nullTime(r.RejectedAt), r.RejectionReason,
		r.PlayedBy, nullTime(r.PlayedAt), r.PlayDuration, r.SkippedBy, nullTime(r.SkippedAt),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating song request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	stored, err := s.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrConcurrentModification
	}
	r.Likes = stored.Likes
	r.LikeCount = stored.LikeCount
	return nil
}

// ToggleLike locks the request row so concurrent toggles on the same request serialize
// and like_count always equals the number of like rows.
func (s *SongRequestStore) ToggleLike(ctx context.Context, id, userID string, now time.Time) (*models.SongRequest, bool, error) {
	var (
		updated *models.SongRequest
		liked   bool
	)
	err := atomically(ctx, s.db, s.tx, func(q queryable) error {
		r, err := s.get(ctx, q, id, " FOR UPDATE OF r")
		if err != nil {
			return err
		}
		liked, err = r.ToggleLike(userID, now)
		if err != nil {
			return err
		}

		if liked {
			_, err = q.ExecContext(ctx,
				`INSERT INTO song_request_likes (request_id, user_id, liked_at) VALUES ($1, $2, $3)`,
				id, userID, now)
		} else {
			_, err = q.ExecContext(ctx,
				`DELETE FROM song_request_likes WHERE request_id = $1 AND user_id = $2`,
				id, userID)
		}
		if err != nil {
			return fmt.Errorf("writing like: %w", err)
		}

		_, err = q.ExecContext(ctx,
			`UPDATE song_requests SET like_count = $2, updated_at = $3 WHERE id = $1`,
			id, r.LikeCount, now)
		if err != nil {
			return fmt.Errorf("updating like count: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, liked, nil
}

// Delete removes a request and its likes.
func (s *SongRequestStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	result, err := s.conn().ExecContext(ctx, `DELETE FROM song_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting song request: %w", err)
	}
	return requireRow(result)
}

// ListExpiredTimeBombs returns pending TimeBomb requests whose deadline is at or before now.
func (s *SongRequestStore) ListExpiredTimeBombs(ctx context.Context, now time.Time, limit int) ([]*models.SongRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM song_requests r
		WHERE r.is_time_bomb AND r.status = $1 AND r.time_bomb_expires_at <= $2
		ORDER BY r.time_bomb_expires_at, r.id
		LIMIT NULLIF($3, 0)`
	return s.list(ctx, query, models.RequestStatusPending, now, limit)
}
