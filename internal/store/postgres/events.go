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
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// EventStore implements store.EventStore using PostgreSQL.
type EventStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *EventStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const eventColumns = `
	e.id, e.name, e.description, e.venue, e.manager_id, e.status, e.is_public,
	e.max_members, e.requires_approval, e.max_songs_per_user, e.allow_duplicates,
	e.time_bomb_enabled, e.time_bomb_duration, e.start_date, e.end_date,
	e.last_queue_position, e.version, e.created_at, e.updated_at,
	COALESCE((
		SELECT json_agg(json_build_object(
			'user_id', m.user_id, 'joined_at', m.joined_at, 'is_approved', m.is_approved
		) ORDER BY m.joined_at)
		FROM event_members m WHERE m.event_id = e.id
	), '[]')`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	e := &models.Event{}
	var members []byte
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Venue, &e.ManagerID, &e.Status, &e.IsPublic,
		&e.MaxMembers, &e.RequiresApproval, &e.MaxSongsPerUser, &e.AllowDuplicates,
		&e.TimeBombEnabled, &e.TimeBombDuration, &e.StartDate, &e.EndDate,
		&e.LastQueuePosition, &e.Version, &e.CreatedAt, &e.UpdatedAt,
		&members,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &e.Members); err != nil {
		return nil, fmt.Errorf("decoding members: %w", err)
	}
	if e.Members == nil {
		e.Members = []models.Member{}
	}
	return e, nil
}

// Create creates a new event.
func (s *EventStore) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1
	if event.Members == nil {
		event.Members = []models.Member{}
	}

	query := `
		INSERT INTO events (
			id, name, description, venue, manager_id, status, is_public,
			max_members, requires_approval, max_songs_per_user, allow_duplicates,
			time_bomb_enabled, time_bomb_duration, start_date, end_date,
			last_queue_position, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.conn().ExecContext(ctx, query,
		event.ID, event.Name, event.Description, event.Venue, event.ManagerID, event.Status, event.IsPublic,
		event.MaxMembers, event.RequiresApproval, event.MaxSongsPerUser, event.AllowDuplicates,
		event.TimeBombEnabled, event.TimeBombDuration, event.StartDate, event.EndDate,
		event.LastQueuePosition, event.Version, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("manager %s: %w", event.ManagerID, store.ErrNotFound)
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// Get retrieves an event with its roster.
func (s *EventStore) Get(ctx context.Context, id string) (*models.Event, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate locks the event row until the surrounding transaction ends.
func (s *EventStore) GetForUpdate(ctx context.Context, id string) (*models.Event, error) {
	return s.get(ctx, id, " FOR UPDATE OF e")
}

func (s *EventStore) get(ctx context.Context, id, lock string) (*models.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1` + lock
	e, err := scanEvent(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return e, nil
}

// List retrieves events matching filter, newest start date first.
func (s *EventStore) List(ctx context.Context, filter store.EventFilter) ([]*models.Event, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "e.status = "+arg(filter.Status))
	}
	if filter.ManagerID != "" {
		conds = append(conds, "e.manager_id::text = "+arg(filter.ManagerID))
	}
	switch {
	case filter.VisibleTo != "":
		p := arg(filter.VisibleTo)
		conds = append(conds, fmt.Sprintf(
			"(e.is_public OR e.manager_id::text = %s OR EXISTS (SELECT 1 FROM event_members m WHERE m.event_id = e.id AND m.user_id::text = %s))",
			p, p))
	case filter.PublicOnly:
		conds = append(conds, "e.is_public")
	}

	query := `SELECT ` + eventColumns + ` FROM events e`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.start_date DESC, e.id LIMIT NULLIF(" + arg(filter.Limit) + ", 0) OFFSET " + arg(filter.Offset)

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Update writes event attributes if event.Version matches, then increments it.
// The roster and queue counter are managed by their own methods and are not written here.
func (s *EventStore) Update(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	query := `
		UPDATE events SET
			name = $3, description = $4, venue = $5, status = $6, is_public = $7,
			max_members = $8, requires_approval = $9, max_songs_per_user = $10, allow_duplicates = $11,
			time_bomb_enabled = $12, time_bomb_duration = $13, start_date = $14, end_date = $15,
			version = version + 1, updated_at = $16
		WHERE id = $1 AND version = $2
		RETURNING version`

	var version int
	err := s.conn().QueryRowContext(ctx, query,
		event.ID, event.Version,
		event.Name, event.Description, event.Venue, event.Status, event.IsPublic,
		event.MaxMembers, event.RequiresApproval, event.MaxSongsPerUser, event.AllowDuplicates,
		event.TimeBombEnabled, event.TimeBombDuration, event.StartDate, event.EndDate,
		now,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, event.ID); getErr != nil {
			return getErr
		}
		return store.ErrConcurrentModification
	}
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	event.Version = version
	event.UpdatedAt = now
	return nil
}

// Delete removes an event. Members, guests, requests and likes go with it through ON DELETE CASCADE.
func (s *EventStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	result, err := s.conn().ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddMember adds a roster entry.
func (s *EventStore) AddMember(ctx context.Context, eventID string, member models.Member) error {
	query := `INSERT INTO event_members (event_id, user_id, joined_at, is_approved) VALUES ($1, $2, $3, $4)`
	_, err := s.conn().ExecContext(ctx, query, eventID, member.UserID, member.JoinedAt, member.IsApproved)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("inserting member: %w", err)
	}
	return nil
}

// RemoveMember removes a roster entry.
func (s *EventStore) RemoveMember(ctx context.Context, eventID, userID string) error {
	return s.execMember(ctx, `DELETE FROM event_members WHERE event_id::text = $1 AND user_id::text = $2`, eventID, userID)
}

// SetMemberApproval approves or unapproves a roster entry.
func (s *EventStore) SetMemberApproval(ctx context.Context, eventID, userID string, approved bool) error {
	return s.execMember(ctx,
		`UPDATE event_members SET is_approved = $3 WHERE event_id::text = $1 AND user_id::text = $2`,
		eventID, userID, approved)
}

func (s *EventStore) execMember(ctx context.Context, query string, args ...any) error {
	result, err := s.conn().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// NextQueuePosition advances the counter in a single statement so concurrent approvals never share a value.
func (s *EventStore) NextQueuePosition(ctx context.Context, eventID string, hint int) (int, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return 0, store.ErrNotFound
	}
	query := `
		UPDATE events SET last_queue_position = GREATEST(last_queue_position + 1, $2)
		WHERE id = $1
		RETURNING last_queue_position`

	var pos int
	err := s.conn().QueryRowContext(ctx, query, eventID, hint).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("advancing queue position: %w", err)
	}
	return pos, nil
}

// LastQueuePosition returns the current counter without advancing it.
func (s *EventStore) LastQueuePosition(ctx context.Context, eventID string) (int, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return 0, store.ErrNotFound
	}
	var pos int
	err := s.conn().QueryRowContext(ctx, `SELECT last_queue_position FROM events WHERE id = $1`, eventID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying queue position: %w", err)
	}
	return pos, nil
}
