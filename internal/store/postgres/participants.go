package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// ParticipantStore implements store.ParticipantStore using PostgreSQL.
type ParticipantStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ParticipantStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const participantColumns = `id, event_id, email, first_name, last_name, is_approved, joined_at`

func scanParticipant(row interface{ Scan(...any) error }) (*models.EventParticipant, error) {
	p := &models.EventParticipant{}
	if err := row.Scan(&p.ID, &p.EventID, &p.Email, &p.FirstName, &p.LastName, &p.IsApproved, &p.JoinedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Create stores a guest.
func (s *ParticipantStore) Create(ctx context.Context, p *models.EventParticipant) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `INSERT INTO event_participants (` + participantColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.conn().ExecContext(ctx, query,
		p.ID, p.EventID, p.Email, p.FirstName, p.LastName, p.IsApproved, p.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

// Get retrieves a guest by ID.
func (s *ParticipantStore) Get(ctx context.Context, id string) (*models.EventParticipant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + participantColumns + ` FROM event_participants WHERE id = $1`
	p, err := scanParticipant(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}
	return p, nil
}

// ListByEvent retrieves all guests of an event in join order.
func (s *ParticipantStore) ListByEvent(ctx context.Context, eventID string) ([]*models.EventParticipant, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, nil
	}
	query := `SELECT ` + participantColumns + ` FROM event_participants WHERE event_id = $1 ORDER BY joined_at, id`
	rows, err := s.conn().QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.EventParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SetApproval approves or unapproves a guest.
func (s *ParticipantStore) SetApproval(ctx context.Context, id string, approved bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	result, err := s.conn().ExecContext(ctx, `UPDATE event_participants SET is_approved = $2 WHERE id = $1`, id, approved)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}
	return requireRow(result)
}

// Delete removes a guest.
func (s *ParticipantStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	result, err := s.conn().ExecContext(ctx, `DELETE FROM event_participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting participant: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
