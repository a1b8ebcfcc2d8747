package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// PersonStore implements store.PersonStore using PostgreSQL.
type PersonStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *PersonStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const personColumns = `id, email, first_name, last_name, role, is_active, created_at, updated_at`

func scanPerson(row interface{ Scan(...any) error }) (*models.Person, error) {
	p := &models.Person{}
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create stores a new person with a bcrypt hash of password.
func (s *PersonStore) Create(ctx context.Context, person *models.Person, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	person.Email = models.NormalizeEmail(person.Email)
	person.CreatedAt = now
	person.UpdatedAt = now

	query := `
		INSERT INTO people (id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.conn().ExecContext(ctx, query,
		person.ID,
		person.Email,
		string(hash),
		person.FirstName,
		person.LastName,
		person.Role,
		person.IsActive,
		person.CreatedAt,
		person.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("inserting person: %w", err)
	}
	return nil
}

// Get retrieves a person by ID.
func (s *PersonStore) Get(ctx context.Context, id string) (*models.Person, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + personColumns + ` FROM people WHERE id = $1`
	p, err := scanPerson(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying person: %w", err)
	}
	return p, nil
}

// GetByEmail retrieves a person by email.
func (s *PersonStore) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE email = $1`
	p, err := scanPerson(s.conn().QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying person by email: %w", err)
	}
	return p, nil
}

// Authenticate verifies credentials and returns the active person.
func (s *PersonStore) Authenticate(ctx context.Context, email, password string) (*models.Person, error) {
	query := `SELECT ` + personColumns + `, password_hash FROM people WHERE email = $1`

	p := &models.Person{}
	var hash string
	err := s.conn().QueryRowContext(ctx, query, models.NormalizeEmail(email)).Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &hash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	if !p.IsActive {
		return nil, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, store.ErrInvalidCredentials
	}
	return p, nil
}

// List retrieves all people ordered by creation time.
func (s *PersonStore) List(ctx context.Context) ([]*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people ORDER BY created_at`
	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	defer rows.Close()

	var people []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// SetRole changes a person's role.
func (s *PersonStore) SetRole(ctx context.Context, id string, role models.Role) error {
	return s.update(ctx, `UPDATE people SET role = $2, updated_at = $3 WHERE id = $1`, id, role)
}

// SetActive activates or deactivates a person.
func (s *PersonStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, `UPDATE people SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active)
}

func (s *PersonStore) update(ctx context.Context, query, id string, value any) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	result, err := s.conn().ExecContext(ctx, query, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating person: %w", err)
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
