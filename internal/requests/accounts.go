package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Register creates an active member account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Person, error) {
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	person := &models.Person{
		Email:     models.NormalizeEmail(in.Email),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      models.RoleMember,
		IsActive:  true,
	}
	if err := person.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := s.store.People().Create(ctx, person, in.Password); err != nil {
		return nil, storeError(err, "account")
	}
	s.logger.Info("account registered", "user_id", person.ID)
	return person, nil
}

// Login verifies credentials and returns a signed token for the person.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Person, error) {
	if s.tokens == nil {
		return "", nil, errors.New("login: no token issuer configured")
	}
	person, err := s.store.People().Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, storeError(err, "account")
	}
	token, err := s.tokens.GenerateToken(person.ID, person.Email, person.Role)
	if err != nil {
		return "", nil, fmt.Errorf("issuing token: %w", err)
	}
	return token, person, nil
}

// GetPerson returns p's own account, or any account for admins.
func (s *Service) GetPerson(ctx context.Context, p auth.Principal, id string) (*models.Person, error) {
	if p.IsAnonymous() || p.IsGuest() {
		return nil, fmt.Errorf("%w: an account credential is required", ErrUnauthorized)
	}
	if p.ID != id {
		if err := requirePermission(p, auth.PermissionManagePeople); err != nil {
			return nil, err
		}
	}
	person, err := s.store.People().Get(ctx, id)
	if err != nil {
		return nil, storeError(err, "person")
	}
	return person, nil
}

// ListPeople returns every account.
func (s *Service) ListPeople(ctx context.Context, p auth.Principal) ([]*models.Person, error) {
	if err := requirePermission(p, auth.PermissionManagePeople); err != nil {
		return nil, err
	}
	people, err := s.store.People().List(ctx)
	if err != nil {
		return nil, storeError(err, "people")
	}
	return people, nil
}

// SetRole changes an account's role. Guests are not accounts, so RoleGuest is rejected.
func (s *Service) SetRole(ctx context.Context, p auth.Principal, id string, role models.Role) (*models.Person, error) {
	if err := requirePermission(p, auth.PermissionManagePeople); err != nil {
		return nil, err
	}
	if !role.IsValid() || role == models.RoleGuest {
		return nil, invalid(models.ErrPersonRoleInvalid)
	}
	if err := s.store.People().SetRole(ctx, id, role); err != nil {
		return nil, storeError(err, "person")
	}
	s.logger.Info("role changed", "user_id", id, "role", role, "actor", p.ID)
	return s.store.People().Get(ctx, id)
}

// Deactivate disables an account. Its tokens stop working on the next request.
func (s *Service) Deactivate(ctx context.Context, p auth.Principal, id string) error {
	if err := requirePermission(p, auth.PermissionManagePeople); err != nil {
		return err
	}
	if id == p.ID {
		return fmt.Errorf("%w: cannot deactivate your own account", ErrValidation)
	}
	if err := s.store.People().SetActive(ctx, id, false); err != nil {
		return storeError(err, "person")
	}
	s.logger.Info("account deactivated", "user_id", id, "actor", p.ID)
	return nil
}

// ResolvePrincipal checks a token's principal against current state. People must still exist and be
// active, and their role is refreshed; guests must still be recorded for the event in their token.
func (s *Service) ResolvePrincipal(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	if p.IsAnonymous() {
		return p, nil
	}

	if p.IsGuest() {
		guest, err := s.store.Participants().Get(ctx, p.ID)
		if errors.Is(err, store.ErrNotFound) {
			return auth.Principal{}, fmt.Errorf("%w: guest is no longer registered", ErrUnauthorized)
		}
		if err != nil {
			return auth.Principal{}, storeError(err, "participant")
		}
		if !guest.Matches(p.EventID, p.Email) {
			return auth.Principal{}, fmt.Errorf("%w: guest token does not match", ErrUnauthorized)
		}
		return p, nil
	}

	person, err := s.store.People().Get(ctx, p.ID)
	if errors.Is(err, store.ErrNotFound) {
		return auth.Principal{}, fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
	}
	if err != nil {
		return auth.Principal{}, storeError(err, "person")
	}
	if !person.IsActive {
		return auth.Principal{}, fmt.Errorf("%w: account is deactivated", ErrUnauthorized)
	}
	p.Role = person.Role
	p.Email = person.Email
	return p, nil
}
