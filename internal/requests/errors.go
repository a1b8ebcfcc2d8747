package requests

import (
	"errors"
	"fmt"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// Error kinds returned by every operation in this package. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrLimitExceeded     = errors.New("limit exceeded")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
)

// denied converts a negative policy decision into an error kind.
func denied(d auth.Decision, action auth.Action) error {
	switch d.Reason {
	case auth.ReasonHidden:
		return fmt.Errorf("%w: event", ErrNotFound)
	case auth.ReasonUnauthenticated:
		return fmt.Errorf("%w: %s requires a credential", ErrUnauthorized, action)
	default:
		return fmt.Errorf("%w: %s role may not %s", ErrForbidden, d.Role, action)
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// storeError maps store sentinels onto error kinds. what names the entity for the message.
func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, store.ErrDuplicateKey):
		return fmt.Errorf("%w: %s already exists", ErrConflict, what)
	case errors.Is(err, store.ErrConcurrentModification):
		return fmt.Errorf("%w: %s was modified concurrently", ErrConflict, what)
	case errors.Is(err, store.ErrInvalidCredentials):
		return fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
