package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// EventPatch carries the event attributes to change. Nil fields are left unchanged.
// Version must equal the version the caller last read.
type EventPatch struct {
	Name             *string             `json:"name,omitempty"`
	Description      *string             `json:"description,omitempty"`
	Venue            *string             `json:"venue,omitempty"`
	Status           *models.EventStatus `json:"status,omitempty"`
	IsPublic         *bool               `json:"is_public,omitempty"`
	MaxMembers       *int                `json:"max_members,omitempty"`
	RequiresApproval *bool               `json:"requires_approval,omitempty"`
	MaxSongsPerUser  *int                `json:"max_songs_per_user,omitempty"`
	AllowDuplicates  *bool               `json:"allow_duplicates,omitempty"`
	TimeBombEnabled  *bool               `json:"time_bomb_enabled,omitempty"`
	TimeBombDuration *int                `json:"time_bomb_duration,omitempty"`
	StartDate        *time.Time          `json:"start_date,omitempty"`
	EndDate          *time.Time          `json:"end_date,omitempty"`
	Version          int                 `json:"version"`
}

func (patch *EventPatch) apply(e *models.Event) error {
	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Venue != nil {
		e.Venue = *patch.Venue
	}
	if patch.IsPublic != nil {
		e.IsPublic = *patch.IsPublic
	}
	if patch.MaxMembers != nil {
		e.MaxMembers = *patch.MaxMembers
	}
	if patch.RequiresApproval != nil {
		e.RequiresApproval = *patch.RequiresApproval
	}
	if patch.MaxSongsPerUser != nil {
		e.MaxSongsPerUser = *patch.MaxSongsPerUser
	}
	if patch.AllowDuplicates != nil {
		e.AllowDuplicates = *patch.AllowDuplicates
	}
	if patch.TimeBombEnabled != nil {
		e.TimeBombEnabled = *patch.TimeBombEnabled
	}
	if patch.TimeBombDuration != nil {
		e.TimeBombDuration = *patch.TimeBombDuration
	}
	if patch.StartDate != nil {
		e.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		e.EndDate = *patch.EndDate
	}
	if patch.Status != nil {
		if err := e.TransitionTo(*patch.Status); err != nil {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, *patch.Status)
		}
	}
	return nil
}

// requirePermission checks a system-wide permission.
func requirePermission(p auth.Principal, perm auth.Permission) error {
	if p.IsAnonymous() {
		return fmt.Errorf("%w: %s requires a credential", ErrUnauthorized, perm)
	}
	if err := auth.CheckRolePermission(p.Role, perm); err != nil {
		return fmt.Errorf("%w: %s role lacks %s", ErrForbidden, p.Role, perm)
	}
	return nil
}

// CreateEvent stores a new event. The caller becomes its manager unless an admin names another one.
func (s *Service) CreateEvent(ctx context.Context, p auth.Principal, in *models.Event) (*models.Event, error) {
	if err := requirePermission(p, auth.PermissionCreateEvents); err != nil {
		return nil, err
	}

	event := in.Clone()
	event.ID = ""
	event.Members = nil
	event.LastQueuePosition = 0
	if event.Status == "" {
		event.Status = models.EventStatusDraft
	}

	if event.ManagerID == "" || event.ManagerID == p.ID {
		event.ManagerID = p.ID
	} else {
		if err := requirePermission(p, auth.PermissionAssignManager); err != nil {
			return nil, err
		}
		manager, err := s.store.People().Get(ctx, event.ManagerID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: manager %s does not exist", ErrValidation, event.ManagerID)
		}
		if err != nil {
			return nil, storeError(err, "person")
		}
		if !manager.IsActive || (manager.Role != models.RoleManager && manager.Role != models.RoleAdmin) {
			return nil, fmt.Errorf("%w: %s cannot manage events", ErrValidation, manager.Email)
		}
	}

	if err := event.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := s.store.Events().Create(ctx, event); err != nil {
		return nil, storeError(err, "event")
	}

	s.logger.Info("event created", "event_id", event.ID, "manager_id", event.ManagerID, "actor", p.ID)
	return event, nil
}

// GetEvent returns an event visible to p.
func (s *Service) GetEvent(ctx context.Context, p auth.Principal, eventID string) (*models.Event, error) {
	sc, err := s.readableScope(ctx, p, eventID, auth.ActionViewEvent)
	if err != nil {
		return nil, err
	}
	return sc.event, nil
}

// ListEvents returns the events matching filter that p may view.
func (s *Service) ListEvents(ctx context.Context, p auth.Principal, filter store.EventFilter) ([]*models.Event, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}

	switch {
	case p.IsAnonymous():
		filter.PublicOnly = true
	case p.Role != models.RoleAdmin:
		filter.VisibleTo = p.ID
	}
	list, err := s.store.Events().List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "events")
	}

	visible := make([]*models.Event, 0, len(list))
	for _, e := range list {
		if auth.CanPerform(p, auth.Scope{Event: e}, auth.ActionViewEvent).Allowed {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// UpdateEvent applies patch if the event is still at patch.Version.
func (s *Service) UpdateEvent(ctx context.Context, p auth.Principal, eventID string, patch EventPatch) (*models.Event, error) {
	var updated *models.Event
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionUpdateEvent); err != nil {
			return err
		}
		event := sc.event
		if patch.Version != event.Version {
			return fmt.Errorf("%w: event is at version %d, not %d", ErrConflict, event.Version, patch.Version)
		}
		if err := patch.apply(event); err != nil {
			return err
		}
		if err := event.Validate(); err != nil {
			return invalid(err)
		}
		if err := tx.Events().Update(ctx, event); err != nil {
			return storeError(err, "event")
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event updated", "event_id", eventID, "status", updated.Status, "version", updated.Version, "actor", p.ID)
	return updated, nil
}

// DeleteEvent removes an event with all of its requests, members and guests.
func (s *Service) DeleteEvent(ctx context.Context, p auth.Principal, eventID string) error {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionDeleteEvent); err != nil {
			return err
		}
		return storeError(tx.Events().Delete(ctx, eventID), "event")
	})
	if err != nil {
		return err
	}
	s.logger.Info("event deleted", "event_id", eventID, "actor", p.ID)
	return nil
}
