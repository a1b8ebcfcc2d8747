package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// GuestJoinInput identifies a guest joining without an account.
type GuestJoinInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// GuestSession is the result of a guest join.
type GuestSession struct {
	Participant *models.EventParticipant `json:"participant"`
	Token       string                   `json:"token"`
}

// ensureCapacity fails when admitting one more approved participant would exceed MaxMembers.
// Approved members and approved guests both count.
func ensureCapacity(ctx context.Context, tx store.Store, event *models.Event) error {
	if event.MaxMembers == 0 {
		return nil
	}
	guests, err := tx.Participants().ListByEvent(ctx, event.ID)
	if err != nil {
		return storeError(err, "participants")
	}
	approved := event.ApprovedMemberCount()
	for _, g := range guests {
		if g.IsApproved {
			approved++
		}
	}
	if approved >= event.MaxMembers {
		return fmt.Errorf("%w: event is full (%d participants)", ErrLimitExceeded, event.MaxMembers)
	}
	return nil
}

// JoinEvent adds p to the event's roster. The entry is approved unless the event requires approval.
func (s *Service) JoinEvent(ctx context.Context, p auth.Principal, eventID string) (*models.Member, error) {
	var joined *models.Member
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		event := sc.event
		if _, ok := event.FindMember(p.ID); ok && !p.IsGuest() {
			return fmt.Errorf("%w: already a member", ErrConflict)
		}
		if err := authorize(p, sc.auth(""), auth.ActionJoinEvent); err != nil {
			return err
		}
		if !event.Status.AcceptsMembers() {
			return fmt.Errorf("%w: event is %s and not accepting members", ErrForbidden, event.Status)
		}

		member, err := event.AddMember(p.ID, s.now())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		if member.IsApproved {
			if err := ensureCapacity(ctx, tx, event); err != nil {
				return err
			}
		}
		if err := tx.Events().AddMember(ctx, eventID, *member); err != nil {
			return storeError(err, "member")
		}
		joined = member
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member joined", "event_id", eventID, "user_id", p.ID, "approved", joined.IsApproved)
	return joined, nil
}

// LeaveEvent removes p's membership, or p's guest record for guest principals.
func (s *Service) LeaveEvent(ctx context.Context, p auth.Principal, eventID string) error {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionLeaveEvent); err != nil {
			return err
		}
		if p.IsGuest() {
			return storeError(tx.Participants().Delete(ctx, p.ID), "participant")
		}
		return storeError(tx.Events().RemoveMember(ctx, eventID, p.ID), "member")
	})
	if err != nil {
		return err
	}
	s.logger.Info("participant left", "event_id", eventID, "user_id", p.ID)
	return nil
}

// ApproveMember approves a pending roster entry.
func (s *Service) ApproveMember(ctx context.Context, p auth.Principal, eventID, userID string) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionManageMembers); err != nil {
			return err
		}
		m, ok := sc.event.FindMember(userID)
		if !ok {
			return fmt.Errorf("%w: member", ErrNotFound)
		}
		if m.IsApproved {
			return nil
		}
		if err := ensureCapacity(ctx, tx, sc.event); err != nil {
			return err
		}
		if err := tx.Events().SetMemberApproval(ctx, eventID, userID, true); err != nil {
			return storeError(err, "member")
		}
		s.logger.Info("member approved", "event_id", eventID, "user_id", userID, "actor", p.ID)
		return nil
	})
}

// RemoveMember drops a roster entry.
func (s *Service) RemoveMember(ctx context.Context, p auth.Principal, eventID, userID string) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionManageMembers); err != nil {
			return err
		}
		if err := tx.Events().RemoveMember(ctx, eventID, userID); err != nil {
			return storeError(err, "member")
		}
		s.logger.Info("member removed", "event_id", eventID, "user_id", userID, "actor", p.ID)
		return nil
	})
}

// JoinAsGuest records a guest for the event and issues a guest token scoped to it.
func (s *Service) JoinAsGuest(ctx context.Context, p auth.Principal, eventID string, in GuestJoinInput) (*GuestSession, error) {
	if s.tokens == nil {
		return nil, errors.New("guest join: no token issuer configured")
	}

	var session *GuestSession
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionJoinAsGuest); err != nil {
			return err
		}
		event := sc.event
		if !event.Status.AcceptsMembers() {
			return fmt.Errorf("%w: event is %s and not accepting guests", ErrForbidden, event.Status)
		}

		guest := models.NewEventParticipant(event, in.Email, in.FirstName, in.LastName, s.now())
		if err := guest.Validate(); err != nil {
			return invalid(err)
		}
		if guest.IsApproved {
			if err := ensureCapacity(ctx, tx, event); err != nil {
				return err
			}
		}
		if err := tx.Participants().Create(ctx, guest); err != nil {
			return storeError(err, "guest")
		}
		token, err := s.tokens.GenerateGuestToken(guest.ID, guest.Email, event.ID)
		if err != nil {
			return fmt.Errorf("issuing guest token: %w", err)
		}
		session = &GuestSession{Participant: guest, Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guest joined",
		"event_id", eventID,
		"participant_id", session.Participant.ID,
		"approved", session.Participant.IsApproved,
	)
	return session, nil
}

// ApproveGuest approves a pending guest of the event.
func (s *Service) ApproveGuest(ctx context.Context, p auth.Principal, eventID, participantID string) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		sc, err := s.loadScope(ctx, tx, p, eventID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, sc.auth(""), auth.ActionManageMembers); err != nil {
			return err
		}
		guest, err := tx.Participants().Get(ctx, participantID)
		if err != nil {
			return storeError(err, "participant")
		}
		if guest.EventID != eventID {
			return fmt.Errorf("%w: participant", ErrNotFound)
		}
		if guest.IsApproved {
			return nil
		}
		if err := ensureCapacity(ctx, tx, sc.event); err != nil {
			return err
		}
		if err := tx.Participants().SetApproval(ctx, participantID, true); err != nil {
			return storeError(err, "participant")
		}
		s.logger.Info("guest approved", "event_id", eventID, "participant_id", participantID, "actor", p.ID)
		return nil
	})
}

// ListParticipants returns the event's guests.
func (s *Service) ListParticipants(ctx context.Context, p auth.Principal, eventID string) ([]*models.EventParticipant, error) {
	if _, err := s.readableScope(ctx, p, eventID, auth.ActionManageMembers); err != nil {
		return nil, err
	}
	guests, err := s.store.Participants().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, storeError(err, "participants")
	}
	return guests, nil
}
