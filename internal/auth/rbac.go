package auth

import (
	"errors"

	"github.com/musudik/dropmybeat-api/internal/models"
)

// ErrPermissionDenied is returned by CheckRolePermission.
var ErrPermissionDenied = errors.New("permission denied")

// Permission is a system-wide capability that does not depend on any event.
type Permission string

const (
	// PermissionManagePeople allows listing people, changing roles and deactivating accounts.
	PermissionManagePeople Permission = "manage_people"
	// PermissionCreateEvents allows creating events.
	PermissionCreateEvents Permission = "create_events"
	// PermissionAssignManager allows creating an event on behalf of another manager.
	PermissionAssignManager Permission = "assign_manager"
)

// rolePermissions defines which system-wide permissions each role has.
var rolePermissions = map[models.Role][]Permission{
	models.RoleAdmin: {
		PermissionManagePeople,
		PermissionCreateEvents,
		PermissionAssignManager,
	},
	models.RoleManager: {
		PermissionCreateEvents,
	},
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role models.Role, permission Permission) error {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return nil
		}
	}
	return ErrPermissionDenied
}

// Action is an operation performed against one event or one of its requests.
type Action string

const (
	ActionViewEvent       Action = "view_event"
	ActionViewQueue       Action = "view_queue"
	ActionViewReviewQueue Action = "view_review_queue"
	ActionUpdateEvent     Action = "update_event"
	ActionDeleteEvent     Action = "delete_event"
	ActionManageMembers   Action = "manage_members"
	ActionJoinEvent       Action = "join_event"
	ActionJoinAsGuest     Action = "join_as_guest"
	ActionLeaveEvent      Action = "leave_event"
	ActionCreateRequest   Action = "create_request"
	ActionLikeRequest     Action = "like_request"
	ActionUpdateRequest   Action = "update_request"
	ActionDeleteRequest   Action = "delete_request"
	ActionReviewRequest   Action = "review_request"
)

// EventRole is the principal's relationship to a particular event.
type EventRole string

const (
	EventRoleAdmin       EventRole = "admin"
	EventRoleManager     EventRole = "manager"
	EventRoleParticipant EventRole = "participant"
	// EventRoleApplicant is a member or guest awaiting approval.
	EventRoleApplicant EventRole = "applicant"
	// EventRoleViewer is an authenticated principal with no relationship to the event.
	EventRoleViewer    EventRole = "viewer"
	EventRoleAnonymous EventRole = "anonymous"
)

// eventRolePermissions defines what each event role may do. Admins are not listed; they may do everything.
var eventRolePermissions = map[EventRole][]Action{
	EventRoleManager: {
		ActionViewEvent,
		ActionViewQueue,
		ActionViewReviewQueue,
		ActionUpdateEvent,
		ActionDeleteEvent,
		ActionManageMembers,
		ActionCreateRequest,
		ActionLikeRequest,
		ActionDeleteRequest,
		ActionReviewRequest,
	},
	EventRoleParticipant: {
		ActionViewEvent,
		ActionViewQueue,
		ActionLeaveEvent,
		ActionCreateRequest,
		ActionLikeRequest,
	},
	EventRoleApplicant: {
		ActionLeaveEvent,
	},
	EventRoleViewer: {
		ActionJoinEvent,
		ActionJoinAsGuest,
	},
	EventRoleAnonymous: {
		ActionJoinAsGuest,
	},
}

// Reason explains a denied Decision.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonUnauthenticated means the action needs a credential and none was supplied.
	ReasonUnauthenticated Reason = "unauthenticated"
	// ReasonForbidden means the principal is known but lacks the privilege.
	ReasonForbidden Reason = "forbidden"
	// ReasonHidden means the event is private and the principal has no relationship to it.
	ReasonHidden Reason = "hidden"
)

// Decision is the outcome of CanPerform.
type Decision struct {
	Allowed bool
	Role    EventRole
	Reason  Reason
}

func allow(role EventRole) Decision {
	return Decision{Allowed: true, Role: role}
}

func deny(role EventRole, reason Reason) Decision {
	return Decision{Role: role, Reason: reason}
}

// Scope is the state an event-scoped decision is made against.
type Scope struct {
	Event *models.Event
	// Guest is the caller's participant record when the principal is a guest.
	Guest *models.EventParticipant
	// ResourceOwnerID is the requester of the song request being acted on, if any.
	ResourceOwnerID string
}

// ResolveEventRole determines the principal's relationship to the event in scope.
func ResolveEventRole(p Principal, scope Scope) EventRole {
	switch {
	case p.IsAnonymous():
		return EventRoleAnonymous
	case p.Role == models.RoleAdmin:
		return EventRoleAdmin
	case p.IsGuest():
		g := scope.Guest
		if g == nil || g.ID != p.ID || p.EventID != scope.Event.ID || !g.Matches(scope.Event.ID, p.Email) {
			return EventRoleViewer
		}
		if g.IsApproved {
			return EventRoleParticipant
		}
		return EventRoleApplicant
	case p.Role == models.RoleManager && scope.Event.ManagerID == p.ID:
		return EventRoleManager
	}
	if m, ok := scope.Event.FindMember(p.ID); ok {
		if m.IsApproved {
			return EventRoleParticipant
		}
		return EventRoleApplicant
	}
	return EventRoleViewer
}

func isReadAction(action Action) bool {
	return action == ActionViewEvent || action == ActionViewQueue
}

func isJoinAction(action Action) bool {
	return action == ActionJoinEvent || action == ActionJoinAsGuest
}

// CanPerform decides whether p may perform action within scope.
// It has no side effects and must be evaluated for every command.
func CanPerform(p Principal, scope Scope, action Action) Decision {
	role := ResolveEventRole(p, scope)
	if role == EventRoleAdmin {
		return allow(role)
	}

	// A private event's ID doubles as its invitation, so joining is not hidden.
	unrelated := role == EventRoleViewer || role == EventRoleAnonymous
	if !scope.Event.IsPublic && unrelated && !isJoinAction(action) {
		return deny(role, ReasonHidden)
	}

	if scope.Event.IsPublic && isReadAction(action) {
		return allow(role)
	}

	if (action == ActionUpdateRequest || action == ActionDeleteRequest) &&
		role != EventRoleAnonymous && scope.ResourceOwnerID != "" && scope.ResourceOwnerID == p.ID {
		return allow(role)
	}

	// Registered people join the roster; guest joins are anonymous.
	if action == ActionJoinEvent && p.IsGuest() {
		return deny(role, ReasonForbidden)
	}

	for _, a := range eventRolePermissions[role] {
		if a == action {
			return allow(role)
		}
	}

	if role == EventRoleAnonymous {
		return deny(role, ReasonUnauthenticated)
	}
	return deny(role, ReasonForbidden)
}
