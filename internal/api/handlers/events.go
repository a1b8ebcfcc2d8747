package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/musudik/dropmybeat-api/internal/api/errors"
	"github.com/musudik/dropmybeat-api/internal/api/middleware"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// EventHandler handles events and their rosters.
type EventHandler struct {
	svc    *requests.Service
	logger *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(svc *requests.Service, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, logger: logger}
}

// CreateEventRequest is the body of POST /v1/events.
type CreateEventRequest struct {
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Venue            string             `json:"venue,omitempty"`
	ManagerID        string             `json:"manager_id,omitempty"`
	Status           models.EventStatus `json:"status,omitempty"`
	IsPublic         bool               `json:"is_public"`
	MaxMembers       int                `json:"max_members"`
	RequiresApproval bool               `json:"requires_approval"`
	MaxSongsPerUser  int                `json:"max_songs_per_user"`
	AllowDuplicates  bool               `json:"allow_duplicates"`
	TimeBombEnabled  bool               `json:"time_bomb_enabled"`
	TimeBombDuration int                `json:"time_bomb_duration,omitempty"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
}

func (req *CreateEventRequest) event() *models.Event {
	return &models.Event{
		Name:             req.Name,
		Description:      req.Description,
		Venue:            req.Venue,
		ManagerID:        req.ManagerID,
		Status:           req.Status,
		IsPublic:         req.IsPublic,
		MaxMembers:       req.MaxMembers,
		RequiresApproval: req.RequiresApproval,
		MaxSongsPerUser:  req.MaxSongsPerUser,
		AllowDuplicates:  req.AllowDuplicates,
		TimeBombEnabled:  req.TimeBombEnabled,
		TimeBombDuration: req.TimeBombDuration,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	}
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), middleware.GetPrincipal(r.Context()), req.event())
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, event)
}

// List handles GET /v1/events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	var errs apierrors.ValidationErrors
	filter := store.EventFilter{
		Status:    models.EventStatus(r.URL.Query().Get("status")),
		ManagerID: r.URL.Query().Get("manager_id"),
		Limit:     queryInt(r, "limit", &errs),
		Offset:    queryInt(r, "offset", &errs),
	}
	if publicOnly := queryBool(r, "public_only", &errs); publicOnly != nil {
		filter.PublicOnly = *publicOnly
	}
	if errs.HasErrors() {
		WriteError(w, r, h.logger, errs.ToAPIError())
		return
	}

	events, err := h.svc.ListEvents(r.Context(), middleware.GetPrincipal(r.Context()), filter)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, events)
}

// Get handles GET /v1/events/{eventID}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, event)
}

// Update handles PATCH /v1/events/{eventID}.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch requests.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	event, err := h.svc.UpdateEvent(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"), patch)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, event)
}

// Delete handles DELETE /v1/events/{eventID}.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEvent(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID")); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Join handles POST /v1/events/{eventID}/join.
func (h *EventHandler) Join(w http.ResponseWriter, r *http.Request) {
	member, err := h.svc.JoinEvent(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, member)
}

// Leave handles POST /v1/events/{eventID}/leave.
func (h *EventHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.LeaveEvent(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID")); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveMember handles POST /v1/events/{eventID}/members/{userID}/approve.
func (h *EventHandler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ApproveMember(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /v1/events/{eventID}/members/{userID}.
func (h *EventHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveMember(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinAsGuest handles POST /v1/events/{eventID}/guests. No credential is needed.
func (h *EventHandler) JoinAsGuest(w http.ResponseWriter, r *http.Request) {
	var req requests.GuestJoinInput
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	session, err := h.svc.JoinAsGuest(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"), req)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, session)
}

// ListGuests handles GET /v1/events/{eventID}/guests.
func (h *EventHandler) ListGuests(w http.ResponseWriter, r *http.Request) {
	guests, err := h.svc.ListParticipants(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, guests)
}

// ApproveGuest handles POST /v1/events/{eventID}/guests/{participantID}/approve.
func (h *EventHandler) ApproveGuest(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ApproveGuest(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "participantID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
