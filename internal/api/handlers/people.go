package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/musudik/dropmybeat-api/internal/api/middleware"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/requests"
)

// PeopleHandler handles account administration.
type PeopleHandler struct {
	svc    *requests.Service
	logger *slog.Logger
}

// NewPeopleHandler creates a new people handler.
func NewPeopleHandler(svc *requests.Service, logger *slog.Logger) *PeopleHandler {
	return &PeopleHandler{svc: svc, logger: logger}
}

// List handles GET /v1/people.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.svc.ListPeople(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, people)
}

// Get handles GET /v1/people/{personID}.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	person, err := h.svc.GetPerson(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "personID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, person)
}

// SetRoleRequest is the body of PUT /v1/people/{personID}/role.
type SetRoleRequest struct {
	Role models.Role `json:"role"`
}

// SetRole handles PUT /v1/people/{personID}/role.
func (h *PeopleHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req SetRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	person, err := h.svc.SetRole(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "personID"), req.Role)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, person)
}

// Deactivate handles POST /v1/people/{personID}/deactivate.
func (h *PeopleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Deactivate(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "personID")); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
