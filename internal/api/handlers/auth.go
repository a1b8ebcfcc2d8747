package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/musudik/dropmybeat-api/internal/api/errors"
	"github.com/musudik/dropmybeat-api/internal/api/middleware"
	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/requests"
)

// AuthHandler handles account registration, login and the current-principal endpoint.
type AuthHandler struct {
	svc    *requests.Service
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *requests.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req requests.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	var errs apierrors.ValidationErrors
	if strings.TrimSpace(req.Email) == "" {
		errs.Add("email", "email is required")
	}
	if req.Password == "" {
		errs.Add("password", "password is required")
	}
	if errs.HasErrors() {
		WriteError(w, r, h.logger, errs.ToAPIError())
		return
	}

	person, err := h.svc.Register(r.Context(), req)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, person)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token  string         `json:"token"`
	Person *models.Person `json:"person"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, r, h.logger, apierrors.NewValidationError("email and password required"))
		return
	}

	token, person, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, LoginResponse{Token: token, Person: person})
}

// MeResponse describes the caller.
type MeResponse struct {
	Principal auth.Principal `json:"principal"`
	Person    *models.Person `json:"person,omitempty"`
}

// Me handles GET /v1/me. Guests have no account, so only their principal is returned.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	resp := MeResponse{Principal: p}
	if !p.IsGuest() {
		person, err := h.svc.GetPerson(r.Context(), p, p.ID)
		if err != nil {
			WriteError(w, r, h.logger, err)
			return
		}
		resp.Person = person
	}
	WriteJSON(w, http.StatusOK, resp)
}
