package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/musudik/dropmybeat-api/internal/api/errors"
	"github.com/musudik/dropmybeat-api/internal/api/middleware"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/musudik/dropmybeat-api/internal/store"
)

// RequestHandler handles song requests and the queue views of an event.
type RequestHandler struct {
	svc    *requests.Service
	logger *slog.Logger
}

// NewRequestHandler creates a new song request handler.
func NewRequestHandler(svc *requests.Service, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, logger: logger}
}

// CreateSongRequest is the body of POST /v1/events/{eventID}/requests.
type CreateSongRequest struct {
	Title       string            `json:"title"`
	Artist      string            `json:"artist"`
	Album       string            `json:"album,omitempty"`
	Duration    int               `json:"duration,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Message     string            `json:"message,omitempty"`
	IsTimeBomb  bool              `json:"is_time_bomb"`
}

// Create handles POST /v1/events/{eventID}/requests.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSongRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	in := requests.CreateRequestInput{
		Song: models.Song{
			Title:       req.Title,
			Artist:      req.Artist,
			Album:       req.Album,
			Duration:    req.Duration,
			ExternalIDs: req.ExternalIDs,
			Message:     req.Message,
		},
		IsTimeBomb: req.IsTimeBomb,
	}
	created, err := h.svc.CreateRequest(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"), in)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// List handles GET /v1/events/{eventID}/requests.
// Statuses may be given comma-separated or as repeated status parameters.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	var errs apierrors.ValidationErrors
	filter := store.RequestFilter{
		RequestedBy: r.URL.Query().Get("requested_by"),
		TimeBomb:    queryBool(r, "time_bomb", &errs),
		Limit:       queryInt(r, "limit", &errs),
		Offset:      queryInt(r, "offset", &errs),
	}
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, models.RequestStatus(s))
			}
		}
	}
	if errs.HasErrors() {
		WriteError(w, r, h.logger, errs.ToAPIError())
		return
	}

	list, err := h.svc.ListRequests(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"), filter)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Get handles GET /v1/events/{eventID}/requests/{requestID}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	sr, err := h.svc.GetRequest(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sr)
}

// Update handles PATCH /v1/events/{eventID}/requests/{requestID}.
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	var u models.SongUpdate
	if err := decodeJSON(r, &u); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	sr, err := h.svc.UpdateRequest(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"), u)
	h.respond(w, r, sr, err)
}

// Delete handles DELETE /v1/events/{eventID}/requests/{requestID}.
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteRequest(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LikeResponse reports the request after a like toggle.
type LikeResponse struct {
	SongRequest *models.SongRequest `json:"song_request"`
	Liked       bool                `json:"liked"`
}

// ToggleLike handles POST /v1/events/{eventID}/requests/{requestID}/like.
func (h *RequestHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	sr, liked, err := h.svc.ToggleLike(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, LikeResponse{SongRequest: sr, Liked: liked})
}

// ApproveRequest is the optional body of the approve command. A zero QueuePosition
// takes the next position.
type ApproveRequest struct {
	QueuePosition int `json:"queue_position,omitempty"`
}

// Approve handles POST /v1/events/{eventID}/requests/{requestID}/approve.
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	sr, err := h.svc.Approve(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"), req.QueuePosition)
	h.respond(w, r, sr, err)
}

// RejectRequest is the optional body of the reject command.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Reject handles POST /v1/events/{eventID}/requests/{requestID}/reject.
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	sr, err := h.svc.Reject(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"), req.Reason)
	h.respond(w, r, sr, err)
}

// PlayRequest is the optional body of the play command.
type PlayRequest struct {
	// Duration is how long the song was played, in seconds.
	Duration int `json:"duration,omitempty"`
}

// Play handles POST /v1/events/{eventID}/requests/{requestID}/play.
func (h *RequestHandler) Play(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	sr, err := h.svc.MarkPlayed(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"), req.Duration)
	h.respond(w, r, sr, err)
}

// Skip handles POST /v1/events/{eventID}/requests/{requestID}/skip.
func (h *RequestHandler) Skip(w http.ResponseWriter, r *http.Request) {
	sr, err := h.svc.Skip(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"))
	h.respond(w, r, sr, err)
}

// PriorityRequest is the body of PUT /v1/events/{eventID}/requests/{requestID}/priority.
type PriorityRequest struct {
	Priority *int `json:"priority"`
}

// SetPriority handles PUT /v1/events/{eventID}/requests/{requestID}/priority.
func (h *RequestHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req PriorityRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	if req.Priority == nil {
		WriteError(w, r, h.logger, apierrors.NewValidationError("priority is required"))
		return
	}
	sr, err := h.svc.SetPriority(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "requestID"), *req.Priority)
	h.respond(w, r, sr, err)
}

// Queue handles GET /v1/events/{eventID}/queue.
func (h *RequestHandler) Queue(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.GetQueue(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	h.respondList(w, r, list, err)
}

// ReviewQueue handles GET /v1/events/{eventID}/review.
func (h *RequestHandler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.GetReviewQueue(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	h.respondList(w, r, list, err)
}

// TimeBombs handles GET /v1/events/{eventID}/timebombs.
func (h *RequestHandler) TimeBombs(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.GetTimeBombs(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	h.respondList(w, r, list, err)
}

// Stats handles GET /v1/events/{eventID}/stats.
func (h *RequestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetEventStats(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (h *RequestHandler) respond(w http.ResponseWriter, r *http.Request, sr *models.SongRequest, err error) {
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sr)
}

func (h *RequestHandler) respondList(w http.ResponseWriter, r *http.Request, list []*models.SongRequest, err error) {
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []*models.SongRequest{}
	}
	WriteJSON(w, http.StatusOK, list)
}
