package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/musudik/dropmybeat-api/internal/api/middleware"
	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/realtime"
	"github.com/musudik/dropmybeat-api/internal/requests"
)

// StreamHandler upgrades viewers of an event to a WebSocket stream of its room.
type StreamHandler struct {
	svc      *requests.Service
	realtime *realtime.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates a new stream handler. Origin checks are left to the CORS
// configuration of the router.
func NewStreamHandler(svc *requests.Service, rt *realtime.Service, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		svc:      svc,
		realtime: rt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /v1/events/{eventID}/ws.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	eventID := chi.URLParam(r, "eventID")

	// Viewing rights are checked before the upgrade so failures get a normal error response.
	if _, err := h.svc.GetEvent(r.Context(), p, eventID); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err, "event_id", eventID)
		return
	}

	session := h.realtime.Connect(eventID, p.ID, conn, h.accessCheck(r.Context(), p, eventID))
	if err := h.realtime.HandleSession(session); err != nil {
		h.logger.Debug("realtime session ended", "error", err, "session_id", session.ID)
	}
}

// accessCheck re-resolves p and repeats the viewing check. Store failures keep the
// session open; only a denial ends it.
func (h *StreamHandler) accessCheck(ctx context.Context, p auth.Principal, eventID string) realtime.AccessCheck {
	return func() error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		current, err := h.svc.ResolvePrincipal(ctx, p)
		if err == nil {
			_, err = h.svc.GetEvent(ctx, current, eventID)
		}
		switch {
		case err == nil:
			return nil
		case isDenial(err):
			return err
		default:
			h.logger.Warn("realtime access check failed", "error", err, "event_id", eventID)
			return nil
		}
	}
}

func isDenial(err error) bool {
	return errors.Is(err, requests.ErrUnauthorized) ||
		errors.Is(err, requests.ErrForbidden) ||
		errors.Is(err, requests.ErrNotFound)
}
