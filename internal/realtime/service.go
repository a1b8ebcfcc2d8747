// Package realtime streams an event room's domain events to WebSocket clients.
package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/musudik/dropmybeat-api/internal/events"
)

// ErrSessionClosed is returned when the session was closed from the server side.
var ErrSessionClosed = errors.New("realtime session closed")

// AccessCheck reports whether the client may still watch the room. A non-nil error
// ends the session.
type AccessCheck func() error

// Session is one WebSocket client attached to an event room.
type Session struct {
	ID      string
	EventID string
	UserID  string
	Conn    *websocket.Conn

	sub     *events.Subscriber
	check   AccessCheck
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// Close closes the connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closeCh)

	if err := s.Conn.Close(); err != nil {
		return fmt.Errorf("closing websocket: %w", err)
	}
	return nil
}

// IsClosed returns true if the session is closed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Config holds connection keepalive settings.
type Config struct {
	// WriteWait bounds each write to the client.
	WriteWait time.Duration
	// PongWait is how long the client may stay silent before it is dropped.
	PongWait time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration
	// RecheckPeriod is how often a session's AccessCheck runs.
	RecheckPeriod time.Duration
}

// DefaultConfig returns the default keepalive settings.
func DefaultConfig() *Config {
	return &Config{
		WriteWait:     10 * time.Second,
		PongWait:      60 * time.Second,
		PingPeriod:    50 * time.Second,
		RecheckPeriod: 30 * time.Second,
	}
}

// Service attaches WebSocket sessions to broker rooms.
type Service struct {
	broker *events.Broker
	cfg    Config
	logger *slog.Logger

	sessions   map[string]*Session
	sessionsMu sync.RWMutex
}

// NewService creates a new realtime service.
func NewService(broker *events.Broker, cfg *Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RecheckPeriod <= 0 {
		cfg.RecheckPeriod = DefaultConfig().RecheckPeriod
	}
	return &Service{
		broker:   broker,
		cfg:      *cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Connect subscribes conn to the room of eventID. A non-nil check runs every RecheckPeriod
// and closes the session once it fails.
func (s *Service) Connect(eventID, userID string, conn *websocket.Conn, check AccessCheck) *Session {
	session := &Session{
		ID:      uuid.New().String(),
		EventID: eventID,
		UserID:  userID,
		Conn:    conn,
		sub:     s.broker.Subscribe(eventID),
		check:   check,
		closeCh: make(chan struct{}),
	}

	s.sessionsMu.Lock()
	s.sessions[session.ID] = session
	s.sessionsMu.Unlock()

	s.logger.Info("realtime session opened",
		"session_id", session.ID,
		"event_id", eventID,
		"user_id", userID,
	)
	return session
}

// HandleSession pumps room events to the client until either side closes.
// Clients are not expected to send anything but control frames.
func (s *Service) HandleSession(session *Session) error {
	defer func() {
		s.broker.Unsubscribe(session.sub)
		s.sessionsMu.Lock()
		delete(s.sessions, session.ID)
		s.sessionsMu.Unlock()
		session.Close()
		s.logger.Info("realtime session closed", "session_id", session.ID, "event_id", session.EventID)
	}()

	go s.writeEvents(session)
	return s.readUntilClosed(session)
}

func (s *Service) writeEvents(session *Session) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	var recheck <-chan time.Time
	if session.check != nil {
		t := time.NewTicker(s.cfg.RecheckPeriod)
		defer t.Stop()
		recheck = t.C
	}

	for {
		select {
		case <-session.closeCh:
			return
		case e, ok := <-session.sub.Ch:
			if !ok {
				session.Close()
				return
			}
			data, err := e.Encode()
			if err != nil {
				s.logger.Error("failed to encode event", "type", e.Type, "error", err)
				continue
			}
			_ = session.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := session.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !session.IsClosed() {
					s.logger.Debug("websocket write error", "error", err, "session_id", session.ID)
				}
				session.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteWait)
			if err := session.Conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				session.Close()
				return
			}
		case <-recheck:
			if err := session.check(); err != nil {
				s.logger.Info("realtime access revoked",
					"session_id", session.ID,
					"event_id", session.EventID,
					"user_id", session.UserID,
					"reason", err,
				)
				_ = session.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "access revoked"),
					time.Now().Add(s.cfg.WriteWait))
				session.Close()
				return
			}
		}
	}
}

func (s *Service) readUntilClosed(session *Session) error {
	conn := session.Conn
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if session.IsClosed() {
				return ErrSessionClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading websocket: %w", err)
		}
	}
}

// ActiveSessions returns the number of open sessions.
func (s *Service) ActiveSessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// Stop closes every open session.
func (s *Service) Stop() {
	s.sessionsMu.RLock()
	open := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		open = append(open, session)
	}
	s.sessionsMu.RUnlock()

	for _, session := range open {
		_ = session.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		session.Close()
	}
}
