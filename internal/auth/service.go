// Package auth provides authentication and authorization services.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/musudik/dropmybeat-api/internal/models"
)

// Common errors returned by the auth service.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMissingClaims    = errors.New("missing required claims")
	ErrInvalidSignature = errors.New("invalid token signature")
)

// Principal is the verified caller of an operation. The zero value is the anonymous principal.
type Principal struct {
	ID    string      `json:"id"`
	Role  models.Role `json:"role"`
	Email string      `json:"email,omitempty"`
	// EventID is set for guests, whose credential is bound to a single event.
	EventID string `json:"event_id,omitempty"`
}

// IsAnonymous reports whether no credential was supplied.
func (p Principal) IsAnonymous() bool {
	return p.ID == ""
}

// IsGuest reports whether the principal is a guest participant.
func (p Principal) IsGuest() bool {
	return !p.IsAnonymous() && p.Role == models.RoleGuest
}

// Claims represents the JWT claims structure.
type Claims struct {
	UserID  string      `json:"user_id"`
	Email   string      `json:"email"`
	Role    models.Role `json:"role"`
	EventID string      `json:"event_id,omitempty"`
	Exp     time.Time   `json:"exp"`
}

// Principal converts validated claims into a Principal.
func (c *Claims) Principal() Principal {
	return Principal{
		ID:      c.UserID,
		Role:    c.Role,
		Email:   c.Email,
		EventID: c.EventID,
	}
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret        []byte
	TokenExpiry      time.Duration
	GuestTokenExpiry time.Duration
}

// Service issues and verifies tokens for registered people and guests.
type Service struct {
	jwtSecret        []byte
	tokenExpiry      time.Duration
	guestTokenExpiry time.Duration
	logger           *slog.Logger
}

// NewService creates a new authentication service.
func NewService(cfg *Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	guestExpiry := cfg.GuestTokenExpiry
	if guestExpiry <= 0 {
		guestExpiry = cfg.TokenExpiry
	}
	return &Service{
		jwtSecret:        cfg.JWTSecret,
		tokenExpiry:      cfg.TokenExpiry,
		guestTokenExpiry: guestExpiry,
		logger:           logger,
	}
}

// GenerateToken creates a JWT for a registered person.
func (s *Service) GenerateToken(userID, email string, role models.Role) (string, error) {
	if userID == "" || !role.IsValid() || role == models.RoleGuest {
		return "", ErrMissingClaims
	}
	return s.sign(jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  string(role),
	}, s.tokenExpiry)
}

// GenerateGuestToken creates a JWT for a guest participant of eventID.
func (s *Service) GenerateGuestToken(participantID, email, eventID string) (string, error) {
	if participantID == "" || eventID == "" {
		return "", ErrMissingClaims
	}
	return s.sign(jwt.MapClaims{
		"sub":   participantID,
		"email": email,
		"role":  string(models.RoleGuest),
		"event": eventID,
	}, s.guestTokenExpiry)
}

func (s *Service) sign(claims jwt.MapClaims, expiry time.Duration) (string, error) {
	now := time.Now()
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["exp"] = now.Add(expiry).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signedToken, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := mapClaims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrMissingClaims
	}
	roleName, _ := mapClaims["role"].(string)
	role := models.Role(roleName)
	if !role.IsValid() {
		return nil, ErrMissingClaims
	}

	email, _ := mapClaims["email"].(string)
	eventID, _ := mapClaims["event"].(string)
	if role == models.RoleGuest && eventID == "" {
		return nil, ErrMissingClaims
	}

	expFloat, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrMissingClaims
	}

	return &Claims{
		UserID:  userID,
		Email:   email,
		Role:    role,
		EventID: eventID,
		Exp:     time.Unix(int64(expFloat), 0),
	}, nil
}

// ExtractBearerToken extracts the token from a Bearer authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
