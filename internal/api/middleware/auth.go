package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/musudik/dropmybeat-api/internal/api/errors"
	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/pkg/logger"
)

type contextKey string

// PrincipalKey is the context key for the verified caller.
const PrincipalKey contextKey = "principal"

// GetPrincipal returns the caller stored by the auth middleware. Requests without
// a credential carry the anonymous principal.
func GetPrincipal(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(PrincipalKey).(auth.Principal)
	return p
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	if !p.IsAnonymous() {
		ctx = logger.ContextWithUserID(ctx, p.ID)
	}
	return ctx
}

// PrincipalResolver checks a token's principal against current account state.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, p auth.Principal) (auth.Principal, error)
}

// AuthMiddleware verifies bearer tokens and attaches the caller to the request.
type AuthMiddleware struct {
	authService *auth.Service
	resolver    PrincipalResolver
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService *auth.Service, resolver PrincipalResolver, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService: authService,
		resolver:    resolver,
		logger:      logger,
	}
}

// Authenticate rejects requests without a valid credential.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return m.handler(next, true)
}

// OptionalAuth lets anonymous requests through but still rejects invalid credentials.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return m.handler(next, false)
}

func (m *AuthMiddleware) handler(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		token := tokenFromRequest(r)
		if token == "" {
			if required {
				apierrors.WriteErrorWithRequestID(w, apierrors.NewUnauthorizedError("missing authentication"), requestID)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), auth.Principal{})))
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.logger.Debug("JWT validation failed", "error", err, "request_id", requestID)
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token has expired"
			}
			apierrors.WriteErrorWithRequestID(w, apierrors.NewUnauthorizedError(msg), requestID)
			return
		}

		p := claims.Principal()
		if m.resolver != nil {
			p, err = m.resolver.ResolvePrincipal(r.Context(), p)
			if err != nil {
				m.logger.Debug("principal rejected", "error", err, "request_id", requestID)
				apierrors.WriteErrorWithRequestID(w, apierrors.FromError(err), requestID)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// tokenFromRequest reads the bearer token, falling back to the token query parameter
// that browser WebSocket clients use.
func tokenFromRequest(r *http.Request) string {
	if token := auth.ExtractBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}
