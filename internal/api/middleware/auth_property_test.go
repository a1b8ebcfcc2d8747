package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	apierrors "github.com/musudik/dropmybeat-api/internal/api/errors"
	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

func newAuthService(expiry time.Duration) *auth.Service {
	return auth.NewService(&auth.Config{
		JWTSecret:        []byte(testSecret),
		TokenExpiry:      expiry,
		GuestTokenExpiry: expiry,
	}, nil)
}

// resolverFunc adapts a function to PrincipalResolver.
type resolverFunc func(ctx context.Context, p auth.Principal) (auth.Principal, error)

func (f resolverFunc) ResolvePrincipal(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	return f(ctx, p)
}

func passThrough(ctx context.Context, p auth.Principal) (auth.Principal, error) { return p, nil }

// echoPrincipal writes the principal found in the request context.
var echoPrincipal = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, GetPrincipal(r.Context()))
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func decodePrincipal(t *testing.T, rr *httptest.ResponseRecorder) auth.Principal {
	t.Helper()
	var p auth.Principal
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	return p
}

func TestPropertyTokenRoundTripsThroughMiddleware(t *testing.T) {
	svc := newAuthService(time.Hour)
	m := NewAuthMiddleware(svc, resolverFunc(passThrough), nil)
	handler := m.Authenticate(echoPrincipal)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("the principal in context is the one the token was issued to", prop.ForAll(
		func(userID string, role models.Role, viaQuery bool) bool {
			token, err := svc.GenerateToken(userID, userID+"@example.com", role)
			if err != nil {
				return false
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if viaQuery {
				req = httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
			} else {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rr := serve(handler, req)
			if rr.Code != http.StatusOK {
				return false
			}
			var p auth.Principal
			if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
				return false
			}
			return p.ID == userID && p.Role == role
		},
		gen.Identifier(),
		gen.OneConstOf(models.RoleAdmin, models.RoleManager, models.RoleMember),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestAuthenticateRequiresCredential(t *testing.T) {
	m := NewAuthMiddleware(newAuthService(time.Hour), nil, nil)
	rr := serve(m.Authenticate(echoPrincipal), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), apierrors.CodeUnauthorized)
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	m := NewAuthMiddleware(newAuthService(time.Hour), nil, nil)
	rr := serve(m.OptionalAuth(echoPrincipal), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodePrincipal(t, rr).IsAnonymous())
}

func TestOptionalAuthRejectsBadToken(t *testing.T) {
	m := NewAuthMiddleware(newAuthService(time.Hour), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := serve(m.OptionalAuth(echoPrincipal), req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExpiredTokenMessage(t *testing.T) {
	svc := newAuthService(-time.Minute)
	token, err := svc.GenerateToken("user-1", "user@example.com", models.RoleMember)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := serve(NewAuthMiddleware(svc, nil, nil).Authenticate(echoPrincipal), req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "token has expired")
}

func TestResolverRejectionIsUnauthorized(t *testing.T) {
	svc := newAuthService(time.Hour)
	token, err := svc.GenerateToken("user-1", "user@example.com", models.RoleMember)
	require.NoError(t, err)

	deactivated := resolverFunc(func(context.Context, auth.Principal) (auth.Principal, error) {
		return auth.Principal{}, fmt.Errorf("%w: account is deactivated", requests.ErrUnauthorized)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := serve(NewAuthMiddleware(svc, deactivated, nil).Authenticate(echoPrincipal), req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "account is deactivated")
}

func TestResolverRefreshesRole(t *testing.T) {
	svc := newAuthService(time.Hour)
	token, err := svc.GenerateToken("user-1", "user@example.com", models.RoleMember)
	require.NoError(t, err)

	promoted := resolverFunc(func(_ context.Context, p auth.Principal) (auth.Principal, error) {
		p.Role = models.RoleManager
		return p, nil
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := serve(NewAuthMiddleware(svc, promoted, nil).Authenticate(echoPrincipal), req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.RoleManager, decodePrincipal(t, rr).Role)
}

func TestRecoveryWritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Recovery(log))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body apierrors.APIError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, apierrors.CodeInternalError, body.Code)
	assert.NotEmpty(t, body.RequestID)
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "stack_trace")
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(RequestLogger(log))
	r.Get("/v1/events/{eventID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/v1/events/event-42", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusNoContent), entry["status"])
	assert.Equal(t, "/v1/events/{eventID}", entry["route"])
	assert.Equal(t, "event-42", entry["event_id"])
}
