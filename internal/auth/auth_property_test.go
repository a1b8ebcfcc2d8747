package auth

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// genUserID generates a valid user ID (non-empty alphanumeric string).
func genUserID() gopter.Gen {
	return gen.Identifier().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 255
	})
}

// genEmail generates a valid email-like string.
func genEmail() gopter.Gen {
	return gopter.CombineGens(
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	).Map(func(vals []interface{}) string {
		return vals[0].(string) + "@" + vals[1].(string) + ".com"
	})
}

// genJWTSecret generates a valid JWT secret (at least 32 bytes).
func genJWTSecret() gopter.Gen {
	return gen.SliceOfN(32, gen.UInt8()).Map(func(bytes []uint8) []byte {
		result := make([]byte, len(bytes))
		for i, b := range bytes {
			result[i] = byte(b)
		}
		return result
	})
}

func genRegisteredRole() gopter.Gen {
	return gen.OneConstOf(models.RoleAdmin, models.RoleManager, models.RoleMember)
}

func TestJWTTokenRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("JWT token round-trip preserves identity and role", prop.ForAll(
		func(userID, email string, role models.Role, secret []byte) bool {
			svc := NewService(&Config{JWTSecret: secret, TokenExpiry: time.Hour}, nil)

			token, err := svc.GenerateToken(userID, email, role)
			if err != nil {
				return false
			}
			claims, err := svc.ValidateToken(token)
			if err != nil {
				return false
			}
			return claims.UserID == userID && claims.Email == email &&
				claims.Role == role && claims.EventID == ""
		},
		genUserID(),
		genEmail(),
		genRegisteredRole(),
		genJWTSecret(),
	))

	properties.Property("guest tokens carry their event", prop.ForAll(
		func(participantID, email, eventID string, secret []byte) bool {
			svc := NewService(&Config{JWTSecret: secret, TokenExpiry: time.Hour}, nil)

			token, err := svc.GenerateGuestToken(participantID, email, eventID)
			if err != nil {
				return false
			}
			claims, err := svc.ValidateToken(token)
			if err != nil {
				return false
			}
			p := claims.Principal()
			return p.ID == participantID && p.IsGuest() && p.EventID == eventID && p.Email == email
		},
		genUserID(),
		genEmail(),
		genUserID(),
		genJWTSecret(),
	))

	properties.TestingRun(t)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewService(&Config{JWTSecret: []byte("an-issuer-secret-of-32-bytes-min!"), TokenExpiry: time.Hour}, nil)
	verifier := NewService(&Config{JWTSecret: []byte("another-secret-of-32-bytes-min!!!"), TokenExpiry: time.Hour}, nil)

	token, err := issuer.GenerateToken("user-1", "dj@example.com", models.RoleManager)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewService(&Config{JWTSecret: []byte("a-secret-that-is-at-least-32-bytes"), TokenExpiry: -time.Minute}, nil)

	token, err := svc.GenerateToken("user-1", "dj@example.com", models.RoleMember)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestGenerateTokenRequiresRegisteredRole(t *testing.T) {
	svc := NewService(&Config{JWTSecret: []byte("a-secret-that-is-at-least-32-bytes"), TokenExpiry: time.Hour}, nil)

	_, err := svc.GenerateToken("user-1", "dj@example.com", models.RoleGuest)
	assert.ErrorIs(t, err, ErrMissingClaims)

	_, err = svc.GenerateToken("", "dj@example.com", models.RoleMember)
	assert.ErrorIs(t, err, ErrMissingClaims)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer   abc.def ", "abc.def"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractBearerToken(tt.header), tt.header)
	}
}
