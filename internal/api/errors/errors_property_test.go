package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genErrorCode() gopter.Gen {
	return gen.OneConstOf(
		CodeValidationError,
		CodeUnauthorized,
		CodeForbidden,
		CodeNotFound,
		CodeConflict,
		CodeInvalidTransition,
		CodeDuplicateRequest,
		CodeLimitExceeded,
		CodeInternalError,
	)
}

func TestPropertyErrorResponseShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("error body carries code, message and request id", prop.ForAll(
		func(code, msg, requestID string) bool {
			rr := httptest.NewRecorder()
			WriteErrorWithRequestID(rr, New(code, msg), requestID)

			if rr.Header().Get("Content-Type") != "application/json" {
				return false
			}
			var body map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				return false
			}
			return body["code"] == code && body["message"] == msg && body["request_id"] == requestID &&
				rr.Code == New(code, msg).HTTPStatusCode()
		},
		genErrorCode(),
		gen.AlphaString(),
		gen.RegexMatch("[a-f0-9]{8}-[a-f0-9]{4}"),
	))

	properties.TestingRun(t)
}

func TestFromErrorMapsEveryKind(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{requests.ErrValidation, CodeValidationError, http.StatusBadRequest},
		{requests.ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
		{requests.ErrForbidden, CodeForbidden, http.StatusForbidden},
		{requests.ErrNotFound, CodeNotFound, http.StatusNotFound},
		{requests.ErrConflict, CodeConflict, http.StatusConflict},
		{requests.ErrInvalidTransition, CodeInvalidTransition, http.StatusConflict},
		{requests.ErrDuplicateRequest, CodeDuplicateRequest, http.StatusConflict},
		{requests.ErrLimitExceeded, CodeLimitExceeded, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			wrapped := fmt.Errorf("%w: some detail", tc.err)
			apiErr := FromError(wrapped)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.status, apiErr.HTTPStatusCode())
			assert.Equal(t, "some detail", apiErr.Message)
		})
	}
}

func TestFromErrorHidesInternalErrors(t *testing.T) {
	apiErr := FromError(stderrors.New("pq: connection refused at 10.0.0.3"))
	assert.Equal(t, CodeInternalError, apiErr.Code)
	assert.NotContains(t, apiErr.Message, "10.0.0.3")
	assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatusCode())
}

func TestFromErrorKeepsAPIErrors(t *testing.T) {
	original := NewValidationError("bad json")
	assert.Same(t, original, FromError(fmt.Errorf("decoding: %w", original)))
}

func TestValidationErrors(t *testing.T) {
	var v ValidationErrors
	assert.False(t, v.HasErrors())
	v.Add("title", "title is required")
	v.Add("artist", "artist is required")
	require.True(t, v.HasErrors())

	apiErr := v.ToAPIError()
	assert.Equal(t, CodeValidationError, apiErr.Code)
	assert.Equal(t, "title is required (and 1 more errors)", apiErr.Message)
	assert.Len(t, apiErr.Details["fields"], 2)
}

func TestErrorLogEntry(t *testing.T) {
	entry := NewErrorLogEntry("req-1", CodeInternalError, "boom")
	assert.NotEmpty(t, entry.StackTrace)
	attrs := entry.ToSlogAttrs()
	assert.Contains(t, attrs, "req-1")
	assert.Contains(t, attrs, "boom")
}
