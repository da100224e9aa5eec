package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/ailink"
	"github.com/parlorhq/parlor/internal/core"
)

func TestFromRelayErrorStatus(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"invalid", core.InvalidMessage("u1", "empty"), CodeInvalidInput, http.StatusBadRequest},
		{"rate limited", core.RateLimited("u1"), CodeRateLimited, http.StatusTooManyRequests},
		{"generation", core.GenerationFailed("u1", fmt.Errorf("boom")), CodeGenerationFailed, http.StatusBadGateway},
		{"provider", core.ProviderFailure("u1", fmt.Errorf("boom")), CodeExternalService, http.StatusBadGateway},
		{"timeout", core.GenerationFailed("u1", &ailink.Error{Code: ailink.CodeProviderTimeout, Message: "slow"}), CodeTimeout, http.StatusGatewayTimeout},
		{"persistence", core.PersistenceFailure("u1", fmt.Errorf("disk")), CodeDatabase, http.StatusInternalServerError},
		{"other", fmt.Errorf("mystery"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := FromRelayError(ctx, tc.err)
			require.NotNil(t, env)
			require.Equal(t, tc.code, env.Code)
			require.Equal(t, tc.status, HTTPStatusFromEnvelope(env))
			require.NotEmpty(t, env.CorrelationID)
		})
	}

	require.Nil(t, FromRelayError(ctx, nil))
}

func TestEnsureEnvelopeRecognizesRelayErrors(t *testing.T) {
	env := EnsureEnvelope(core.RateLimited("u1"))
	require.Equal(t, CodeRateLimited, env.Code)

	env = EnsureEnvelope(fmt.Errorf("plain"))
	require.Equal(t, CodeInternal, env.Code)

	env = EnsureEnvelope(nil)
	require.Equal(t, CodeInternal, env.Code)
}

func TestRespondWithErrorHidesWrappedCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)

	RespondWithError(rec, req, core.GenerationFailed("u1", fmt.Errorf("api key sk-secret rejected")))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "sk-secret")

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeGenerationFailed, body.Error.Code)
	require.NotEmpty(t, body.Error.RequestID)
}

func TestRespondWithErrorRateLimitedSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)

	RespondWithError(rec, req, core.RateLimited("u1"))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}
