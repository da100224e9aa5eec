package errors

import (
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/metrics"
	"github.com/parlorhq/parlor/internal/observability"
)

// retryAfterSeconds is sent with 429s. The sliding window has no fixed
// reset time, so this is a hint rather than a promise.
const retryAfterSeconds = "60"

var statusByCode = map[string]int{
	CodeInvalidInput:     http.StatusBadRequest,
	"VALIDATION_FAILED":  http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeTimeout:          http.StatusGatewayTimeout,
	CodeGenerationFailed: http.StatusBadGateway,
	CodeExternalService:  http.StatusBadGateway,
	CodeUnavailable:      http.StatusServiceUnavailable,
}

// HTTPStatusFromEnvelope resolves the HTTP status for an envelope. Unknown
// codes are 500.
func HTTPStatusFromEnvelope(env *errors.ErrorEnvelope) int {
	if env == nil {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[env.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError writes err as a JSON error response, logging it and
// counting it. Envelope context, which holds wrapped causes, is logged only.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}
	env := EnsureEnvelope(err)
	if r != nil {
		if id := requestID(r.Context()); id != "" {
			env = env.WithCorrelationID(id)
		}
	}
	if env.CorrelationID == "" {
		env = env.WithCorrelationID("fallback-" + errors.GenerateCorrelationID())
	}
	status := HTTPStatusFromEnvelope(env)

	logEnvelope(env, status)
	metrics.RecordError(env.Code, status)
	if r != nil {
		metrics.RecordErrorByEndpoint(routeLabel(r), env.Code)
	}

	body := HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      env.Code,
		Message:   env.Message,
		RequestID: env.CorrelationID,
	}}
	if len(env.Details) > 0 {
		body.Error.Details = make(map[string]interface{}, len(env.Details))
		for k, v := range env.Details {
			body.Error.Details[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func logEnvelope(env *errors.ErrorEnvelope, status int) {
	logger := observability.Logger()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, 4+len(env.Context))
	fields = append(fields,
		zap.String("error_code", env.Code),
		zap.Int("http_status", status),
		zap.String("request_id", env.CorrelationID),
	)
	if env.Severity != "" {
		fields = append(fields, zap.String("severity", string(env.Severity)))
	}
	for k, v := range env.Context {
		fields = append(fields, zap.Any(k, v))
	}

	switch env.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(env.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(env.Message, fields...)
	default:
		logger.Info(env.Message, fields...)
	}
}

// routeLabel prefers the chi route pattern so user IDs in the path do not
// become metric labels.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
