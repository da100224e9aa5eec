// Package errors maps relay failures onto gofulmen error envelopes and
// writes them as JSON HTTP responses.
package errors

import (
	"context"
	stderrors "errors"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/parlorhq/parlor/internal/ailink"
	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/server/middleware"
)

// Envelope codes used by the relay API.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeDatabase         = "DATABASE_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnavailable, message)
}

// WrapInvalidInput wraps err as a 400 envelope carrying the request's correlation ID.
func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

// WrapDatabaseError wraps a store failure.
func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

// WrapUnavailable wraps a failed call to a dependency of the server.
func WrapUnavailable(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeUnavailable, err, message)
}

// WrapInternal wraps an unexpected failure.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

// relayMapping is checked in order; the first matching rule wins. Client
// faults are low severity, everything else high.
var relayMapping = []struct {
	match   func(error) bool
	code    string
	message string
	keepErr bool
}{
	{is(core.ErrInvalidMessage), CodeInvalidInput, "message must not be empty", true},
	{is(core.ErrRateLimited), CodeRateLimited, "rate limit exceeded, try again later", false},
	{func(err error) bool {
		return stderrors.Is(err, context.DeadlineExceeded) || ailink.CodeOf(err) == ailink.CodeProviderTimeout
	}, CodeTimeout, "reply generation timed out", true},
	{is(core.ErrGenerationFailed), CodeGenerationFailed, "reply could not be generated", true},
	{is(core.ErrProvider), CodeExternalService, "generation backend failed", true},
	{is(core.ErrPersistence), CodeDatabase, "conversation state unavailable", true},
}

func is(target error) func(error) bool {
	return func(err error) bool { return stderrors.Is(err, target) }
}

// FromRelayError converts an error returned by the relay engine into an
// envelope. The cause goes into the envelope context, which is logged but
// never written to the response.
func FromRelayError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}
	env := wrap(ctx, CodeInternal, err, "unexpected error")
	for _, rule := range relayMapping {
		if !rule.match(err) {
			continue
		}
		cause := err
		if !rule.keepErr {
			cause = nil
		}
		env = wrap(ctx, rule.code, cause, rule.message)
		break
	}

	severity := errors.SeverityHigh
	if env.Code == CodeInvalidInput || env.Code == CodeRateLimited {
		severity = errors.SeverityLow
	}
	env, _ = env.WithSeverity(severity)
	return env
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	var (
		env      *errors.ErrorEnvelope
		relayErr *core.Error
	)
	switch {
	case err == nil:
		env = errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
	case stderrors.As(err, &env) && env != nil:
	case stderrors.As(err, &relayErr):
		env = FromRelayError(context.Background(), err)
	default:
		env = withCause(errors.NewErrorEnvelope(CodeInternal, "unexpected error"), err)
		env, _ = env.WithSeverity(errors.SeverityHigh)
	}
	return env
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := requestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	env := errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id)
	return withCause(env, err)
}

func withCause(env *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if env == nil || err == nil {
		return env
	}
	if updated, ctxErr := env.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); ctxErr == nil {
		return updated
	}
	return env
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}
