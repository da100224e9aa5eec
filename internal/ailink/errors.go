package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parlorhq/parlor/internal/ailink/driver"
)

// Stable error codes for generation failures.
const (
	CodeProviderTimeout     = "AILINK_PROVIDER_TIMEOUT"
	CodeProviderAuth        = "AILINK_PROVIDER_AUTH"
	CodeProviderRateLimit   = "AILINK_PROVIDER_RATE_LIMIT"
	CodeProviderUnavailable = "AILINK_PROVIDER_UNAVAILABLE"
	CodeProviderBadRequest  = "AILINK_PROVIDER_BAD_REQUEST"
	CodeProviderError       = "AILINK_PROVIDER_ERROR"
	CodeEmptyResponse       = "AILINK_EMPTY_RESPONSE"
	CodeNotConfigured       = "AILINK_NOT_CONFIGURED"
)

// Error is a generation failure with a stable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "ailink error"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CodeOf returns the ailink code carried by err, or "".
func CodeOf(err error) string {
	var aerr *Error
	if errors.As(err, &aerr) && aerr != nil {
		return aerr.Code
	}
	return ""
}

func mapProviderError(err error, rawMax int) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeProviderTimeout, Message: "provider request timed out", Err: err}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := safeOneLine(string(truncateBytes([]byte(perr.Message), rawMax)))
		switch {
		case status == 401 || status == 403:
			return &Error{Code: CodeProviderAuth, Message: "provider authentication failed", Details: details, Err: err}
		case status == 429:
			return &Error{Code: CodeProviderRateLimit, Message: "provider rate limited", Details: details, Err: err}
		case status >= 500 && status <= 599:
			return &Error{Code: CodeProviderUnavailable, Message: "provider unavailable", Details: details, Err: err}
		case status >= 400 && status <= 499:
			return &Error{Code: CodeProviderBadRequest, Message: "provider rejected request", Details: details, Err: err}
		default:
			return &Error{Code: CodeProviderError, Message: "provider request failed", Details: details, Err: err}
		}
	}

	return &Error{Code: CodeProviderError, Message: "provider request failed", Details: err.Error(), Err: err}
}

func truncateBytes(input []byte, max int) []byte {
	if max <= 0 {
		return nil
	}
	if len(input) <= max {
		return input
	}
	out := make([]byte, 0, max)
	out = append(out, input[:max]...)
	return out
}

func safeOneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
