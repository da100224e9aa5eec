package core

import (
	"errors"
	"fmt"
)

// Error kinds raised by the relay engine. Match them with errors.Is.
var (
	// ErrRateLimited means the turn was dropped by the sliding window limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrProvider wraps a failure of the text-generation backend.
	ErrProvider = errors.New("provider error")
	// ErrGenerationFailed is returned to callers when the reply could not be generated.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrPersistence means conversation state could not be read or written.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidMessage rejects turns that are empty after trimming.
	ErrInvalidMessage = errors.New("invalid message")
)

// Error carries an error kind together with the user and underlying cause.
type Error struct {
	Kind   error
	UserID string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "relay error"
	}
	kind := "relay error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	switch {
	case e.UserID != "" && e.Err != nil:
		return fmt.Sprintf("%s for user %s: %v", kind, e.UserID, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", kind, e.Err)
	case e.UserID != "":
		return fmt.Sprintf("%s for user %s", kind, e.UserID)
	default:
		return kind
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// RateLimited builds the error returned for a dropped turn.
func RateLimited(userID string) error {
	return &Error{Kind: ErrRateLimited, UserID: userID}
}

// ProviderFailure wraps a generation backend error.
func ProviderFailure(userID string, err error) error {
	return &Error{Kind: ErrProvider, UserID: userID, Err: err}
}

// GenerationFailed wraps a provider failure on the reply path.
func GenerationFailed(userID string, err error) error {
	return &Error{Kind: ErrGenerationFailed, UserID: userID, Err: err}
}

// InvalidMessage builds the error for an empty or malformed turn.
func InvalidMessage(userID string, reason string) error {
	return &Error{Kind: ErrInvalidMessage, UserID: userID, Err: errors.New(reason)}
}

// PersistenceFailure wraps a store error.
func PersistenceFailure(userID string, err error) error {
	return &Error{Kind: ErrPersistence, UserID: userID, Err: err}
}
