package summarizer

import (
	"errors"
	"fmt"
)

// SuggestedModel is proposed when the configured model is not accessible.
const SuggestedModel = "claude-3-haiku-20240307"

// ErrMissingAPIKey is returned by constructors given an empty key.
var ErrMissingAPIKey = errors.New("API key is empty")

// AuthenticationError is returned on HTTP 401.
type AuthenticationError struct {
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf(
		"%d authentication: the x-api-key is invalid or was not sent "+
			"(check ANTHROPIC_API_KEY in .env or the secrets file)",
		e.StatusCode,
	)
}

// AuthorizationError is returned on HTTP 403 and names the model
// the account cannot use.
type AuthorizationError struct {
	StatusCode int
	Model      string
	Suggested  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf(
		"%d access denied to model '%s'. Try '%s' "+
			"or set ANTHROPIC_MODEL to a model available for your account",
		e.StatusCode,
		e.Model,
		e.Suggested,
	)
}

// UpstreamError carries any other non-200 status with the raw body.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("call API: %d - %s", e.StatusCode, e.Body)
}

// TimeoutError means no response arrived within the client timeout
// or before the context deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call API: timeout: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError is a connection-level failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("call API: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is returned when a 200 response does not match the
// expected message schema.
type ParseError struct {
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response: %v (body = %s)", e.Err, e.Body)
}

func (e *ParseError) Unwrap() error { return e.Err }
