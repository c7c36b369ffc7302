package chromegcm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrInvalidArgument reports caller misuse detected before any I/O:
	// an unsupported credential type, a bad message option or a nil message.
	ErrInvalidArgument = errors.New("chromegcm: invalid argument")

	// ErrBadRequest is returned when the token endpoint rejects the
	// refresh-token exchange.
	ErrBadRequest = errors.New("chromegcm: invalid auth info")

	// ErrAuthentication is returned when the push endpoint rejects the
	// bearer token. It aborts the whole Send call.
	ErrAuthentication = errors.New("chromegcm: invalid credentials")

	// ErrUnexpected matches every *UnexpectedError.
	ErrUnexpected = errors.New("chromegcm: unexpected error")
)

// UnexpectedError wraps a failure to interpret the token endpoint response.
type UnexpectedError struct {
	Cause error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnexpected, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *UnexpectedError) Unwrap() []error {
	return []error{ErrUnexpected, e.Cause}
}

// APIError represents a non-success HTTP response from a Google endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
	Method     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// newAPIError drains resp.Body into an APIError. The body must not have been
// consumed yet.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	e := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
	if resp.Request != nil {
		e.URL = resp.Request.URL.String()
		e.Method = resp.Request.Method
	}
	return e
}
