package saures

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the vendor rejects the credentials or
	// no session could be established.
	ErrAuthentication = errors.New("saures authentication failed")
	// ErrTransport wraps connection level failures.
	ErrTransport = errors.New("saures transport error")
	// ErrHTTPStatus is matched by StatusError.
	ErrHTTPStatus = errors.New("saures unexpected http status")
	// ErrMalformedResponse is returned when a response doesn't have the
	// expected shape.
	ErrMalformedResponse = errors.New("saures malformed response")
)

// APIError is a response that came back with status "bad".
type APIError struct {
	Msg string
}

func (e APIError) Error() string {
	if e.Msg == "" {
		return "saures api error: unknown error"
	}
	return fmt.Sprintf("saures api error: %s", e.Msg)
}

// StatusError is a non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("saures http %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}
