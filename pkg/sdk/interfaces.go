package sdk

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned before any network I/O when the
	// API key or secret is not configured.
	ErrMissingCredentials = errors.New("collector credentials are missing")
	// ErrInsecureHost is returned when a non-https collector host is used
	// outside local development.
	ErrInsecureHost = errors.New("collector host must use https")
	// ErrUnexpectedPong is returned by Ping when the collector answers
	// with anything other than "pong".
	ErrUnexpectedPong = errors.New("collector did not answer pong")
)

// genericMessage is used when a failed response carries nothing readable.
const genericMessage = "something went wrong"

// CredentialSource provides the current API key pair. credentials.Store
// satisfies it.
type CredentialSource interface {
	Credentials() (key, secret string)
	HasKeys() bool
}

// TransportError wraps a DNS, TLS, timeout or connection failure.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is a non-200 answer from the collector.
type RemoteError struct {
	// Code is the collector's error code, or the HTTP status when the
	// body carries none.
	Code       string
	StatusCode int
	Message    string
	// Data is the parsed body, or the raw text when it is not JSON.
	Data any
	Body []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("collector error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}
