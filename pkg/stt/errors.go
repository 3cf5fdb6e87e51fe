package stt

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrBadSampleRate is returned for a non-positive sample rate.
	ErrBadSampleRate = errors.New("stt: sample rate must be positive")

	// ErrStreamClosed is returned when sending to a closed stream.
	ErrStreamClosed = errors.New("stt: stream closed")
)

// ConnectionError is returned when the realtime endpoint cannot be reached
// or refuses the session.
type ConnectionError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stt [%s]: connect failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stt [%s]: connect failed: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether the vendor rejected the credentials.
func (e *ConnectionError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// VendorError is an error message sent by the vendor during a session.
type VendorError struct {
	Provider string
	Type     string
	Reason   string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("stt [%s]: %s: %s", e.Provider, e.Type, e.Reason)
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError wraps err with provider context. Nil stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
