package services

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const maxErrorBody = 2048

// RemoteError is a non-2xx answer from a provider
type RemoteError struct {
	Provider Provider
	Status   int
	Body     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, truncate(e.Body, 256))
}

// MalformedResponseError is a 2xx answer whose body could not be understood
type MalformedResponseError struct {
	Provider Provider
	RawBody  []byte
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Provider, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// TransportError covers DNS, connection and timeout failures
type TransportError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the provider rejected our credentials or token
type AuthError struct {
	Provider Provider
	Status   int
	Reason   string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: authentication failed (status %d): %s", e.Provider, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Reason)
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsMalformedResponse(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
