package transport

import (
	"errors"
	"fmt"
)

// AuthError indicates that the gateway rejected the credentials (HTTP 401)
// on a specific call.
type AuthError struct {
	Method string
	Path   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized (401) on %s %s", e.Method, e.Path)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// RemoteError is any gateway response that is neither 200 nor 401.
type RemoteError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf(
			"gateway error (%d) on %s %s: %s",
			e.Status, e.Method, e.Path, e.Message,
		)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.Status, e.Method, e.Path)
}

// IsRemoteError reports whether err (or any error in its chain) is a
// RemoteError and returns it.
func IsRemoteError(err error) (*RemoteError, bool) {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr, true
	}
	return nil, false
}
