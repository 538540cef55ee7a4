package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrTransport wraps network level failures.
	ErrTransport = errors.New("backend: transport failure")
	// ErrDecode indicates the response body was not the expected JSON.
	ErrDecode = errors.New("backend: decode response")
)

const errorBodyLimit = 4 << 10

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s %s returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("backend: %s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Is lets errors.Is match ErrUnauthorized for 401 and 403 responses.
func (e *StatusError) Is(target error) bool {
	if target == ErrUnauthorized {
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}
