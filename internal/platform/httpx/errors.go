package httpx

import (
	"errors"
	"net/http"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/query"
)

// StatusFor maps an error to the HTTP status it should be answered with.
// Anything that went wrong talking to the backend is a bad gateway.
func StatusFor(err error) int {
	var statusErr *backend.StatusError
	switch {
	case backend.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, query.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrNoCredentials), errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrTransport), errors.Is(err, backend.ErrDecode), errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var titles = map[int]string{
	http.StatusNotFound:     "Not Found",
	http.StatusBadRequest:   "Invalid parameters",
	http.StatusUnauthorized: "Unauthorized",
	http.StatusBadGateway:   "Backend Error",
}

// RespondError writes err as a problem document. Only validation details
// reach the client; backend and internal failures stay in the logs.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	title, ok := titles[status]
	if !ok {
		title = "Internal Error"
	}
	detail := ""
	switch status {
	case http.StatusBadRequest:
		detail = err.Error()
	case http.StatusUnauthorized:
		detail = "sign in required"
	}
	Problem(w, status, title, detail)
}
