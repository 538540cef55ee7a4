package auth

import (
	"context"
	"errors"

	"github.com/tilesmart/tiles-admin/internal/backend"
)

// ErrInvalidCredentials is returned when the backend turns the login down.
var ErrInvalidCredentials = errors.New("auth: invalid username or password")

// Authenticator exchanges a username and password for backend credentials.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (backend.Credentials, error)
}

// BindingStore drops the report state held for a browser session.
type BindingStore interface {
	Forget(viewer string)
}
