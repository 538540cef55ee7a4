package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tilesmart/tiles-admin/internal/backend"
)

// ErrBackendUnavailable is returned when the backend could not answer a login.
var ErrBackendUnavailable = errors.New("auth: backend unavailable")

// Service wraps authentication rules. The dashboard keeps no accounts of its
// own; the backend decides who may sign in.
type Service struct {
	auth     Authenticator
	bindings BindingStore
}

// NewService constructs a new Service.
func NewService(auth Authenticator, bindings BindingStore) *Service {
	return &Service{auth: auth, bindings: bindings}
}

// Authenticate validates username/password credentials against the backend.
func (s *Service) Authenticate(ctx context.Context, username, password string) (backend.Credentials, error) {
	creds, err := s.auth.Login(ctx, username, password)
	if err == nil {
		return creds, nil
	}
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return backend.Credentials{}, ErrInvalidCredentials
	case errors.As(err, &statusErr) && statusErr.Code < http.StatusInternalServerError:
		return backend.Credentials{}, ErrInvalidCredentials
	default:
		return backend.Credentials{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// EndSession forgets every report binding of viewer.
func (s *Service) EndSession(viewer string) {
	if s.bindings != nil && viewer != "" {
		s.bindings.Forget(viewer)
	}
}
