package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilesmart/tiles-admin/internal/auth"
	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/shared"
	"github.com/tilesmart/tiles-admin/internal/view"
	_ "github.com/tilesmart/tiles-admin/testing"
)

type stubAuthenticator struct {
	creds backend.Credentials
	err   error
	calls int
}

func (s *stubAuthenticator) Login(_ context.Context, username, password string) (backend.Credentials, error) {
	s.calls++
	return s.creds, s.err
}

type recordingBindings struct{ forgotten []string }

func (r *recordingBindings) Forget(viewer string) { r.forgotten = append(r.forgotten, viewer) }

type fixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	bindings *recordingBindings
}

// newFixture mounts the auth routes behind a minimal session middleware.
func newFixture(t *testing.T, authn auth.Authenticator) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "sessionsecret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	bindings := &recordingBindings{}
	handler := auth.NewHandler(nil, auth.NewService(authn, bindings), templates, sessions, csrf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
			require.NoError(t, sessions.Commit(req.Context(), w, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &fixture{router: r, sessions: sessions, csrf: csrf, bindings: bindings}
}

func (f *fixture) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatal("session cookie missing")
	return nil
}

func postLogin(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, &stubAuthenticator{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login?next=/reports/stock", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `value="/reports/stock"`)
	assert.Contains(t, body, `name="csrf_token"`)
}

func TestLoginValidation(t *testing.T) {
	authn := &stubAuthenticator{}
	f := newFixture(t, authn)
	rec := f.do(postLogin(url.Values{"username": {" "}, "password": {"x"}}), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter your username and password.")
	assert.Zero(t, authn.calls)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, &stubAuthenticator{err: &backend.StatusError{Code: http.StatusUnauthorized}})
	rec := f.do(postLogin(url.Values{"username": {"owner"}, "password": {"wrong"}}), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password.")
	assert.Contains(t, rec.Body.String(), `value="owner"`)
}

func TestLoginBackendDown(t *testing.T) {
	f := newFixture(t, &stubAuthenticator{err: errors.Join(backend.ErrTransport, errors.New("dial tcp"))})
	rec := f.do(postLogin(url.Values{"username": {"owner"}, "password": {"pw"}}), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be reached")
}

func TestLoginStoresCredentialsAndLogoutForgets(t *testing.T) {
	f := newFixture(t, &stubAuthenticator{creds: backend.Credentials{Token: "opaque"}})

	first := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil)
	anonymous := sessionCookie(t, first)

	rec := f.do(postLogin(url.Values{"username": {"owner"}, "password": {"pw"}, "next": {"/reports/stock?from_date=2024-01-01"}}), anonymous)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/reports/stock?from_date=2024-01-01", rec.Header().Get("Location"))
	signedIn := sessionCookie(t, rec)
	assert.NotEqual(t, anonymous.Value, signedIn.Value, "session id renewed on sign in")
	assert.Equal(t, []string{anonymous.Value}, f.bindings.forgotten)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.AddCookie(signedIn)
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "opaque", sess.Credentials().Token)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil), signedIn)
	assert.Equal(t, http.StatusSeeOther, rec.Code, "signed in users skip the form")

	rec = f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), signedIn)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
	assert.Equal(t, []string{anonymous.Value, signedIn.Value}, f.bindings.forgotten)

	after, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, after.Credentials().Empty())
}

func TestLoginRejectsOffsiteRedirect(t *testing.T) {
	f := newFixture(t, &stubAuthenticator{creds: backend.Credentials{Token: "opaque"}})
	rec := f.do(postLogin(url.Values{"username": {"owner"}, "password": {"pw"}, "next": {"//evil.example"}}), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}
