package shared

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tilesmart/tiles-admin/internal/platform/httpx"
)

// SessionExpiredMessage is flashed when the backend stops accepting a token.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// RequireCredentials rejects requests whose session holds no usable backend
// token. Browsers are sent to the login page; JSON clients get a 401.
func RequireCredentials(logger *slog.Logger, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			creds := sess.Credentials()
			if !creds.Empty() && !creds.Expired(now()) {
				next.ServeHTTP(w, r)
				return
			}
			if sess != nil && !creds.Empty() {
				logger.Info("backend token expired", slog.String("subject", creds.Subject))
				sess.ClearCredentials()
				sess.AddFlash(FlashMessage{Kind: "info", Message: SessionExpiredMessage})
			}
			SignInRedirect(w, r)
		})
	}
}

// SignInRedirect answers a request that needs a fresh sign-in.
func SignInRedirect(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	next := r.URL.Path
	if r.Method == http.MethodGet && r.URL.RawQuery != "" {
		next += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, "/auth/login?next="+url.QueryEscape(next), http.StatusSeeOther)
}

// WantsJSON reports whether the client asked for a JSON answer.
func WantsJSON(r *http.Request) bool {
	return strings.HasSuffix(r.URL.Path, ".json") || strings.Contains(r.Header.Get("Accept"), "application/json")
}
