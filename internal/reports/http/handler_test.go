package reportshttp_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/export"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/reports"
	reportshttp "github.com/tilesmart/tiles-admin/internal/reports/http"
	"github.com/tilesmart/tiles-admin/internal/shared"
	"github.com/tilesmart/tiles-admin/internal/view"
	"github.com/tilesmart/tiles-admin/jobs"
	_ "github.com/tilesmart/tiles-admin/testing"
)

const stockQuery = "from_date=2024-04-01&to_date=2024-04-17"

type recordingEnqueuer struct {
	payloads []jobs.ExportPDFPayload
}

func (e *recordingEnqueuer) EnqueueExportPDF(_ context.Context, payload jobs.ExportPDFPayload) (*asynq.TaskInfo, error) {
	e.payloads = append(e.payloads, payload)
	return &asynq.TaskInfo{ID: payload.JobID, Queue: jobs.QueueExports}, nil
}

type fixture struct {
	router       http.Handler
	sessions     *shared.SessionManager
	store        *export.Store
	enqueuer     *recordingEnqueuer
	failTB       atomic.Bool
	backendCalls atomic.Int32
}

func newFixture(t *testing.T, asyncRows int) *fixture {
	t.Helper()
	f := &fixture{enqueuer: &recordingEnqueuer{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.backendCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/web-fetch-stock-report":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"stocks":[
				{"product_type":"Granite Black","openpurch":100,"closesale":30,"purch":50,"sale":20},
				{"product_type":"Tiles Ivory","openpurch":40,"closesale":10,"purch":0,"sale":5},
				{"product_type":"Granite Red","openpurch":10,"closesale":0,"purch":5,"sale":0}
			]}`))
		case "/api/web-fetch-trialBalance-report":
			if f.failTB.Load() {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"payment":[{"payment_about":"Cash","balance":1500}]}`))
		case "/api/web-download-stock-report":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("product,close\nGranite Black,100\n"))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2024, 4, 17, 9, 0, 0, 0, time.UTC) }
	catalog := reports.NewCatalog(client, query.RegistryConfig{Now: now}, reports.Layouts{})
	templates, err := view.NewEngine()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f.sessions = shared.NewSessionManager(rdb, "test_session", "sessionsecret", time.Hour, false)
	f.store = export.NewStore(rdb, time.Hour)

	handler, err := reportshttp.NewHandler(reportshttp.Config{
		Catalog:    catalog,
		Templates:  templates,
		CSRF:       shared.NewCSRFManager("csrfsecret"),
		PDF:        export.NativePDF{},
		Downloader: client,
		Queue:      export.NewQueue(f.store, f.enqueuer),
		Store:      f.store,
		AsyncRows:  asyncRows,
		Now:        now,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := f.sessions.Load(req.Context(), req)
			require.NoError(t, err)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
			require.NoError(t, f.sessions.Commit(req.Context(), w, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireCredentials(slogDiscard(), now))
		handler.MountRoutes(r)
	})
	f.router = r
	return f
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signIn stores token in a fresh session and returns its cookie.
func (f *fixture) signIn(t *testing.T, token string) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	sess, err := f.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetCredentials(backend.Credentials{Token: token})
	rec := httptest.NewRecorder()
	require.NoError(t, f.sessions.Commit(ctx, rec, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatal("session cookie missing")
	return nil
}

func (f *fixture) get(cookie *http.Cookie, target string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, target, nil), cookie)
}

func (f *fixture) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHomeListsReports(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.get(f.signIn(t, "token"), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Stock Report")
	assert.Contains(t, body, `href="/reports/stock"`)
	assert.Contains(t, body, "Trial Balance")
}

func TestSignedOutRedirectsToLogin(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.get(nil, "/reports/stock?"+stockQuery)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/login?next=%2Freports%2Fstock"))

	rec = f.get(nil, "/reports/stock.json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReportScreen(t *testing.T) {
	f := newFixture(t, 0)
	cookie := f.signIn(t, "token")
	rec := f.get(cookie, "/reports/stock?submit=1&"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Granite Black")
	assert.Contains(t, body, "/reports/stock/pdf?from_date=2024-04-01")
	assert.Contains(t, body, "/reports/stock/csv?from_date=2024-04-01")
	assert.NotContains(t, body, "submit=1")

	rec = f.get(cookie, "/reports/stock?submit=1&"+stockQuery)
	assert.Contains(t, rec.Body.String(), query.NoticeSameParams)

	rec = f.get(cookie, "/reports/ledger")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportScreenRejectsBadParams(t *testing.T) {
	f := newFixture(t, 0)
	cookie := f.signIn(t, "token")
	calls := f.backendCalls.Load()

	rec := f.get(cookie, "/reports/stock?submit=1&from_date=yesterday&to_date=2024-04-17")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "from_date must be a date")
	assert.Equal(t, calls, f.backendCalls.Load(), "no fetch for invalid params")

	rec = f.get(cookie, "/reports/purchase")
	assert.Equal(t, http.StatusOK, rec.Code, "an empty id form is not an error")
	assert.NotContains(t, rec.Body.String(), "must be a positive number")
}

func TestReportJSON(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.get(f.signIn(t, "token"), "/reports/trial-balance.json?"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		Report string `json:"report"`
		Status string `json:"status"`
		Tables []struct {
			Rows [][]struct {
				Text string `json:"text"`
			} `json:"rows"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "trial-balance", doc.Report)
	assert.Equal(t, "success", doc.Status)
	require.Len(t, doc.Tables, 1)
	assert.Equal(t, "Cash", doc.Tables[0].Rows[0][0].Text)
}

func TestRejectedTokenSignsOut(t *testing.T) {
	f := newFixture(t, 0)
	cookie := f.signIn(t, "stale")
	rec := f.get(cookie, "/reports/stock?submit=1&"+stockQuery)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/login"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, sess.Credentials().Empty())
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.SessionExpiredMessage, flash.Message)
}

func TestRetryAfterFailure(t *testing.T) {
	f := newFixture(t, 0)
	cookie := f.signIn(t, "token")
	f.failTB.Store(true)

	rec := f.get(cookie, "/reports/trial-balance?submit=1&"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "status 500")
	assert.Contains(t, body, `action="/reports/trial-balance/retry?from_date=2024-04-01&amp;to_date=2024-04-17"`)

	f.failTB.Store(false)
	rec = f.do(httptest.NewRequest(http.MethodPost, "/reports/trial-balance/retry?"+stockQuery, nil), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/reports/trial-balance?"+stockQuery, rec.Header().Get("Location"))

	rec = f.get(cookie, "/reports/trial-balance?"+stockQuery)
	assert.Contains(t, rec.Body.String(), "Cash")
	assert.NotContains(t, rec.Body.String(), "status 500")
}

func TestPDFInline(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.get(f.signIn(t, "token"), "/reports/stock/pdf?"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=stock_2024-04-01_2024-04-17.pdf", rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestPDFLargeReportIsQueued(t *testing.T) {
	f := newFixture(t, 2)
	cookie := f.signIn(t, "token")
	rec := f.get(cookie, "/reports/stock/pdf?"+stockQuery)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/exports/"))
	require.Len(t, f.enqueuer.payloads, 1)
	payload := f.enqueuer.payloads[0]
	assert.Equal(t, "/exports/"+payload.JobID, location)
	assert.Equal(t, 3, payload.Document.RowCount())

	rec = f.get(cookie, location)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "being generated")

	rec = f.get(f.signIn(t, "token"), location)
	assert.Equal(t, http.StatusNotFound, rec.Code, "jobs are private to their session")

	rec = f.get(cookie, location+"/download")
	assert.Equal(t, http.StatusSeeOther, rec.Code, "not ready yet")

	_, err := f.store.Complete(context.Background(), payload.JobID, []byte("%PDF-1.3 test"))
	require.NoError(t, err)
	rec = f.get(cookie, location+"/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3 test", rec.Body.String())
}

func TestXLSXDownload(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.get(f.signIn(t, "token"), "/reports/stock/xlsx?"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "stock_2024-04-01_2024-04-17.xlsx")
}

func TestCSVDownload(t *testing.T) {
	f := newFixture(t, 0)
	cookie := f.signIn(t, "token")
	rec := f.get(cookie, "/reports/stock/csv?"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=stock.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "product,close\nGranite Black,100\n", rec.Body.String())

	rec = f.get(cookie, "/reports/purchase-granite/csv?"+stockQuery)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCSVFailureFlashesAndReturns(t *testing.T) {
	f := newFixture(t, 0)
	cookie := f.signIn(t, "token")
	rec := f.get(cookie, "/reports/trial-balance/csv?"+stockQuery)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/reports/trial-balance?"+stockQuery, rec.Header().Get("Location"))

	rec = f.get(cookie, rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), "The CSV download failed.")
}

func TestPrintView(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.get(f.signIn(t, "token"), "/reports/stock/print?"+stockQuery)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Granite Red")
	assert.Contains(t, body, "/static/print.js")
}
