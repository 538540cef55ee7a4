package reportshttp

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/export"
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/platform/httpx"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/reports"
	"github.com/tilesmart/tiles-admin/internal/shared"
	"github.com/tilesmart/tiles-admin/internal/view"
)

const submitField = "submit"

// Config wires the dependencies of the report endpoints.
type Config struct {
	Logger    *slog.Logger
	Catalog   *reports.Catalog
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	PDF       export.PDFRenderer
	// Downloader fetches backend CSV blobs.
	Downloader export.Downloader
	// Queue and Store enable background PDF exports. Both may be nil.
	Queue *export.Queue
	Store *export.Store
	// AsyncRows is the row count above which PDFs are rendered in the
	// background. Zero renders every PDF inline.
	AsyncRows int
	// ExportRate limits exports per viewer and minute. Zero disables it.
	ExportRate int
	Now        func() time.Time
}

// Handler serves report screens and exports.
type Handler struct {
	logger     *slog.Logger
	catalog    *reports.Catalog
	templates  *view.Engine
	csrf       *shared.CSRFManager
	pdf        export.PDFRenderer
	downloader export.Downloader
	queue      *export.Queue
	store      *export.Store
	asyncRows  int
	exportRate int
	now        func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Catalog == nil || cfg.Templates == nil {
		return nil, errors.New("reportshttp: catalog and templates are required")
	}
	if cfg.PDF == nil {
		return nil, errors.New("reportshttp: pdf renderer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		logger:     cfg.Logger,
		catalog:    cfg.Catalog,
		templates:  cfg.Templates,
		csrf:       cfg.CSRF,
		pdf:        cfg.PDF,
		downloader: cfg.Downloader,
		queue:      cfg.Queue,
		store:      cfg.Store,
		asyncRows:  cfg.AsyncRows,
		exportRate: cfg.ExportRate,
		now:        cfg.Now,
	}, nil
}

// MountRoutes registers the home page, report and export routes. Callers
// guard them with shared.RequireCredentials.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Route("/reports/{report}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Post("/retry", h.retry)
		r.Get("/print", h.printView)
		r.Group(func(r chi.Router) {
			if h.exportRate > 0 {
				r.Use(httprate.Limit(h.exportRate, time.Minute, httprate.WithKeyFuncs(keyByViewer)))
			}
			r.Get("/pdf", h.exportPDF)
			r.Get("/csv", h.exportCSV)
			r.Get("/xlsx", h.exportXLSX)
		})
	})
	if h.store != nil {
		r.Get("/exports/{id}", h.exportStatus)
		r.Get("/exports/{id}/download", h.exportDownload)
	}
}

func keyByViewer(r *http.Request) (string, error) {
	if viewer := shared.ViewerFromContext(r.Context()); viewer != "" {
		return "viewer:" + viewer, nil
	}
	return httprate.KeyByIP(r)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	var page view.HomePage
	for _, rep := range h.catalog.All() {
		meta := rep.Meta()
		if !meta.Listed {
			continue
		}
		page.Reports = append(page.Reports, view.ReportCard{
			Title:       meta.Title,
			Description: meta.Description,
			Href:        reports.Path(meta.Name, query.Params{}),
		})
	}
	h.render(w, r, http.StatusOK, "pages/home.html", "Reports", "", page)
}

// lookup resolves the report of the route. A ".json" suffix selects the
// JSON rendering of the screen.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (reports.Report, bool, bool) {
	name := chi.URLParam(r, "report")
	asJSON := strings.HasSuffix(name, ".json")
	name = strings.TrimSuffix(name, ".json")
	rep, ok := h.catalog.Lookup(name)
	if !ok {
		h.notFound(w, r)
		return nil, false, false
	}
	return rep, asJSON, true
}

// request builds the render request of r. The returned values are the
// query without the submit marker, the base of every link on the page.
func (h *Handler) request(r *http.Request, meta reports.Meta, target layout.Target) (reports.Request, url.Values, error) {
	q := r.URL.Query()
	submitted := q.Get(submitField) != ""
	q.Del(submitField)
	params, err := query.Parse(q, meta.Kind, h.now())
	sess := shared.SessionFromContext(r.Context())
	return reports.Request{
		Viewer:    shared.ViewerFromContext(r.Context()),
		Creds:     sess.Credentials(),
		Params:    params,
		Submitted: submitted,
		Query:     q,
		Target:    target,
	}, q, err
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	rep, asJSON, ok := h.lookup(w, r)
	if !ok {
		return
	}
	meta := rep.Meta()
	target := layout.TargetScreen
	if asJSON {
		target = layout.TargetJSON
	}
	req, q, err := h.request(r, meta, target)
	if err != nil {
		if asJSON {
			httpx.RespondError(w, err)
			return
		}
		doc := layout.Document{
			Report:      meta.Name,
			Title:       meta.Title,
			Target:      target,
			Kind:        meta.Kind.String(),
			Params:      req.Params,
			Status:      query.StatusIdle,
			GeneratedAt: h.now(),
		}
		// A first visit to a report keyed by id has nothing to complain about.
		if !req.Submitted && !hasParams(q) {
			h.renderReport(w, r, http.StatusOK, meta, q, doc, "")
			return
		}
		h.renderReport(w, r, http.StatusBadRequest, meta, q, doc, err.Error())
		return
	}

	doc := rep.Render(r.Context(), req)
	if expired(doc) {
		h.signOut(w, r)
		return
	}
	if asJSON {
		httpx.JSON(w, jsonStatus(doc), doc)
		return
	}
	h.renderReport(w, r, http.StatusOK, meta, q, doc, "")
}

func (h *Handler) renderReport(w http.ResponseWriter, r *http.Request, status int, meta reports.Meta, q url.Values, doc layout.Document, paramError string) {
	base := "/reports/" + meta.Name
	page := view.ReportPage{
		Doc:        doc,
		Action:     base,
		ParamError: paramError,
		RetryURL:   withQuery(base+"/retry", q),
		Exports: []view.Link{
			{Label: "Print", Href: withQuery(base+"/print", q)},
			{Label: "PDF", Href: withQuery(base+"/pdf", q)},
			{Label: "Excel", Href: withQuery(base+"/xlsx", q)},
		},
	}
	if meta.Export.CSVPath != "" {
		page.Exports = append(page.Exports, view.Link{Label: "CSV", Href: withQuery(base+"/csv", q)})
	}
	page.Exports = append(page.Exports, view.Link{Label: "JSON", Href: withQuery(base+".json", q)})
	h.render(w, r, status, "pages/report.html", meta.Title, meta.Name, page)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	rep, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	viewer := shared.ViewerFromContext(r.Context())
	creds := shared.SessionFromContext(r.Context()).Credentials()
	if err := rep.Retry(r.Context(), viewer, creds); err != nil && !errors.Is(err, query.ErrNothingToRetry) {
		h.logger.Warn("retry report", slog.String("report", rep.Meta().Name), slog.Any("error", err))
	}
	http.Redirect(w, r, withRawQuery("/reports/"+rep.Meta().Name, r.URL.RawQuery), http.StatusSeeOther)
}

// exportDoc renders the report for a file target. It answers the request
// itself and returns false when no exportable document exists.
func (h *Handler) exportDoc(w http.ResponseWriter, r *http.Request, target layout.Target) (reports.Report, layout.Document, bool) {
	rep, _, ok := h.lookup(w, r)
	if !ok {
		return nil, layout.Document{}, false
	}
	meta := rep.Meta()
	req, q, err := h.request(r, meta, target)
	screen := withQuery("/reports/"+meta.Name, q)
	if err != nil {
		h.flashRedirect(w, r, screen, "error", err.Error())
		return nil, layout.Document{}, false
	}
	doc := rep.Render(r.Context(), req)
	if expired(doc) {
		h.signOut(w, r)
		return nil, layout.Document{}, false
	}
	if !doc.Ready() {
		msg := doc.Error
		if msg == "" {
			msg = "The report is not loaded yet."
		}
		h.flashRedirect(w, r, screen, "error", msg)
		return nil, layout.Document{}, false
	}
	return rep, doc, true
}

func (h *Handler) printView(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := h.exportDoc(w, r, layout.TargetPrint)
	if !ok {
		return
	}
	html, err := h.templates.PrintHTML(doc)
	if err != nil {
		h.logger.Error("render print view", slog.String("report", doc.Report), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	rep, doc, ok := h.exportDoc(w, r, layout.TargetPDF)
	if !ok {
		return
	}
	stem := rep.Meta().Export.FileStem
	if h.queue != nil && h.asyncRows > 0 && doc.RowCount() > h.asyncRows {
		job, err := h.queue.Submit(r.Context(), shared.ViewerFromContext(r.Context()), stem, doc)
		if err != nil {
			h.logger.Error("queue pdf export", slog.String("report", doc.Report), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.logger.Info("pdf export queued", slog.String("report", doc.Report), slog.String("job", job.ID), slog.Int("rows", doc.RowCount()))
		http.Redirect(w, r, "/exports/"+job.ID, http.StatusSeeOther)
		return
	}
	file, err := export.PDF(r.Context(), h.pdf, stem, doc)
	if err != nil {
		h.logger.Error("render pdf", slog.String("report", doc.Report), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.send(w, file)
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	rep, doc, ok := h.exportDoc(w, r, layout.TargetXLSX)
	if !ok {
		return
	}
	file, err := export.XLSX(rep.Meta().Export.FileStem, doc)
	if err != nil {
		h.logger.Error("render xlsx", slog.String("report", doc.Report), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.send(w, file)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	rep, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	meta := rep.Meta()
	if meta.Export.CSVPath == "" || h.downloader == nil {
		h.notFound(w, r)
		return
	}
	req, q, err := h.request(r, meta, layout.TargetScreen)
	screen := withQuery("/reports/"+meta.Name, q)
	if err != nil {
		h.flashRedirect(w, r, screen, "error", err.Error())
		return
	}
	file, err := export.CSV(r.Context(), h.downloader, req.Creds, meta.Export.CSVPath, meta.Export.CSVFilename, req.Params)
	if err != nil {
		if authError(err) {
			h.signOut(w, r)
			return
		}
		h.logger.Warn("csv download", slog.String("report", meta.Name), slog.Any("error", err))
		h.flashRedirect(w, r, screen, "error", "The CSV download failed. Please try again.")
		return
	}
	h.send(w, file)
}

func (h *Handler) exportJob(w http.ResponseWriter, r *http.Request) (export.Job, bool) {
	job, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, export.ErrJobNotFound) {
			h.logger.Error("load export job", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return export.Job{}, false
		}
		h.notFound(w, r)
		return export.Job{}, false
	}
	if job.Owner != shared.ViewerFromContext(r.Context()) {
		h.notFound(w, r)
		return export.Job{}, false
	}
	return job, true
}

func (h *Handler) exportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.exportJob(w, r)
	if !ok {
		return
	}
	page := view.ExportPage{
		Report:      job.Report,
		Filename:    job.Filename,
		Status:      string(job.Status),
		Error:       job.Error,
		DownloadURL: "/exports/" + job.ID + "/download",
		BackURL:     reports.Path(job.Report, query.Params{}),
	}
	h.render(w, r, http.StatusOK, "pages/export_status.html", "PDF export", job.Report, page)
}

func (h *Handler) exportDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := h.exportJob(w, r)
	if !ok {
		return
	}
	file, err := h.store.File(r.Context(), job.ID)
	switch {
	case errors.Is(err, export.ErrJobState):
		http.Redirect(w, r, "/exports/"+job.ID, http.StatusSeeOther)
		return
	case errors.Is(err, export.ErrJobNotFound):
		h.notFound(w, r)
		return
	case err != nil:
		h.logger.Error("load export file", slog.String("job", job.ID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.send(w, file)
}

func (h *Handler) send(w http.ResponseWriter, file export.File) {
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(file.Data); err != nil {
		h.logger.Warn("stream export", slog.String("file", file.Name), slog.Any("error", err))
	}
}

// signOut drops the backend token after the backend rejected it.
func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.catalog.Forget(shared.ViewerFromContext(r.Context()))
	if sess != nil {
		sess.ClearCredentials()
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: shared.SessionExpiredMessage})
	}
	shared.SignInRedirect(w, r)
}

func (h *Handler) flashRedirect(w http.ResponseWriter, r *http.Request, to, kind, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	if shared.WantsJSON(r) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown report")
		return
	}
	h.render(w, r, http.StatusNotFound, "pages/error.html", "Not found", "", "The page you asked for does not exist.")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, tpl, title, active string, data any) {
	sess := shared.SessionFromContext(r.Context())
	var token string
	if h.csrf != nil {
		token, _ = h.csrf.EnsureToken(sess)
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		SignedIn:    !sess.Credentials().Empty(),
		Nav:         h.nav(active),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, tpl, td); err != nil {
		h.logger.Error("render template", slog.String("template", tpl), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) nav(active string) []view.NavItem {
	var items []view.NavItem
	for _, rep := range h.catalog.All() {
		meta := rep.Meta()
		if !meta.Listed {
			continue
		}
		items = append(items, view.NavItem{
			Title:  meta.Title,
			Href:   reports.Path(meta.Name, query.Params{}),
			Active: meta.Name == active,
		})
	}
	return items
}

func expired(doc layout.Document) bool {
	return doc.Status == query.StatusError && authError(doc.Err)
}

func authError(err error) bool {
	return errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrNoCredentials)
}

// jsonStatus maps the state of doc to the status of its JSON answer.
func jsonStatus(doc layout.Document) int {
	if doc.Status != query.StatusError {
		return http.StatusOK
	}
	if status := httpx.StatusFor(doc.Err); status == http.StatusNotFound {
		return status
	}
	return http.StatusBadGateway
}

func hasParams(q url.Values) bool {
	return q.Get("from_date") != "" || q.Get("to_date") != "" || q.Get("id") != ""
}

func withQuery(path string, q url.Values) string {
	return withRawQuery(path, q.Encode())
}

func withRawQuery(path, raw string) string {
	if raw == "" {
		return path
	}
	return path + "?" + raw
}
