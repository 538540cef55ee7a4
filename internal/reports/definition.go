package reports

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/table"
)

// ExportConfig describes the export actions of a report.
type ExportConfig struct {
	// CSVPath is the backend download endpoint. Empty disables CSV export.
	CSVPath     string
	CSVFilename string
	// FileStem names PDF and XLSX downloads.
	FileStem    string
	Orientation layout.Orientation
}

// Meta is the static description of a report.
type Meta struct {
	Name        string
	Title       string
	Kind        query.Kind
	Description string
	Export      ExportConfig
	// Listed reports appear on the home page.
	Listed bool
}

// Request is one render of a report for a viewer.
type Request struct {
	Viewer    string
	Creds     backend.Credentials
	Params    query.Params
	Submitted bool
	// Query carries the table view state and is the base of every link.
	Query  url.Values
	Target layout.Target
}

// Report is a compiled report definition.
type Report interface {
	Meta() Meta
	Render(ctx context.Context, req Request) layout.Document
	Retry(ctx context.Context, viewer string, creds backend.Credentials) error
	Forget(viewer string)
}

// Section is one table of a report.
type Section[Resp, Row any] struct {
	ID    string
	Title string
	Rows  func(Resp) []Row
	Table *table.Engine[Row]
	// Totals is computed over every loaded row of the section, keyed by
	// column id.
	Totals      func(rows []Row) map[string]string
	TotalsLabel string
}

// Definition is the data a report screen is built from.
type Definition[Resp, Row any] struct {
	Meta     Meta
	Fetch    query.Fetcher[Resp]
	Sections []Section[Resp, Row]
	Fields   func(Resp, query.Params) []layout.Field
	Summary  func(Resp) []layout.Field
}

// Runner serves a Definition through per viewer query bindings.
type Runner[Resp, Row any] struct {
	def      Definition[Resp, Row]
	bindings *query.Registry[Resp]
	now      func() time.Time
}

// Compile binds def to a query registry.
func Compile[Resp, Row any](def Definition[Resp, Row], cfg query.RegistryConfig) *Runner[Resp, Row] {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner[Resp, Row]{
		def:      def,
		bindings: query.NewRegistry(def.Meta.Name, def.Fetch, cfg),
		now:      now,
	}
}

// Meta returns the report description.
func (r *Runner[Resp, Row]) Meta() Meta {
	return r.def.Meta
}

// Render binds the request parameters and lays out the result.
func (r *Runner[Resp, Row]) Render(ctx context.Context, req Request) layout.Document {
	state := r.bindings.For(req.Viewer).Bind(ctx, req.Creds, req.Params, req.Submitted)
	return r.document(state, req)
}

// Retry re-fetches the parameters the viewer last used.
func (r *Runner[Resp, Row]) Retry(ctx context.Context, viewer string, creds backend.Credentials) error {
	_, err := r.bindings.For(viewer).Retry(ctx, creds)
	return err
}

// Forget drops the viewer's binding.
func (r *Runner[Resp, Row]) Forget(viewer string) {
	r.bindings.Forget(viewer)
}

func (r *Runner[Resp, Row]) document(state query.State[Resp], req Request) layout.Document {
	meta := r.def.Meta
	doc := layout.Document{
		Report:      meta.Name,
		Title:       meta.Title,
		Target:      req.Target,
		Kind:        meta.Kind.String(),
		Params:      state.Params,
		Status:      state.Status,
		Notice:      state.Notice,
		Orientation: meta.Export.Orientation,
		FetchedAt:   state.FetchedAt,
		GeneratedAt: r.now(),
	}
	if doc.Orientation == "" {
		doc.Orientation = layout.Portrait
	}
	switch state.Status {
	case query.StatusError:
		doc.Err = state.Err
		doc.Error = ErrorMessage(state.Err)
		doc.Retryable = state.Retryable()
		return doc
	case query.StatusSuccess:
	default:
		return doc
	}

	if r.def.Fields != nil {
		doc.Fields = r.def.Fields(state.Data, state.Params)
	}
	for _, sec := range r.def.Sections {
		doc.Tables = append(doc.Tables, buildTable(sec, sec.Rows(state.Data), req))
	}
	if r.def.Summary != nil {
		doc.Summary = r.def.Summary(state.Data)
	}
	return doc
}

func buildTable[Resp, Row any](sec Section[Resp, Row], rows []Row, req Request) layout.Table {
	prefix := sec.ID + "."
	vs := table.ParseViewState(req.Query, prefix)
	var view table.View[Row]
	if req.Target.Paginated() {
		view = sec.Table.Apply(rows, vs)
	} else {
		view = sec.Table.All(rows, vs)
	}
	links := table.Links{Base: req.Query, Prefix: prefix, State: view.State}

	out := layout.Table{
		ID:           sec.ID,
		Title:        sec.Title,
		Total:        view.Total,
		Filter:       vs.Filter,
		FilterField:  links.FilterField(),
		FilterHidden: links.Hidden(),
		Rows:         make([][]layout.Cell, 0, len(view.Rows)),
	}
	for _, col := range view.Columns {
		c := layout.Column{
			ID:       col.ID,
			Header:   col.Header,
			Align:    string(col.Align),
			Sortable: col.Sortable,
			Sorted:   vs.SortBy == col.ID,
			Desc:     vs.SortBy == col.ID && vs.Desc,
		}
		if col.Sortable {
			c.SortURL = links.Sort(col.ID)
		}
		out.Columns = append(out.Columns, c)
	}
	for _, row := range view.Rows {
		cells := make([]layout.Cell, len(view.Columns))
		for i, col := range view.Columns {
			cells[i].Text = col.Text(row)
			if col.Link != nil && req.Target.Paginated() {
				cells[i].Href = col.Link(row)
			}
		}
		out.Rows = append(out.Rows, cells)
	}
	for _, tg := range view.Hideable {
		out.Toggles = append(out.Toggles, layout.Toggle{
			ID:      tg.ID,
			Header:  tg.Header,
			Visible: tg.Visible,
			URL:     links.Toggle(tg.ID, tg.Visible),
		})
	}

	p := view.Pager
	out.Pager = layout.Pager{
		Page:      p.Number(),
		PageCount: p.PageCount,
		Rows:      p.Filtered,
		HasPrev:   p.HasPrev,
		HasNext:   p.HasNext,
	}
	if p.HasPrev {
		out.Pager.PrevURL = links.Page(p.Page - 1)
	}
	if p.HasNext {
		out.Pager.NextURL = links.Page(p.Page + 1)
	}

	if sec.Totals != nil {
		label := sec.TotalsLabel
		if label == "" {
			label = "Total"
		}
		out.Footer = layout.NewFooter(out.Columns, label, sec.Totals(rows))
	}
	return out
}

// ErrorMessage turns a fetch failure into text for the report screen.
func ErrorMessage(err error) string {
	var statusErr *backend.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, backend.ErrNoCredentials), errors.Is(err, backend.ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case backend.IsNotFound(err):
		return "The requested record was not found."
	case errors.As(err, &statusErr):
		return "The server could not produce this report (status " + strconv.Itoa(statusErr.Code) + ")."
	case errors.Is(err, backend.ErrDecode):
		return "The server returned an unexpected response."
	case errors.Is(err, backend.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return "The server could not be reached."
	default:
		return "The report could not be loaded."
	}
}
