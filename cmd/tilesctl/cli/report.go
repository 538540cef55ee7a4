// Package cli implements the tilesctl commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/export"
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/reports"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatPDF   = "pdf"
	FormatXLSX  = "xlsx"
	FormatCSV   = "csv"
)

const viewer = "tilesctl"

// ErrUnknownReport is returned for names missing from the catalog.
var ErrUnknownReport = errors.New("tilesctl: unknown report")

// ReportOptions selects a report, its parameters and the table view.
type ReportOptions struct {
	Name   string
	From   string
	To     string
	ID     int64
	Filter string
	Sort   string
	Desc   bool
	Hide   []string
	Format string
	// Out is the file written for pdf, xlsx and csv. Empty uses the
	// download name in the working directory.
	Out string
}

// ReportRunner renders catalog reports outside the web server.
type ReportRunner struct {
	Catalog    *reports.Catalog
	Downloader export.Downloader
	Creds      backend.Credentials
	Now        func() time.Time
}

// Run renders the report selected by opts. Tables and JSON go to w; files
// are written to disk and their path is returned.
func (r *ReportRunner) Run(ctx context.Context, opts ReportOptions, w io.Writer) (string, error) {
	rep, ok := r.Catalog.Lookup(opts.Name)
	if !ok {
		return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownReport, opts.Name, strings.Join(r.names(), ", "))
	}
	meta := rep.Meta()
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	values := url.Values{}
	if opts.From != "" {
		values.Set("from_date", opts.From)
	}
	if opts.To != "" {
		values.Set("to_date", opts.To)
	}
	if opts.ID > 0 {
		values.Set("id", strconv.FormatInt(opts.ID, 10))
	}
	params, err := query.Parse(values, meta.Kind, now())
	if err != nil {
		return "", err
	}

	format := opts.Format
	if format == "" {
		format = FormatTable
	}
	if format == FormatCSV {
		return r.csv(ctx, meta, params, opts.Out)
	}
	target, err := targetFor(format)
	if err != nil {
		return "", err
	}

	req := reports.Request{Viewer: viewer, Creds: r.Creds, Params: params, Submitted: true, Query: url.Values{}, Target: target}
	doc := rep.Render(ctx, req)
	if doc.Status == query.StatusError {
		return "", fmt.Errorf("%s: %w", doc.Error, doc.Err)
	}
	if view := viewValues(doc, opts); len(view) > 0 {
		// The binding already holds these params, so this only re-lays out.
		req.Query, req.Submitted = view, false
		doc = rep.Render(ctx, req)
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return "", enc.Encode(doc)
	case FormatPDF:
		file, err := export.PDF(ctx, export.NativePDF{}, meta.Export.FileStem, doc)
		if err != nil {
			return "", err
		}
		return writeFile(opts.Out, file)
	case FormatXLSX:
		file, err := export.XLSX(meta.Export.FileStem, doc)
		if err != nil {
			return "", err
		}
		return writeFile(opts.Out, file)
	default:
		return "", WriteDocument(w, doc)
	}
}

func (r *ReportRunner) csv(ctx context.Context, meta reports.Meta, params query.Params, out string) (string, error) {
	if r.Downloader == nil {
		return "", export.ErrCSVUnavailable
	}
	file, err := export.CSV(ctx, r.Downloader, r.Creds, meta.Export.CSVPath, meta.Export.CSVFilename, params)
	if err != nil {
		return "", err
	}
	return writeFile(out, file)
}

func (r *ReportRunner) names() []string {
	var names []string
	for _, rep := range r.Catalog.All() {
		names = append(names, rep.Meta().Name)
	}
	return names
}

func targetFor(format string) (layout.Target, error) {
	switch format {
	case FormatTable, FormatJSON:
		return layout.TargetPrint, nil
	case FormatPDF:
		return layout.TargetPDF, nil
	case FormatXLSX:
		return layout.TargetXLSX, nil
	}
	return "", fmt.Errorf("tilesctl: unknown format %q", format)
}

// viewValues applies the filter, sort and hidden columns to every table of
// doc.
func viewValues(doc layout.Document, opts ReportOptions) url.Values {
	if opts.Filter == "" && opts.Sort == "" && len(opts.Hide) == 0 {
		return nil
	}
	values := url.Values{}
	for _, t := range doc.Tables {
		prefix := t.ID + "."
		if opts.Filter != "" {
			values.Set(prefix+"q", opts.Filter)
		}
		if opts.Sort != "" {
			values.Set(prefix+"sort", opts.Sort)
			if opts.Desc {
				values.Set(prefix+"dir", "desc")
			}
		}
		if len(opts.Hide) > 0 {
			values.Set(prefix+"hide", strings.Join(opts.Hide, ","))
		}
	}
	return values
}

func writeFile(path string, file export.File) (string, error) {
	if path == "" {
		path = file.Name
	}
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return "", fmt.Errorf("tilesctl: write %s: %w", path, err)
	}
	return path, nil
}
