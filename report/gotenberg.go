// Package report talks to a Gotenberg instance that prints HTML to PDF.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// A4 dimensions in inches as Gotenberg expects them.
const (
	a4Width  = "8.27"
	a4Height = "11.7"
)

// pageFooter is stamped on every page; Gotenberg fills the pageNumber and
// totalPages spans.
const pageFooter = `<html><head><style>body{font-family:sans-serif;font-size:9px;width:100%;text-align:center;color:#555;}</style></head>` +
	`<body><p>Page <span class="pageNumber"></span> of <span class="totalPages"></span></p></body></html>`

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderOptions tune the printed page.
type RenderOptions struct {
	Landscape bool
}

// RenderHTML converts an HTML document into an A4 PDF with a page counter
// in the footer of every page.
func (c *Client) RenderHTML(ctx context.Context, html string, opts RenderOptions) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := addFile(writer, "index.html", html); err != nil {
		return nil, err
	}
	if err := addFile(writer, "footer.html", pageFooter); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"paperWidth":      a4Width,
		"paperHeight":     a4Height,
		"marginBottom":    "0.6",
		"printBackground": "true",
		"landscape":       fmt.Sprintf("%t", opts.Landscape),
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/forms/chromium/convert/html", c.baseURL), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("render failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return io.ReadAll(resp.Body)
}

func addFile(writer *multipart.Writer, name, content string) error {
	part, err := writer.CreateFormFile("files", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, strings.NewReader(content))
	return err
}
