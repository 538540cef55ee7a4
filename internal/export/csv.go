package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/query"
)

// Downloader fetches raw blobs from the backend.
type Downloader interface {
	Download(ctx context.Context, creds backend.Credentials, path string, body any) ([]byte, string, error)
}

// CSV asks the backend download endpoint for the report with the same
// parameters the screen used and names the blob filename. The dashboard
// never formats CSV itself.
func CSV(ctx context.Context, d Downloader, creds backend.Credentials, path, filename string, p query.Params) (File, error) {
	if strings.TrimSpace(path) == "" {
		return File{}, ErrCSVUnavailable
	}
	data, contentType, err := d.Download(ctx, creds, path, p)
	if err != nil {
		return File{}, fmt.Errorf("export: csv download: %w", err)
	}
	if contentType == "" || strings.HasPrefix(contentType, "application/json") {
		contentType = ContentTypeCSV
	}
	return File{Name: filename, ContentType: contentType, Data: data}, nil
}
