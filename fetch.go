package mosaic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
)

// Fetcher retrieves the raw text of a resource. It's how the Loader gets at
// component fragments, stylesheets, and scripts; everything else in the
// package treats resource paths as opaque keys.
//
// Implementations should return a *FetchError for any failure, carrying the
// path and, when one is known, the status that was reported for it.
type Fetcher interface {
	// Fetch returns the text of the resource at path.
	Fetch(ctx context.Context, path string) (string, error)
}

var _ Fetcher = &FSFetcher{}
var _ Fetcher = MapFetcher{}
var _ Fetcher = &HTTPFetcher{}

// FSFetcher is a Fetcher that reads resources out of an fs.FS, so fragments
// can live in an embed.FS or an os.DirFS. Paths are fs paths; a leading slash
// is trimmed before lookup.
type FSFetcher struct {
	fsys fs.FS
}

// NewFSFetcher returns an FSFetcher reading from the passed fs.FS.
func NewFSFetcher(fsys fs.FS) *FSFetcher {
	return &FSFetcher{fsys: fsys}
}

// Fetch reads the file at path from the underlying fs.FS. A missing file is
// reported as a *FetchError with a 404 status.
func (f *FSFetcher) Fetch(_ context.Context, path string) (string, error) {
	contents, err := fs.ReadFile(f.fsys, strings.TrimPrefix(path, "/"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		return "", &FetchError{Path: path, Status: status, Err: err}
	}
	return string(contents), nil
}

// MapFetcher is a Fetcher backed by an in-memory map of path to contents.
// It's mostly useful in tests and examples.
type MapFetcher map[string]string

// Fetch returns the value stored under path. A missing key is reported as a
// *FetchError with a 404 status.
func (m MapFetcher) Fetch(_ context.Context, path string) (string, error) {
	contents, ok := m[path]
	if !ok {
		return "", &FetchError{Path: path, Status: http.StatusNotFound}
	}
	return contents, nil
}

// HTTPFetcher is a Fetcher that retrieves resources over HTTP. Any
// non-success status is reported as a *FetchError carrying that status.
type HTTPFetcher struct {
	// Client is the *http.Client to make requests with. When nil,
	// http.DefaultClient is used.
	Client *http.Client

	// BaseURL is prepended to every path before requesting it.
	BaseURL string
}

// Fetch requests BaseURL+path and returns the response body.
func (h *HTTPFetcher) Fetch(ctx context.Context, path string) (string, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path, nil)
	if err != nil {
		return "", &FetchError{Path: path, Err: fmt.Errorf("building request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on a read-only body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{Path: path, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	return string(body), nil
}
