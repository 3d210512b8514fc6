// Package fetcher retrieves rule dataset files from local paths, HTTP,
// and FTP mirrors, and parses the CSV/XLSX/JSON formats they ship in.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chemsafe-cli/internal/resilience"
)

// mirrors holds one circuit breaker per dataset mirror host, so a rule
// reload keeps pulling the healthy sources when one mirror is down.
var mirrors = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())

// Options configures retrieval.
type Options struct {
	Timeout   time.Duration // per-request; default 30s
	UserAgent string
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "chemsafe-cli"
	}
	return o
}

// Open returns a reader for the dataset at location. The scheme selects
// the transport: no scheme or file:// reads the local filesystem,
// http(s):// fetches over HTTP, ftp:// retrieves from an FTP mirror.
// Caller closes the reader.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	opts = opts.withDefaults()

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths (including Windows drive letters) are local files.
		return openFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return openFile(u.Path)
	case "http", "https":
		return resilience.ExecuteVal(ctx, mirrors.Get(u.Host), func(ctx context.Context) (io.ReadCloser, error) {
			return openHTTP(ctx, location, opts)
		})
	case "ftp":
		return resilience.ExecuteVal(ctx, mirrors.Get(u.Host), func(ctx context.Context) (io.ReadCloser, error) {
			return openFTP(ctx, u, opts)
		})
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}

func openHTTP(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", location)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := eris.Errorf("fetcher: %s returned %d", location, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return resp.Body, nil
}
