// Package validate cross-checks extracted values against an external
// chemical reference dataset. Lookups are best-effort: a failure
// degrades one observation's confidence, never the batch.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/resilience"
)

// Lookup is the external reference's answer for one value, or nil when
// the reference has no record.
type Lookup struct {
	IsValid        bool    `json:"is_valid"`
	CanonicalValue string  `json:"canonical_value"`
	ConfidenceHint float64 `json:"confidence_hint"`
}

// Client queries the reference dataset. Implementations must be safe
// for concurrent use.
type Client interface {
	Check(ctx context.Context, fieldName, value string) (*Lookup, error)
}

// HTTPClient is the production Client: one shared token bucket across
// all callers enforces the provider's hard rate limit.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewHTTPClient builds a client from config. The per-lookup timeout is
// owned by the http.Client; callers add context deadlines on top as
// needed.
func NewHTTPClient(cfg config.ValidateConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("reference", "lookup")
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   retry,
	}
}

// Check looks one value up. A 404 means "not found" and returns
// (nil, nil); other failures return an error after transient retries.
func (c *HTTPClient) Check(ctx context.Context, fieldName, value string) (*Lookup, error) {
	if c.baseURL == "" {
		return nil, eris.New("validate: no reference base url configured")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Lookup, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "validate: rate limit wait")
		}

		u := fmt.Sprintf("%s/v1/lookup?field=%s&value=%s",
			c.baseURL, url.QueryEscape(fieldName), url.QueryEscape(value))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, eris.Wrap(err, "validate: build request")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "validate: lookup request")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				eris.Errorf("validate: reference returned %d", resp.StatusCode), resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, eris.Errorf("validate: reference returned %d", resp.StatusCode)
		}

		var out Lookup
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, eris.Wrap(err, "validate: decode lookup")
		}
		return &out, nil
	})
}
