package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketdesk/internal/logger"
	"marketdesk/internal/metrics"
	"marketdesk/internal/model"
)

// DefaultBaseURL is where a locally running hub listens.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

const (
	maxErrorBody    = 200
	maxResponseBody = 16 << 20
)

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration // default 30s
	RPS        float64       // outbound requests per second; <= 0 disables limiting
	Burst      int
	HTTPClient *http.Client
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

// Client talks JSON to the marketplace hub. It holds no credentials; every
// call is made with the Credentials it is given.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Registry
	logger  *slog.Logger
}

// New validates the base URL and builds a Client.
func New(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse hub url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("hub url %q: scheme must be http or https: %w", raw, model.ErrInvalidInput)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		base:    base,
		http:    hc,
		limiter: lim,
		metrics: opts.Metrics,
		logger:  logger.OrDiscard(opts.Logger),
	}, nil
}

// BaseURL returns the hub root every path is resolved against.
func (c *Client) BaseURL() string { return c.base.String() }

// GetJSON issues an authenticated GET and decodes the JSON answer into out.
func (c *Client) GetJSON(ctx context.Context, creds model.Credentials, op, path string, query url.Values, out any) error {
	return c.do(ctx, &creds, op, http.MethodGet, path, query, nil, out)
}

// PostJSON issues an authenticated POST with body encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, creds model.Credentials, op, path string, body, out any) error {
	return c.do(ctx, &creds, op, http.MethodPost, path, nil, body, out)
}

// postAnonymous is used by the login flow, before a token exists.
func (c *Client) postAnonymous(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, nil, op, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, creds *model.Credentials, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	status := 0
	u := c.resolve(path, query)
	defer func() {
		d := time.Since(start)
		c.metrics.ObserveRequest(op, d, err)
		c.logger.DebugContext(ctx, "hub request",
			"op", op, "method", method, "url", u, "status", status, "duration", d, "err", err)
	}()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if creds != nil {
		creds.Token().SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{Op: op, Status: status, Err: fmt.Errorf("read response: %w", err)}
	}
	if status < 200 || status > 299 {
		return &TransportError{Op: op, Status: status, Body: truncate(data)}
	}
	if out == nil {
		return nil
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return &TransportError{
			Op:     op,
			Status: status,
			Body:   truncate(data),
			Err:    fmt.Errorf("expected JSON but got %q", resp.Header.Get("Content-Type")),
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Status: status, Body: truncate(data), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// resolve joins path onto the base URL. path is already escaped, so a
// segment may carry an encoded slash.
func (c *Client) resolve(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

// TransportError is any failure talking to the hub: a network error, a
// non-2xx status or an unusable response body.
type TransportError struct {
	Op     string
	Status int    // 0 when no response was received
	Body   string // at most 200 bytes of the response
	Err    error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// Unwrap lets errors.Is(err, model.ErrUnauthorized) match 401 and 403.
func (e *TransportError) Unwrap() []error {
	var errs []error
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		errs = append(errs, model.ErrUnauthorized)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}
