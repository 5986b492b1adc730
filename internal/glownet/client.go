// Package glownet is a small client for the Glownet v2 REST API: events,
// customers, G-Tags (NFC tags) and venues.
//
// List endpoints are walked with a paging.Collector, so a failed page never yields
// a partial list. Single-record reads distinguish 404 (ErrNotFound) from other
// API errors.
package glownet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/paging"
)

// DefaultTimeout bounds a single HTTP call.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is returned when a single record does not exist.
var ErrNotFound = errors.New("glownet: not found")

// APIError is a non-success HTTP response from the vendor API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("glownet: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to one Glownet installation with one API key.
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	log       *zap.Logger
	collector *paging.Collector
	perPage   int
	pageDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithCollector sets the collector used for list endpoints.
func WithCollector(col *paging.Collector) Option { return func(c *Client) { c.collector = col } }

// WithPageDelay sets the pause between page requests of the default collector.
func WithPageDelay(d time.Duration) Option { return func(c *Client) { c.pageDelay = d } }

// WithPerPage sets the page size requested from list endpoints.
func WithPerPage(n int) Option { return func(c *Client) { c.perPage = n } }

// New returns a client for baseURL (for example https://opera.glownet.com).
// timeout bounds each call; zero means DefaultTimeout.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v2",
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     zap.NewNop(),
		perPage: paging.DefaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.collector == nil {
		c.collector = paging.New(paging.WithDelay(c.pageDelay), paging.WithObserver(c.logProgress))
	}
	return c
}

func (c *Client) logProgress(p paging.Progress) {
	c.log.Debug("page fetched",
		zap.String("kind", p.Kind),
		zap.Int("page", p.Page),
		zap.Int("records", p.Fetched),
		zap.Int("total", p.Total),
		zap.Bool("done", p.Done))
}

// response is a completed HTTP exchange.
type response struct {
	status int
	body   []byte
}

// do performs one call. Only transport failures are returned as errors; status
// handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) (*response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("glownet: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("glownet: %s %s: read body: %w", method, path, err)
	}
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return &response{status: resp.StatusCode, body: b}, nil
}

// expect turns a response outside ok into an *APIError.
func (c *Client) expect(method, path string, r *response, ok ...int) error {
	if slices.Contains(ok, r.status) {
		return nil
	}
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: r.status,
		Message:    errorMessage(r.body),
		Body:       string(r.body),
	}
}

// errorMessage prefers the "error" then "message" keys of a JSON error body and
// falls back to the raw text.
func errorMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		for _, k := range []string{"error", "message"} {
			if v, ok := m[k]; ok && v != nil {
				if s, ok := v.(string); ok {
					return s
				}
				b, _ := json.Marshal(v)
				return string(b)
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// call performs a request, checks the status and decodes a non-empty body into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any, ok ...int) error {
	r, err := c.do(ctx, method, path, nil, in)
	if err != nil {
		return err
	}
	if err := c.expect(method, path, r, ok...); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(r.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("glownet: %s %s: decode: %w", method, path, err)
	}
	return nil
}

// FetchPage returns the page fetcher for a list resource such as
// "/events/test1/customers". Any 2xx with a JSON array is ok; any other status,
// an undecodable body or a non-array body (null included) is a protocol error; a
// failed request is a transport error.
func (c *Client) FetchPage(ctx context.Context, path string) paging.FetchFunc {
	return func(page int) paging.Page {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))
		r, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return paging.Page{Status: paging.StatusTransportError, Number: page, Err: err}
		}
		if r.status/100 != 2 {
			return paging.Page{Status: paging.StatusProtocolError, Number: page,
				Err: c.expect(http.MethodGet, path, r, http.StatusOK)}
		}
		var recs []json.RawMessage
		if err := json.Unmarshal(r.body, &recs); err != nil {
			return paging.Page{Status: paging.StatusProtocolError, Number: page,
				Err: fmt.Errorf("glownet: GET %s: expected a JSON array: %w", path, err)}
		}
		if recs == nil {
			return paging.Page{Status: paging.StatusProtocolError, Number: page,
				Err: fmt.Errorf("glownet: GET %s: expected a JSON array, got %q", path, bytes.TrimSpace(r.body))}
		}
		return paging.Page{Status: paging.StatusOK, Number: page, Records: recs}
	}
}

// collect walks every page of path.
func (c *Client) collect(ctx context.Context, kind, path string) ([]json.RawMessage, error) {
	res := c.collector.Collect(paging.Request{Resource: path, PerPage: c.perPage, Kind: kind}, c.FetchPage(ctx, path))
	if !res.OK() {
		return nil, res.Err
	}
	c.log.Info("collected", zap.String("kind", kind), zap.Int("records", len(res.Records)), zap.Int("pages", res.Pages))
	return res.Records, nil
}

func escape(id string) string { return url.PathEscape(id) }

// isNull reports an empty body or a literal JSON null.
func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
