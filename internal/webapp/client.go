// Package webapp triggers the companion web application's Glownet sync endpoints.
package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sync kinds accepted by the endpoints.
const (
	Full        = "full"
	Incremental = "incremental"
)

// DefaultBatchSize is the card batch size when none is given.
const DefaultBatchSize = 50

// ValidKind reports whether kind is a sync type the endpoints accept.
func ValidKind(kind string) bool { return kind == Full || kind == Incremental }

// Stats are the counters the card endpoint reports.
type Stats struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Result is a sync endpoint response.
type Result struct {
	StatusCode int               `json:"-"`
	Elapsed    time.Duration     `json:"-"`
	Message    string            `json:"message"`
	Error      string            `json:"error"`
	Data       []json.RawMessage `json:"data"`
	Stats      *Stats            `json:"stats"`
	Raw        string            `json:"-"`
}

// StatusError is a response with an unexpected status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webapp: unexpected status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client calls the web app at a base URL such as http://localhost:3000.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New returns a client; timeout zero leaves requests unbounded apart from ctx.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// SyncVenues asks the app to pull venues from Glownet.
func (c *Client) SyncVenues(ctx context.Context, kind string) (*Result, error) {
	return c.post(ctx, "/api/venues/sync-glownet", map[string]any{"type": kind})
}

// SyncCards asks the app to pull G-Tags from Glownet in batches of batchSize.
func (c *Client) SyncCards(ctx context.Context, kind string, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return c.post(ctx, "/api/cards/sync-glownet", map[string]any{"type": kind, "batchSize": batchSize})
}

// ErrCronOpen is returned when the card cron trigger accepted an unauthenticated
// request.
var ErrCronOpen = errors.New("webapp: cron trigger accepted a request without cron credentials")

// ProbeCardsCron calls the cron trigger as an outside client. The app must refuse
// with 401; anything else is reported as an error alongside the response.
func (c *Client) ProbeCardsCron(ctx context.Context) (*Result, error) {
	res, err := c.send(ctx, http.MethodGet, "/api/cards/sync-glownet", nil)
	if err != nil {
		return nil, err
	}
	switch res.StatusCode {
	case http.StatusUnauthorized:
		return res, nil
	case http.StatusOK:
		return res, ErrCronOpen
	default:
		return res, &StatusError{StatusCode: res.StatusCode, Body: res.Raw}
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*Result, error) {
	res, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return res, &StatusError{StatusCode: res.StatusCode, Body: res.Raw}
	}
	if res.Error != "" {
		return res, fmt.Errorf("webapp: %s", res.Error)
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, method, path string, in any) (*Result, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webapp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webapp: %s %s: read body: %w", method, path, err)
	}
	res := &Result{StatusCode: resp.StatusCode, Elapsed: time.Since(start), Raw: string(b)}
	// Error pages are often HTML; only the raw text is kept for those.
	_ = json.Unmarshal(b, res)
	c.log.Info("sync endpoint",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}
