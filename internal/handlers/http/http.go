package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samachi/glowctl/internal/registry"
)

// maxBody bounds how much of a manifest is read into memory.
const maxBody = 8 << 20

type handler struct{ client *http.Client }

func New() *handler             { return &handler{client: &http.Client{Timeout: 60 * time.Second}} }
func (h *handler) Name() string { return "http" }

func (h *handler) Load(ctx context.Context, src registry.Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("http: missing source.url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http GET %s: %s", src.URL, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBody {
		return nil, fmt.Errorf("http GET %s: body exceeds %d bytes", src.URL, maxBody)
	}
	return b, nil
}

func init() {
	registry.Register(New())
}
