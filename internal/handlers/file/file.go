package file

import (
	"context"
	"errors"
	"os"

	"github.com/samachi/glowctl/internal/registry"
)

type handler struct{}

func New() *handler             { return &handler{} }
func (h *handler) Name() string { return "file" }

func (h *handler) Load(_ context.Context, src registry.Source) ([]byte, error) {
	if src.Path == "" {
		return nil, errors.New("file: missing source.path")
	}
	return os.ReadFile(src.Path)
}

func init() {
	registry.Register(New())
}
