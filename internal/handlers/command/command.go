package command

import (
	"context"
	"errors"
	"strings"

	"github.com/samachi/glowctl/internal/registry"
	runrt "github.com/samachi/glowctl/internal/runtime"
)

type handler struct{}

func New() *handler             { return &handler{} }
func (h *handler) Name() string { return "command" }

// Load runs src.Cmd and returns its stdout. The placeholders {{url}}, {{path}} and
// {{ref}} are substituted and also exported as SOURCE_URL, SOURCE_PATH, SOURCE_REF.
func (h *handler) Load(ctx context.Context, src registry.Source) ([]byte, error) {
	if strings.TrimSpace(src.Cmd) == "" {
		return nil, errors.New("command: missing source.cmd")
	}
	env := []string{
		"SOURCE_URL=" + src.URL,
		"SOURCE_PATH=" + src.Path,
		"SOURCE_REF=" + src.Ref,
	}
	return runrt.RunShell(ctx, substitute(src.Cmd, src), env)
}

func substitute(tmpl string, src registry.Source) string {
	r := strings.NewReplacer(
		"{{url}}", src.URL,
		"{{path}}", src.Path,
		"{{ref}}", src.Ref,
	)
	return r.Replace(tmpl)
}

func init() {
	registry.Register(New())
}
