// Package tasks implements the glowctl subcommands. Each task is a linear
// conversation with the operator: prompts, vendor API calls and console output.
//
// Tasks return a process exit code: 0 ok, 1 operational failure, 2 usage or
// configuration error.
package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/config"
	"github.com/samachi/glowctl/internal/glownet"
	"github.com/samachi/glowctl/internal/prompt"
	"github.com/samachi/glowctl/internal/store"
	"github.com/samachi/glowctl/internal/webapp"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitFail  = 1
	ExitUsage = 2
)

// Runner carries everything a task needs. Nil Now, Sleep and Log get working
// defaults from Init.
type Runner struct {
	Cfg    *config.Config
	API    *glownet.Client
	App    *webapp.Client
	Prompt prompt.Prompter
	Out    io.Writer
	Log    *zap.Logger

	// OpenStore connects to the companion database for direct syncs.
	OpenStore func(ctx context.Context) (*store.Store, func(), error)

	Now   func() time.Time
	Sleep func(time.Duration)
}

// Init fills unset optional fields and returns r.
func (r *Runner) Init() *Runner {
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Sleep == nil {
		r.Sleep = time.Sleep
	}
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	if r.OpenStore == nil {
		r.OpenStore = func(ctx context.Context) (*store.Store, func(), error) {
			return store.Open(ctx, r.Cfg.DatabaseURL, r.Log)
		}
	}
	return r
}

func (r *Runner) printf(format string, args ...any) { fmt.Fprintf(r.Out, format, args...) }

func (r *Runner) println(args ...any) { fmt.Fprintln(r.Out, args...) }

func (r *Runner) rule(ch string, n int) { r.println(strings.Repeat(ch, n)) }

// header prints a task banner with the API base URL.
func (r *Runner) header(title string) {
	r.printf("--- %s ---\n", title)
	r.printf("API Base URL: %s\n", r.Cfg.APIBaseURL)
	r.rule("-", 40)
}

// promptFailed reports a prompt error; running out of input is a usage error.
func (r *Runner) promptFailed(err error) int {
	r.printf("input error: %v\n", err)
	return ExitUsage
}

// chooseEvent lists every event and lets the operator pick one. ok is false when
// the operator quit or there was nothing to pick; code is then the exit code.
func (r *Runner) chooseEvent(ctx context.Context) (ev glownet.Event, ok bool, code int) {
	events, err := r.API.ListEvents(ctx)
	if err != nil {
		r.printf("[ERR ] fetching events: %v\n", err)
		return ev, false, ExitFail
	}
	if len(events) == 0 {
		r.println("No events found. Create an event first.")
		return ev, false, ExitOK
	}
	r.println("\nAvailable Events:")
	for i, e := range events {
		r.printf("  %d. %s (Identifier: %s, State: %s)\n", i+1, orNA(e.Name), e.Identifier(), orNA(e.State))
	}
	idx, picked, err := r.Prompt.Choose("Enter the number of the event to use", len(events))
	if err != nil {
		return ev, false, r.promptFailed(err)
	}
	if !picked {
		r.println("No event selected. Exiting.")
		return ev, false, ExitOK
	}
	ev = events[idx]
	r.printf("Using event: %s (API Identifier: %s)\n", orNA(ev.Name), ev.Identifier())
	return ev, true, ExitOK
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
