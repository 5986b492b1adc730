// Glowctl is an operator toolkit for the Glownet event-ticketing API: it creates
// and deletes events, seeds test data, snapshots an event, checks balance units,
// resets balances and syncs venues and G-Tags into the companion web app.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/config"
	"github.com/samachi/glowctl/internal/glownet"
	"github.com/samachi/glowctl/internal/logging"
	"github.com/samachi/glowctl/internal/prompt"
	"github.com/samachi/glowctl/internal/tasks"
	"github.com/samachi/glowctl/internal/webapp"

	// Venue image loaders register themselves from init().
	_ "github.com/samachi/glowctl/internal/handlers/command"
	_ "github.com/samachi/glowctl/internal/handlers/file"
	_ "github.com/samachi/glowctl/internal/handlers/git"
	_ "github.com/samachi/glowctl/internal/handlers/http"
)

func usage() {
	fmt.Print(`glowctl - Glownet operator toolkit

Usage:
  glowctl [--config .glowctl.yaml] [--env .env.local] COMMAND [ARGS]

Commands:
  events create                         create events interactively
  events delete                         delete one event after confirmation
  testdata                              seed an event with customers and G-Tags
  summary [--event ID]                  snapshot an event into the summary log
  verify-balance                        infer the unit of virtual_money
  reset-balances                        refund customers that hold a balance
  sync venues [full|incremental] [--direct]
  sync cards [full|incremental|cron] [BATCH] [--direct]

Environment:
  GLOWNET_API_KEY, GLOWNET_API_BASE_URL, NEXT_PUBLIC_APP_URL, DATABASE_URL, LOG_LEVEL
`)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("glowctl", flag.ContinueOnError)
	fs.Usage = usage
	var cfgPath, envPath string
	fs.StringVar(&cfgPath, "config", ".glowctl.yaml", "path to config YAML")
	fs.StringVar(&envPath, "env", ".env.local", "dotenv file loaded before .env")
	if err := fs.Parse(args); err != nil {
		return tasks.ExitUsage
	}
	if fs.NArg() < 1 {
		usage()
		return tasks.ExitUsage
	}

	cfg, err := config.Load(cfgPath, envPath, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return tasks.ExitUsage
	}
	log := logging.New(cfg.LogLevel, os.Stderr)
	defer func() { _ = log.Sync() }()
	log.Debug("configuration loaded",
		zap.String("api", cfg.APIBaseURL),
		zap.String("app", cfg.AppURL),
		zap.Strings("env_files", cfg.EnvFiles))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := newRunner(cfg, log)
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	switch cmd {
	case "events":
		if len(rest) != 1 {
			usage()
			return tasks.ExitUsage
		}
		if code, ok := needAPIKey(cfg); !ok {
			return code
		}
		switch rest[0] {
		case "create":
			return r.CreateEvents(ctx)
		case "delete":
			return r.DeleteEvent(ctx)
		}
		usage()
		return tasks.ExitUsage

	case "testdata", "verify-balance", "reset-balances":
		if code, ok := needAPIKey(cfg); !ok {
			return code
		}
		switch cmd {
		case "testdata":
			return r.CreateTestData(ctx)
		case "verify-balance":
			return r.VerifyBalance(ctx)
		default:
			return r.ResetBalances(ctx)
		}

	case "summary":
		sf := flag.NewFlagSet("summary", flag.ContinueOnError)
		event := sf.String("event", tasks.DefaultSummaryEvent, "event id or slug to snapshot")
		if err := sf.Parse(rest); err != nil {
			return tasks.ExitUsage
		}
		if code, ok := needAPIKey(cfg); !ok {
			return code
		}
		return r.Summary(ctx, *event)

	case "sync":
		return runSync(ctx, r, cfg, rest)
	}

	usage()
	return tasks.ExitUsage
}

// runSync handles "sync venues|cards [kind] [batch] [--direct]".
func runSync(ctx context.Context, r *tasks.Runner, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		usage()
		return tasks.ExitUsage
	}
	target := args[0]
	sf := flag.NewFlagSet("sync "+target, flag.ContinueOnError)
	direct := sf.Bool("direct", false, "write into DATABASE_URL instead of calling the web app")
	pos, err := parseInterleaved(sf, args[1:])
	if err != nil {
		return tasks.ExitUsage
	}
	kind := webapp.Full
	if len(pos) > 0 {
		kind = pos[0]
	}
	if *direct {
		if code, ok := needAPIKey(cfg); !ok {
			return code
		}
	}

	switch target {
	case "venues":
		return r.SyncVenues(ctx, kind, *direct)
	case "cards":
		batch := webapp.DefaultBatchSize
		if len(pos) > 1 {
			n, err := strconv.Atoi(pos[1])
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "invalid batch size %q\n", pos[1])
				return tasks.ExitUsage
			}
			batch = n
		}
		return r.SyncCards(ctx, kind, batch, *direct)
	}
	usage()
	return tasks.ExitUsage
}

// parseInterleaved parses fs flags that may appear before, between or after the
// positional arguments, and returns the positionals.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return pos, nil
		}
		pos = append(pos, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func needAPIKey(cfg *config.Config) (int, bool) {
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return tasks.ExitUsage, false
	}
	return tasks.ExitOK, true
}

func newRunner(cfg *config.Config, log *zap.Logger) *tasks.Runner {
	d := cfg.Defaults
	api := glownet.New(cfg.APIBaseURL, cfg.APIKey, d.RequestTimeout,
		glownet.WithLogger(log.Named("glownet")),
		glownet.WithPageDelay(d.PageDelay),
		glownet.WithPerPage(d.PerPage),
	)
	return (&tasks.Runner{
		Cfg:    cfg,
		API:    api,
		App:    webapp.New(cfg.AppURL, d.RequestTimeout, log.Named("webapp")),
		Prompt: prompt.NewTerminal(os.Stdin, os.Stdout),
		Out:    os.Stdout,
		Log:    log,
	}).Init()
}
