// Command initview builds Initiative → Feature → Sub-Feature → Epic views
// from Jira and traces active sprint work back to ancestors that still lack
// a release marker.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mpietro40/jira-initiative-viewer/internal/config"
	"github.com/mpietro40/jira-initiative-viewer/internal/detail"
	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/telemetry"
	"github.com/mpietro40/jira-initiative-viewer/internal/ui"
)

// app carries per-invocation state shared by subcommands.
type app struct {
	cfgPath string
	output  string
	verbose bool
	quiet   bool

	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Session
	client    *jira.Client
	resolver  *detail.Resolver

	// promptToken reads the API token when none is configured.
	promptToken func() (string, error)
}

// tokenPrompt is replaced in tests.
var tokenPrompt = promptTokenFromTerminal

func newRootCmd() *cobra.Command {
	a := &app{promptToken: tokenPrompt}

	root := &cobra.Command{
		Use:   "initview",
		Short: "initview - Jira initiative hierarchy viewer",
		Long: `Builds the Initiative → Feature → Sub-Feature → Epic hierarchy for a release
and traces work in open sprints back to Features and Sub-Features that are
missing the release's fix version.

Configuration is read from flags, INITVIEW_* environment variables, and
initview.yaml (working directory or ~/.config/initview), in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if err := a.telemetry.Shutdown(context.Background()); err != nil && a.logger != nil {
				a.logger.Warn("telemetry flush failed", "err", err)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "Config file (default: ./initview.yaml or ~/.config/initview/initview.yaml)")
	pf.StringVarP(&a.output, "output", "o", "text", "Output format: text, json, or yaml")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose/debug output")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-essential output (errors only)")
	pf.String("url", "", "Jira base URL (jira.url)")
	pf.String("username", "", "Jira username; enables Basic auth (jira.username)")
	pf.String("api-version", "", "Jira REST API version (jira.api_version)")
	pf.Int("batch-size", 0, "Default search page size (fetch.batch_size)")
	pf.Int("max-retries", 0, "Attempts per request (fetch.max_retries)")
	pf.Duration("read-timeout", 0, "Base per-attempt read timeout (fetch.read_timeout)")
	pf.Int("max-results", 0, "Result cap for lookup queries (fetch.max_results)")
	pf.Int("initiative-max", 0, "Initiative query cap (trace.initiative_max)")
	pf.Duration("deadline", 0, "Overall deadline for one command, 0 for none (trace.deadline)")

	root.AddCommand(
		newForwardCmd(a),
		newTraceCmd(a),
		newPingCmd(a),
		newLookupCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger, client, and resolver.
func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid --output %q (must be text, json, or yaml)", a.output)
	}

	ui.Configure(cmd.OutOrStdout())
	a.logger = newLogger(cmd.ErrOrStderr(), a.verbose, a.quiet)
	slog.SetDefault(a.logger)

	cfg, err := config.Load(a.cfgPath, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.File != "" {
		a.logger.Debug("loaded config", "file", cfg.File)
	}
	if cfg.Jira.Token == "" && a.promptToken != nil {
		token, err := a.promptToken()
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		cfg.Jira.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	a.cfg = cfg

	// Started before the client so its transport and instruments pick up
	// the installed providers.
	sess, err := telemetry.Start(cmd.Context(), cfg.TelemetrySettings(cmd.ErrOrStderr()), "initview", Version)
	if err != nil {
		a.logger.Warn("telemetry disabled", "err", err)
	}
	a.telemetry = sess

	a.client = jira.NewClient(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.Token).
		WithPolicy(cfg.FetchPolicy()).
		WithAPIVersion(cfg.Jira.APIVersion).
		WithLogger(a.logger)
	p := a.client.Policy()
	a.logger.Debug("fetch policy",
		"batch", p.BatchSize, "min_batch", p.MinBatchSize,
		"retries", p.MaxRetries, "read_timeout", p.ReadTimeout)
	a.resolver = detail.NewResolver(a.client, a.logger)
	return nil
}

// commandContext applies the configured overall deadline, if any.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg != nil && a.cfg.Trace.Deadline > 0 {
		return context.WithTimeout(ctx, a.cfg.Trace.Deadline)
	}
	return context.WithCancel(ctx)
}

func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// promptTokenFromTerminal asks for the API token without echoing it. It
// returns an empty token when stdin is not a terminal.
func promptTokenFromTerminal() (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 - fd fits in int
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, "Jira API token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
