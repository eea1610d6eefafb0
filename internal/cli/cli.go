// Package cli is the patternshield command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/patternshield/internal/app"
	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/report"
	"github.com/raysh454/patternshield/internal/server"
	"github.com/raysh454/patternshield/internal/store"
	"github.com/raysh454/patternshield/internal/webclient"
)

// Options lets callers redirect output and inject application
// collaborators. The zero value writes to stdout and stderr.
type Options struct {
	Out        io.Writer
	Err        io.Writer
	AppOptions []app.Option
}

type globals struct {
	configPath string
	logLevel   string
	backend    string
	dbPath     string
	jsonOut    bool
	markdown   bool
}

type runner struct {
	opts Options
	g    globals
}

// Execute runs the command tree against os.Args.
func Execute() {
	if err := NewRootCmd(Options{}).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the patternshield command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	r := &runner{opts: opts}

	root := &cobra.Command{
		Use:           "patternshield",
		Short:         "Detect dark patterns on web pages, markup, screenshots and URLs",
		SilenceUsage: true,
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	pf := root.PersistentFlags()
	pf.StringVarP(&r.g.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&r.g.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	pf.StringVar(&r.g.backend, "backend", "", "page fetcher: nethttp|chromedp (overrides config)")
	pf.StringVar(&r.g.dbPath, "db", "", "history database path (overrides config)")
	pf.BoolVar(&r.g.jsonOut, "json", false, "print results as JSON")
	pf.BoolVar(&r.g.markdown, "markdown", false, "print results as a Markdown report")

	root.AddCommand(
		r.newScanCmd(),
		r.newScanHTMLCmd(),
		r.newScanTextCmd(),
		r.newScanImageCmd(),
		r.newScanURLCmd(),
		r.newCrawlCmd(),
		r.newWatchCmd(),
		r.newHistoryCmd(),
		r.newSitesCmd(),
		r.newRulesCmd(),
		r.newServeCmd(),
	)
	return root
}

func (r *runner) loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig(r.g.configPath)
	if err != nil {
		return nil, err
	}
	if r.g.backend != "" {
		cfg.WebClient.Client = webclient.Client(r.g.backend)
	}
	if r.g.dbPath != "" {
		abs, err := filepath.Abs(r.g.dbPath)
		if err != nil {
			return nil, fmt.Errorf("db path: %w", err)
		}
		cfg.Store.Path = abs
	}
	return cfg, nil
}

func (r *runner) logger() logging.Logger {
	return logging.NewWriterLogger("patternshield", r.opts.Err, logging.ParseLevel(r.g.logLevel))
}

// setup builds the application for one command. The terminal notifier
// uses the configured threshold.
func (r *runner) setup(configure func(*app.Config)) (*app.Application, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	if configure != nil {
		configure(cfg)
	}
	appOpts := append([]app.Option{app.WithNotifier(NewTerminalNotifier(r.opts.Err), 0)}, r.opts.AppOptions...)
	return app.NewApplication(cfg, r.logger(), appOpts...)
}

func (r *runner) withApp(ctx context.Context, fn func(ctx context.Context, a *app.Application) error) error {
	return r.withConfiguredApp(ctx, nil, fn)
}

func (r *runner) withConfiguredApp(ctx context.Context, configure func(*app.Config), fn func(ctx context.Context, a *app.Application) error) error {
	a, err := r.setup(configure)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = a.Shutdown(sctx)
	}()
	return fn(ctx, a)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (r *runner) printResult(res *model.ScanResult) error {
	switch {
	case r.g.jsonOut:
		return r.printJSON(res)
	case r.g.markdown:
		_, err := fmt.Fprint(r.opts.Out, report.Markdown(res))
		return err
	default:
		NewRenderer(r.opts.Out).Result(res)
		return nil
	}
}

func (r *runner) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = fmt.Fprintln(r.opts.Out, string(data))
	return err
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ─── Scans ─────────────────────────────────────────────────────────────

func (r *runner) newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <url> [url...]",
		Short: "Fetch live pages and scan them",
		Long:  "Fetch a live page and scan it. With several URLs the pages are fetched concurrently as a batch job.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return r.withApp(ctx, func(ctx context.Context, a *app.Application) error {
				if len(args) > 1 {
					job, err := a.Orch.StartBatchJob(ctx, args)
					if err != nil {
						return err
					}
					return r.follow(ctx, a, job)
				}
				res, err := a.Scanner.ScanPage(ctx, args[0])
				if err != nil {
					return err
				}
				return r.printResult(res)
			})
		},
	}
}

func (r *runner) newScanHTMLCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "scan-html <file|->",
		Short: "Scan a saved HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if source == "" {
				source = args[0]
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				return r.printResult(a.Scanner.ScanHTML(ctx, source, body))
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source reference recorded with the scan (defaults to the file name)")
	return cmd
}

func (r *runner) newScanTextCmd() *cobra.Command {
	var whole bool
	cmd := &cobra.Command{
		Use:   "scan-text <file|->",
		Short: "Scan extracted text, one line per OCR line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				lines := evidence.SplitLines(string(body))
				if whole {
					lines = []string{strings.Join(strings.Fields(string(body)), " ")}
				}
				ref := args[0]
				if ref == "-" {
					ref = "text:stdin"
				}
				return r.printResult(a.Scanner.ScanLines(ctx, ref, lines))
			})
		},
	}
	cmd.Flags().BoolVar(&whole, "whole", false, "join all lines into one before matching")
	return cmd
}

func (r *runner) newScanImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-image <image-url>",
		Short: "OCR a screenshot and scan its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return r.withApp(ctx, func(ctx context.Context, a *app.Application) error {
				return r.printResult(a.Scanner.ScanImage(ctx, args[0]))
			})
		},
	}
}

func (r *runner) newScanURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-url <url>",
		Short: "Apply URL heuristics without loading the page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				res, err := a.Scanner.ScanURL(ctx, args[0])
				if err != nil {
					return err
				}
				return r.printResult(res)
			})
		},
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

func (r *runner) newCrawlCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a site breadth-first and scan every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return r.withApp(ctx, func(ctx context.Context, a *app.Application) error {
				job, err := a.Orch.StartCrawlJob(ctx, args[0], depth)
				if err != nil {
					return err
				}
				return r.follow(ctx, a, job)
			})
		},
	}
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "maximum link depth (0 uses config)")
	return cmd
}

func (r *runner) newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <url>",
		Short: "Re-scan a page whenever its content changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			configure := func(cfg *app.Config) {
				if interval > 0 {
					cfg.Watch.Interval = interval
				}
			}
			return r.withConfiguredApp(ctx, configure, func(ctx context.Context, a *app.Application) error {
				job, err := a.Orch.StartWatchJob(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(r.opts.Err, "watching %s every %s (ctrl-c to stop)\n", args[0], a.Config.Watch.Interval)
				return r.follow(ctx, a, job)
			})
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "check interval (0 uses config)")
	return cmd
}

// follow prints a job's events until it ends. Cancelling ctx cancels the
// job.
func (r *runner) follow(ctx context.Context, a *app.Application, job *app.Job) error {
	rd := NewRenderer(r.opts.Out)
	for {
		select {
		case <-ctx.Done():
			a.Orch.CancelJob(job.ID)
			ctx = context.Background()
		case ev, ok := <-job.Events:
			if !ok {
				final := a.Orch.GetJob(job.ID)
				if final == nil {
					return nil
				}
				if r.g.jsonOut {
					return r.printJSON(final)
				}
				fmt.Fprintf(r.opts.Out, "%s job %s: %d pages, %d flagged\n", final.Type, final.Status, len(final.Pages), final.Flagged)
				if final.Status == app.JobFailed {
					return errors.New(final.Error)
				}
				return nil
			}
			if r.g.jsonOut {
				continue
			}
			switch {
			case ev.Type == app.JobEventChange && ev.Change != nil && ev.Change.Result != nil:
				fmt.Fprintf(r.opts.Out, "changed: +%d -%d chars\n", ev.Change.Inserted, ev.Change.Deleted)
				rd.Result(ev.Change.Result)
			case ev.Page != nil && ev.Page.Error != "":
				fmt.Fprintf(r.opts.Out, "%-60s error: %s\n", ev.Page.URL, ev.Page.Error)
			case ev.Page != nil:
				fmt.Fprintf(r.opts.Out, "%-60s risk %2d  detections %d\n", ev.Page.URL, ev.Page.RiskScore, ev.Page.Detections)
			}
		}
	}
}

// ─── History and sites ─────────────────────────────────────────────────

func (r *runner) newHistoryCmd() *cobra.Command {
	var f store.ScanFilter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				scans, err := a.Store.ListScans(ctx, f)
				if err != nil {
					return err
				}
				if r.g.jsonOut {
					return r.printJSON(scans)
				}
				for _, s := range scans {
					fmt.Fprintf(r.opts.Out, "%s  %-5s risk %2d  %d detections  %s\n",
						s.Timestamp.Local().Format(time.DateTime), s.Kind, s.RiskScore, len(s.Detections), s.SourceRef)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Domain, "domain", "", "only scans of this domain")
	cmd.Flags().BoolVar(&f.OnlyFlagged, "flagged", false, "only scans with detections")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "maximum entries")
	return cmd
}

func (r *runner) newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage blocked sites",
	}

	var reason string
	block := &cobra.Command{
		Use:   "block <site>",
		Short: "Block a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				flag, err := a.Store.BlockSite(ctx, args[0], reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(r.opts.Out, "blocked %s\n", flag.Domain)
				return nil
			})
		},
	}
	block.Flags().StringVar(&reason, "reason", "", "why the site is blocked")

	unblock := &cobra.Command{
		Use:   "unblock <site>",
		Short: "Unblock a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				flag, err := a.Store.UnblockSite(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(r.opts.Out, "unblocked %s\n", flag.Domain)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List blocked sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				flags, err := a.Store.ListBlocked(ctx)
				if err != nil {
					return err
				}
				if r.g.jsonOut {
					return r.printJSON(flags)
				}
				for _, f := range flags {
					fmt.Fprintf(r.opts.Out, "%-40s %s\n", f.Domain, f.Reason)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(block, unblock, list)
	return cmd
}

// ─── Rules ─────────────────────────────────────────────────────────────

func (r *runner) newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the active detection rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			reg, err := app.LoadRules(cfg.RulesFile)
			if err != nil {
				return err
			}
			if r.g.jsonOut {
				return r.printJSON(reg.All())
			}
			fmt.Fprintf(r.opts.Out, "rules %s (%d)\n", reg.Version(), reg.Len())
			for _, rule := range reg.All() {
				fmt.Fprintf(r.opts.Out, "  %-24s %-22s severity %d  confidence %.2f\n",
					rule.ID, rule.Category, rule.Severity, rule.Confidence)
			}
			return nil
		},
	}
}

// ─── Serve ─────────────────────────────────────────────────────────────

func (r *runner) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			srv, err := server.NewServer(server.Config{
				AppConfig:  cfg,
				Logger:     r.logger(),
				AppOptions: r.opts.AppOptions,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			NewRenderer(r.opts.Out).Banner(cfg.Server.ListenAddr)
			hs := srv.HTTPServer()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			errCh := make(chan error, 1)
			go func() { errCh <- hs.ListenAndServe() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer scancel()
				return hs.Shutdown(sctx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
