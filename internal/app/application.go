package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/raysh454/patternshield/internal/assessor"
	"github.com/raysh454/patternshield/internal/community"
	"github.com/raysh454/patternshield/internal/company"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/matcher"
	"github.com/raysh454/patternshield/internal/ocr"
	"github.com/raysh454/patternshield/internal/report"
	"github.com/raysh454/patternshield/internal/rules"
	"github.com/raysh454/patternshield/internal/store"
	"github.com/raysh454/patternshield/internal/webclient"
)

// Application is the global runtime state container. It owns the shared
// services (rules, store, scanner, reporter, jobs) so that the CLI and the
// API server wire the same pipeline.
type Application struct {
	Config *Config
	Logger logging.Logger

	Rules      *rules.Registry
	Matcher    *matcher.Matcher
	Store      *store.Store
	Web        webclient.WebClient
	Bus        *Bus
	Advisories *report.AdvisoryBoard
	Reporter   *report.Reporter
	Scanner    *assessor.Scanner
	Community  *community.Analyzer
	Orch       *Orchestrator

	ownsWeb bool
}

type extraNotifier struct {
	n         report.Notifier
	threshold int
}

type options struct {
	web       webclient.WebClient
	ocr       assessor.TextExtractor
	company   assessor.CompanyLookup
	notifiers []extraNotifier
}

type Option func(*options)

// WithWebClient injects the page fetcher instead of building one from
// Config.WebClient. The caller keeps ownership of it.
func WithWebClient(wc webclient.WebClient) Option { return func(o *options) { o.web = wc } }

func WithTextExtractor(te assessor.TextExtractor) Option { return func(o *options) { o.ocr = te } }

func WithCompanyLookup(cl assessor.CompanyLookup) Option { return func(o *options) { o.company = cl } }

// WithNotifier adds a notifier next to the advisory board and event bus.
// minSeverity <= 0 uses Config.Report.NotifyThreshold.
func WithNotifier(n report.Notifier, minSeverity int) Option {
	return func(o *options) { o.notifiers = append(o.notifiers, extraNotifier{n: n, threshold: minSeverity}) }
}

// NewApplication builds every service from cfg. Call Shutdown to release
// the database, the web client and running jobs.
func NewApplication(cfg *Config, logger logging.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("app: nil logger")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{Config: cfg, Logger: logger, Bus: NewBus()}
	ok := false
	defer func() {
		if !ok {
			_ = a.Shutdown(context.Background())
		}
	}()

	reg, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	a.Rules = reg

	if a.Matcher, err = matcher.New(reg, logger); err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}

	dbCfg := cfg.Store
	if dbCfg.Path, err = cfg.DatabasePath(); err != nil {
		return nil, err
	}
	if a.Store, err = store.Open(dbCfg, logger); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.Web = o.web
	if a.Web == nil {
		if a.Web, err = webclient.New(cfg.WebClient, logger); err != nil {
			return nil, fmt.Errorf("webclient: %w", err)
		}
		a.ownsWeb = true
	}

	a.Advisories = report.NewAdvisoryBoard(cfg.Report.AdvisoryTTL, logger)
	repOpts := []report.Option{
		report.WithRecorder(a.Store),
		report.WithRecorder(a.Bus),
		// The in-app advisory shows for any detection; louder sinks use the
		// configured threshold.
		report.WithNotifier(a.Advisories, 1),
		report.WithNotifier(a.Bus, cfg.Report.NotifyThreshold),
	}
	for _, n := range o.notifiers {
		th := n.threshold
		if th <= 0 {
			th = cfg.Report.NotifyThreshold
		}
		repOpts = append(repOpts, report.WithNotifier(n.n, th))
	}
	a.Reporter = report.New(logger, repOpts...)

	hc := &http.Client{Timeout: cfg.Assessor.CollaboratorTimeout}
	te := o.ocr
	if te == nil {
		te = ocr.New(cfg.OCR, hc, logger)
	}
	scanOpts := []assessor.Option{
		assessor.WithWebClient(a.Web),
		assessor.WithTextExtractor(te),
		assessor.WithPublisher(a.Reporter),
	}
	switch {
	case o.company != nil:
		scanOpts = append(scanOpts, assessor.WithCompanyLookup(o.company))
	case cfg.Company.Enabled:
		scanOpts = append(scanOpts, assessor.WithCompanyLookup(company.New(cfg.Company.Endpoint, hc, logger)))
	}
	if a.Scanner, err = assessor.New(cfg.Assessor, a.Matcher, logger, scanOpts...); err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	if a.Community, err = community.New(a.Matcher, logger,
		community.WithStore(a.Store),
		community.WithImageScanner(a.Scanner),
	); err != nil {
		return nil, fmt.Errorf("community: %w", err)
	}

	a.Orch = NewOrchestrator(cfg, a.Web, a.Scanner, logger)

	ok = true
	return a, nil
}

// LoadRules returns the built-in rule table plus the rules in path, if any.
func LoadRules(path string) (*rules.Registry, error) {
	if path == "" {
		return rules.Default()
	}
	extra, err := rules.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return rules.WithCustom(extra)
}

// Shutdown stops running jobs and releases the store and web client. It is
// safe on a partially built Application.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	if a.Orch != nil {
		done := make(chan struct{})
		go func() {
			a.Orch.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.Logger.Warn("orchestrator shutdown timed out")
		}
	}
	if a.Advisories != nil {
		a.Advisories.Close()
	}

	var errs []error
	if a.ownsWeb && a.Web != nil {
		if err := a.Web.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close webclient: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
