// Package watch re-scans a page on a fixed interval, but only when its
// visible text has changed since the previous scan.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/webclient"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrBusy is returned by Check when the previous check is still running.
var ErrBusy = errors.New("watch: previous check still running")

const maxSnippets = 5

type Config struct {
	// Interval between checks.
	Interval time.Duration `yaml:"interval"`

	// MinChange is how many changed characters trigger a re-scan.
	MinChange int `yaml:"min_change"`
}

func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second, MinChange: 1}
}

// Scanner scans a fetched page. assessor.Scanner implements it.
type Scanner interface {
	ScanResponse(ctx context.Context, pageURL string, resp *webclient.Response) (*model.ScanResult, error)
}

// Change describes one completed check.
type Change struct {
	URL       string    `json:"url"`
	CheckedAt time.Time `json:"checked_at"`

	// Changed is false when the text matched the previous snapshot and no
	// scan was run.
	Changed  bool     `json:"changed"`
	Inserted int      `json:"inserted"`
	Deleted  int      `json:"deleted"`
	Snippets []string `json:"snippets,omitempty"`

	Result *model.ScanResult `json:"result,omitempty"`
}

type Watcher struct {
	cfg     Config
	url     string
	web     webclient.WebClient
	scanner Scanner
	logger  logging.Logger
	onCheck func(Change)

	// running guards against overlapping checks.
	running sync.Mutex
	last    string
	primed  bool
}

type Option func(*Watcher)

// OnCheck registers a callback invoked after every completed check.
func OnCheck(fn func(Change)) Option { return func(w *Watcher) { w.onCheck = fn } }

func New(cfg Config, pageURL string, web webclient.WebClient, scanner Scanner, logger logging.Logger, opts ...Option) (*Watcher, error) {
	if web == nil || scanner == nil {
		return nil, errors.New("watch: web client and scanner are required")
	}
	if logger == nil {
		return nil, errors.New("watch: nil logger")
	}
	if _, err := evidence.FromURL(pageURL); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.MinChange <= 0 {
		cfg.MinChange = d.MinChange
	}
	w := &Watcher{
		cfg:     cfg,
		url:     pageURL,
		web:     web,
		scanner: scanner,
		logger: logger.With(
			logging.Field{Key: "component", Value: "watch"},
			logging.Field{Key: "url", Value: pageURL}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Run checks immediately and then on every tick until ctx is done. Checks
// run on the calling goroutine, so Run returns only after the last one has
// finished and ticks that arrive meanwhile are dropped by the ticker. Check
// errors are logged and the loop continues.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching page", logging.Field{Key: "interval", Value: w.cfg.Interval.String()})
	w.tick(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	_, err := w.Check(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		w.logger.Debug("skipping tick; check in progress")
	case ctx.Err() != nil:
	default:
		w.logger.Warn("check failed", logging.Field{Key: "error", Value: err.Error()})
	}
}

// Check fetches the page once and scans it if its text changed.
func (w *Watcher) Check(ctx context.Context) (Change, error) {
	if !w.running.TryLock() {
		return Change{}, ErrBusy
	}
	defer w.running.Unlock()

	resp, err := w.web.Get(ctx, w.url)
	if err != nil {
		return Change{}, fmt.Errorf("fetch %s: %w", w.url, err)
	}

	text := ""
	if resp.OK() && resp.IsHTML() {
		if set, err := evidence.FromHTML(resp.Body, nil); err == nil {
			text = set.FullText
		}
	}

	ch := Change{URL: w.url, CheckedAt: time.Now().UTC()}
	if w.primed {
		ch.Inserted, ch.Deleted, ch.Snippets = Diff(w.last, text)
		ch.Changed = ch.Inserted+ch.Deleted >= w.cfg.MinChange
	} else {
		ch.Changed = true
		ch.Inserted = len([]rune(text))
	}

	if ch.Changed {
		r, err := w.scanner.ScanResponse(ctx, w.url, resp)
		if err != nil {
			return Change{}, err
		}
		ch.Result = r
		w.last, w.primed = text, true
		w.logger.Info("page changed; rescanned",
			logging.Field{Key: "inserted", Value: ch.Inserted},
			logging.Field{Key: "deleted", Value: ch.Deleted},
			logging.Field{Key: "detections", Value: len(r.Detections)})
	}

	if w.onCheck != nil {
		w.onCheck(ch)
	}
	return ch, nil
}

// Diff counts inserted and deleted characters between two snapshots and
// returns up to five inserted snippets.
func Diff(prev, cur string) (inserted, deleted int, snippets []string) {
	if prev == cur {
		return 0, 0, nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(prev, cur, false))
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += n
			if s := strings.TrimSpace(d.Text); s != "" && len(snippets) < maxSnippets {
				snippets = append(snippets, s)
			}
		case diffmatchpatch.DiffDelete:
			deleted += n
		}
	}
	return inserted, deleted, snippets
}
