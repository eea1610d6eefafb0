// Package testutil provides shared test doubles for use across package tests.
// Each dummy satisfies the corresponding production interface structurally,
// so components can be exercised without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of warnings logged so far.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Pages maps a URL to the HTML body returned for it; unknown URLs get a
// 404 with an empty body. Set FailURLs[url] = true to force an error.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	FailURLs      map[string]bool

	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	body, ok := d.Pages[req.URL]
	fail := d.FailURLs[req.URL]
	d.mu.Unlock()

	if fail {
		return nil, errors.New("dummy fetch fail for " + req.URL)
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	return &webclient.Response{
		Request:    req,
		Headers:    h,
		Body:       []byte(body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// SetPage replaces the body served for url.
func (d *DummyWebClient) SetPage(url, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Pages == nil {
		d.Pages = map[string]string{}
	}
	d.Pages[url] = body
}

// RequestCount returns how many requests were made.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Reporter sinks ────────────────────────────────────────────────────

// RecordingSink records every result it receives. It satisfies both the
// report.Recorder and report.Notifier interfaces.
type RecordingSink struct {
	Err   error
	Panic bool

	mu      sync.Mutex
	Results []*model.ScanResult
}

func (s *RecordingSink) record(r *model.ScanResult) error {
	if s.Panic {
		panic("recording sink panic")
	}
	s.mu.Lock()
	s.Results = append(s.Results, r)
	s.mu.Unlock()
	return s.Err
}

func (s *RecordingSink) RecordScan(_ context.Context, r *model.ScanResult) error { return s.record(r) }

func (s *RecordingSink) Notify(_ context.Context, r *model.ScanResult) error { return s.record(r) }

// Count returns the number of results received.
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Results)
}

// ─── Collaborators ─────────────────────────────────────────────────────

// StaticOCR returns fixed lines, or Err.
type StaticOCR struct {
	Lines []string
	Err   error
	Calls int
}

func (o *StaticOCR) ExtractText(_ context.Context, _ string) ([]string, error) {
	o.Calls++
	if o.Err != nil {
		return nil, o.Err
	}
	return append([]string(nil), o.Lines...), nil
}

// StaticCompany returns a fixed company, or Err.
type StaticCompany struct {
	Company *model.Company
	Err     error
}

func (c *StaticCompany) Lookup(_ context.Context, domain string) (*model.Company, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Company == nil {
		return &model.Company{Name: domain, Domain: domain}, nil
	}
	cp := *c.Company
	return &cp, nil
}
