// Package fetcher scans a batch of pages concurrently.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/webclient"
)

var ErrEmptyBatch = errors.New("fetcher: no urls to scan")

// Scanner scans a page that was already fetched.
type Scanner interface {
	ScanResponse(ctx context.Context, pageURL string, resp *webclient.Response) (*model.ScanResult, error)
}

// Result is the outcome for one URL of a batch.
type Result struct {
	Index  int
	URL    string
	Result *model.ScanResult
	Err    error
}

// Fetcher fetches pages with bounded concurrency and scans each one.
type Fetcher struct {
	cfg     Config
	wc      webclient.WebClient
	scanner Scanner
	logger  logging.Logger
}

// New creates a Fetcher with the given webclient, scanner and logger.
func New(cfg Config, wc webclient.WebClient, scanner Scanner, logger logging.Logger) (*Fetcher, error) {
	if wc == nil {
		return nil, fmt.Errorf("fetcher: webclient is nil")
	}
	if scanner == nil {
		return nil, fmt.Errorf("fetcher: scanner is nil")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	d := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = d.MaxConcurrency
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = d.MaxURLs
	}
	return &Fetcher{
		cfg:     cfg,
		wc:      wc,
		scanner: scanner,
		logger:  logger.With(logging.Field{Key: "component", Value: "fetcher"}),
	}, nil
}

// Prepare validates and deduplicates pageURLs, keeping first-seen order
// and at most MaxURLs entries. Invalid URLs are returned separately.
func (f *Fetcher) Prepare(pageURLs []string) (valid []string, invalid []Result) {
	seen := make(map[string]bool, len(pageURLs))
	for i, u := range pageURLs {
		if seen[u] {
			continue
		}
		seen[u] = true
		if _, err := evidence.FromURL(u); err != nil {
			invalid = append(invalid, Result{Index: i, URL: u, Err: err})
			continue
		}
		if len(valid) == f.cfg.MaxURLs {
			f.logger.Warn("batch truncated", logging.Field{Key: "max_urls", Value: f.cfg.MaxURLs})
			break
		}
		valid = append(valid, u)
	}
	return valid, invalid
}

// Scan fetches and scans every URL. onResult, if set, is called from a
// single goroutine as each page finishes. The returned slice follows the
// order of pageURLs.
func (f *Fetcher) Scan(ctx context.Context, pageURLs []string, onResult func(Result)) ([]Result, error) {
	if len(pageURLs) == 0 {
		return nil, ErrEmptyBatch
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, f.cfg.MaxConcurrency)
	resCh := make(chan Result)
	collectorDone := make(chan struct{})

	out := make([]Result, len(pageURLs))
	go func() {
		defer close(collectorDone)
		for r := range resCh {
			out[r.Index] = r
			if onResult != nil {
				onResult(r)
			}
		}
	}()

	for i, pageURL := range pageURLs {
		if ctx.Err() != nil {
			out[i] = Result{Index: i, URL: pageURL, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				resCh <- Result{Index: i, URL: pageURL, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			resCh <- f.scanOne(ctx, i, pageURL)
		}(i, pageURL)
	}

	wg.Wait()
	close(resCh)
	<-collectorDone
	return out, nil
}

func (f *Fetcher) scanOne(ctx context.Context, i int, pageURL string) Result {
	res := Result{Index: i, URL: pageURL}
	resp, err := f.HTTPGet(ctx, pageURL)
	if err != nil {
		f.logger.Warn("error while fetching page",
			logging.Field{Key: "url", Value: pageURL},
			logging.Field{Key: "error", Value: err.Error()})
		res.Err = err
		return res
	}
	res.Result, res.Err = f.scanner.ScanResponse(ctx, pageURL, resp)
	return res
}

// HTTPGet fetches one page.
func (f *Fetcher) HTTPGet(ctx context.Context, page string) (*webclient.Response, error) {
	resp, err := f.wc.Get(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("error GETting %s: %w", page, err)
	}
	return resp, nil
}
