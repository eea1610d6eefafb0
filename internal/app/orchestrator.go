package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/patternshield/internal/enumerator"
	"github.com/raysh454/patternshield/internal/fetcher"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/watch"
	"github.com/raysh454/patternshield/internal/webclient"
)

var ErrClosed = errors.New("orchestrator is closed")

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventChange   JobEventType = "change"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int         `json:"processed,omitempty"`
	Total     int         `json:"total,omitempty"`
	Page      *PageResult `json:"page,omitempty"`

	// For watch jobs
	Change *watch.Change `json:"change,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

type JobType string

const (
	JobCrawl JobType = "crawl"
	JobWatch JobType = "watch"
	JobBatch JobType = "batch"
)

// PageResult is the outcome for one page of a job.
type PageResult struct {
	URL        string `json:"url"`
	ScanID     string `json:"scan_id,omitempty"`
	RiskScore  int    `json:"risk_score"`
	Detections int    `json:"detections"`
	Error      string `json:"error,omitempty"`
}

type Job struct {
	ID        string        `json:"id"`
	Type      JobType       `json:"type"`
	Target    string        `json:"target"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Pages   []PageResult `json:"pages,omitempty"`
	Flagged int          `json:"flagged"`
}

// Scanner scans a fetched page. assessor.Scanner implements it.
type Scanner = watch.Scanner

// Orchestrator runs long-lived crawl and watch jobs in the background and
// streams their progress as events.
type Orchestrator struct {
	cfg     *Config
	web     webclient.WebClient
	scanner Scanner
	logger  logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

// NewOrchestrator ties together config, the page fetcher and the scanner.
func NewOrchestrator(cfg *Config, web webclient.WebClient, scanner Scanner, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Orchestrator{
		cfg:     cfg,
		web:     web,
		scanner: scanner,
		logger:  logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
	}
}

func (o *Orchestrator) ensureJobMaps() {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	if o.jobCancels == nil {
		o.jobCancels = make(map[string]context.CancelFunc)
	}
}

func (o *Orchestrator) newJob(t JobType, target string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Target:    target,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 64),
	}
}

func (o *Orchestrator) updateJob(jobID string, fn func(*Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

// emitJobEvent sends under jobsMu so it never races the close in start;
// a finished job has a nil Events channel.
func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok || job == nil || job.Events == nil {
		return
	}
	ev.JobID = jobID

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

// progressCallback returns a function reporting processed/total progress.
func (o *Orchestrator) progressCallback(jobID string) func(processed, total int) {
	return func(processed, total int) {
		o.emitJobEvent(jobID, JobEvent{Type: JobEventProgress, Processed: processed, Total: total})
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.updateJob(jobID, func(j *Job) {
		j.Status = status
		j.Error = errMsg
	})
	ev := JobEvent{Type: JobEventStatus, Status: status, Error: errMsg}
	if status == JobDone {
		ev.Type = JobEventResult
	}
	o.emitJobEvent(jobID, ev)
}

// start registers job and runs fn in the background. The job's final status
// follows fn's error and the job context.
func (o *Orchestrator) start(ctx context.Context, job *Job, fn func(ctx context.Context, jobID string) error) (*Job, error) {
	o.ensureJobMaps()

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return nil, ErrClosed
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	o.wg.Add(1)
	o.jobsMu.Unlock()

	o.emitJobEvent(job.ID, JobEvent{Type: JobEventStatus, Status: JobPending})
	snapshot := o.GetJob(job.ID)

	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.jobsMu.Lock()
			delete(o.jobCancels, job.ID)
			job.EndedAt = time.Now().UTC()
			// Close events channel so websocket loop can terminate cleanly
			close(job.Events)
			job.Events = nil
			o.jobsMu.Unlock()
			o.scheduleRemoval(job.ID)
		}()

		o.setStatus(job.ID, JobRunning, "")
		err := fn(jobCtx, job.ID)

		switch {
		case jobCtx.Err() != nil:
			o.setStatus(job.ID, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			o.logger.Warn("job failed",
				logging.Field{Key: "job_id", Value: job.ID},
				logging.Field{Key: "error", Value: err.Error()})
			o.setStatus(job.ID, JobFailed, err.Error())
		default:
			o.setStatus(job.ID, JobDone, "")
		}
	}()

	return snapshot, nil
}

func (o *Orchestrator) scheduleRemoval(jobID string) {
	if o.cfg.JobRetention <= 0 {
		return
	}
	time.AfterFunc(o.cfg.JobRetention, func() {
		o.jobsMu.Lock()
		delete(o.jobs, jobID)
		o.jobsMu.Unlock()
	})
}

// StartCrawlJob crawls target breadth-first and scans every page it
// fetches. maxDepth <= 0 uses the configured depth.
func (o *Orchestrator) StartCrawlJob(ctx context.Context, target string, maxDepth int) (*Job, error) {
	if o.web == nil || o.scanner == nil {
		return nil, errors.New("orchestrator: crawl needs a web client and scanner")
	}
	crawlCfg := o.cfg.Crawl
	if maxDepth > 0 {
		crawlCfg.MaxDepth = maxDepth
	}
	spider := enumerator.NewSpider(crawlCfg, o.web, o.logger)

	return o.start(ctx, o.newJob(JobCrawl, target), func(ctx context.Context, jobID string) error {
		progress := o.progressCallback(jobID)
		processed := 0
		_, err := spider.Crawl(ctx, target, func(v enumerator.Visit) {
			page := o.scanVisit(ctx, v)
			processed++
			o.updateJob(jobID, func(j *Job) {
				j.Pages = append(j.Pages, page)
				if page.Detections > 0 {
					j.Flagged++
				}
			})
			o.emitJobEvent(jobID, JobEvent{Type: JobEventProgress, Processed: processed, Total: crawlCfg.MaxPages, Page: &page})
		})
		progress(processed, processed)
		return err
	})
}

// StartBatchJob fetches and scans urls concurrently. Invalid and duplicate
// URLs are dropped before the job starts; an empty remainder is an error.
func (o *Orchestrator) StartBatchJob(ctx context.Context, urls []string) (*Job, error) {
	if o.web == nil || o.scanner == nil {
		return nil, errors.New("orchestrator: batch needs a web client and scanner")
	}
	f, err := fetcher.New(o.cfg.Batch, o.web, o.scanner, o.logger)
	if err != nil {
		return nil, err
	}
	valid, invalid := f.Prepare(urls)
	for _, r := range invalid {
		o.logger.Warn("batch url rejected",
			logging.Field{Key: "url", Value: r.URL},
			logging.Field{Key: "error", Value: r.Err.Error()})
	}
	if len(valid) == 0 {
		return nil, fetcher.ErrEmptyBatch
	}

	target := valid[0]
	if len(valid) > 1 {
		target = fmt.Sprintf("%s (+%d more)", valid[0], len(valid)-1)
	}
	return o.start(ctx, o.newJob(JobBatch, target), func(ctx context.Context, jobID string) error {
		processed := 0
		_, err := f.Scan(ctx, valid, func(r fetcher.Result) {
			page := PageResult{URL: r.URL}
			if r.Err != nil {
				page.Error = r.Err.Error()
			} else {
				page.ScanID = r.Result.ID
				page.RiskScore = r.Result.RiskScore
				page.Detections = len(r.Result.Detections)
			}
			processed++
			o.updateJob(jobID, func(j *Job) {
				j.Pages = append(j.Pages, page)
				if page.Detections > 0 {
					j.Flagged++
				}
			})
			o.emitJobEvent(jobID, JobEvent{Type: JobEventProgress, Processed: processed, Total: len(valid), Page: &page})
		})
		return err
	})
}

func (o *Orchestrator) scanVisit(ctx context.Context, v enumerator.Visit) PageResult {
	page := PageResult{URL: v.URL}
	if v.Err != nil {
		page.Error = v.Err.Error()
		return page
	}
	r, err := o.scanner.ScanResponse(ctx, v.URL, v.Response)
	if err != nil {
		page.Error = err.Error()
		return page
	}
	page.ScanID = r.ID
	page.RiskScore = r.RiskScore
	page.Detections = len(r.Detections)
	return page
}

// StartWatchJob re-scans target whenever it changes until the job is
// cancelled.
func (o *Orchestrator) StartWatchJob(ctx context.Context, target string) (*Job, error) {
	if o.web == nil || o.scanner == nil {
		return nil, errors.New("orchestrator: watch needs a web client and scanner")
	}
	job := o.newJob(JobWatch, target)
	w, err := watch.New(o.cfg.Watch, target, o.web, o.scanner, o.logger, watch.OnCheck(func(c watch.Change) {
		if !c.Changed {
			return
		}
		page := PageResult{URL: c.URL}
		if c.Result != nil {
			page.ScanID = c.Result.ID
			page.RiskScore = c.Result.RiskScore
			page.Detections = len(c.Result.Detections)
		}
		o.updateJob(job.ID, func(j *Job) {
			j.Pages = append(j.Pages, page)
			if page.Detections > 0 {
				j.Flagged++
			}
		})
		o.emitJobEvent(job.ID, JobEvent{Type: JobEventChange, Change: &c, Page: &page})
	}))
	if err != nil {
		return nil, err
	}
	return o.start(ctx, job, func(ctx context.Context, _ string) error {
		return w.Run(ctx)
	})
}

func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a snapshot of the job, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	cp.Pages = append([]PageResult(nil), j.Pages...)
	return &cp
}

// ListJobs returns snapshots of all retained jobs, newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	o.jobsMu.Unlock()

	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if j := o.GetJob(id); j != nil {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Close cancels running jobs, waits for them to finish and rejects new
// ones. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return
	}
	o.closed = true
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()
	o.wg.Wait()
}
