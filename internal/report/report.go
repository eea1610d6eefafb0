// Package report delivers finished scans to their sinks. Recorders see
// every scan; notifiers only see scans worth interrupting the user for.
// A failing sink never affects the scan or the other sinks.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
)

// DefaultNotifyThreshold is the minimum severity for user notifications.
const DefaultNotifyThreshold = 3

// Recorder persists or forwards every scan, including empty ones.
type Recorder interface {
	RecordScan(ctx context.Context, result *model.ScanResult) error
}

// Notifier interrupts the user about a scan with detections.
type Notifier interface {
	Notify(ctx context.Context, result *model.ScanResult) error
}

type notifier struct {
	n         Notifier
	threshold int
}

// Reporter fans a ScanResult out to its sinks. Each sink is called at most
// once per Publish.
type Reporter struct {
	recorders []Recorder
	notifiers []notifier
	logger    logging.Logger
}

type Option func(*Reporter)

func WithRecorder(r Recorder) Option {
	return func(rep *Reporter) {
		if r != nil {
			rep.recorders = append(rep.recorders, r)
		}
	}
}

// WithNotifier registers n for scans whose highest severity reaches
// minSeverity. Values below 1 are treated as 1.
func WithNotifier(n Notifier, minSeverity int) Option {
	return func(rep *Reporter) {
		if n == nil {
			return
		}
		if minSeverity < 1 {
			minSeverity = 1
		}
		rep.notifiers = append(rep.notifiers, notifier{n: n, threshold: minSeverity})
	}
}

func New(logger logging.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = logging.Nop{}
	}
	r := &Reporter{logger: logger.With(logging.Field{Key: "component", Value: "reporter"})}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ShouldNotify reports whether result reaches threshold.
func ShouldNotify(result *model.ScanResult, threshold int) bool {
	return result != nil && result.HasDetections() && result.MaxSeverity() >= threshold
}

// Publish delivers result. It never fails: sink errors and panics are
// logged and dropped.
func (r *Reporter) Publish(ctx context.Context, result *model.ScanResult) {
	if result == nil {
		return
	}
	for _, rec := range r.recorders {
		r.call(ctx, "record", fmt.Sprintf("%T", rec), result, rec.RecordScan)
	}
	for _, n := range r.notifiers {
		if !ShouldNotify(result, n.threshold) {
			continue
		}
		r.call(ctx, "notify", fmt.Sprintf("%T", n.n), result, n.n.Notify)
	}
}

func (r *Reporter) call(ctx context.Context, role, sink string, result *model.ScanResult, fn func(context.Context, *model.ScanResult) error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("sink panicked",
				logging.Field{Key: "role", Value: role},
				logging.Field{Key: "sink", Value: sink},
				logging.Field{Key: "scan_id", Value: result.ID},
				logging.Field{Key: "panic", Value: fmt.Sprint(rec)})
		}
	}()
	if err := fn(ctx, result); err != nil {
		r.logger.Warn("sink failed",
			logging.Field{Key: "role", Value: role},
			logging.Field{Key: "sink", Value: sink},
			logging.Field{Key: "scan_id", Value: result.ID},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// Summary is the one-line notification text for result.
func Summary(result *model.ScanResult) string {
	names := make([]string, 0, len(result.Detections))
	for _, d := range result.Detections {
		names = append(names, d.Name)
	}
	where := result.Domain
	if where == "" {
		where = result.SourceRef
	}
	return fmt.Sprintf("%s detected on %s", strings.Join(names, ", "), where)
}
