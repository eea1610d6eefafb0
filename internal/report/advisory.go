package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
)

// DefaultAdvisoryTTL is how long an advisory stays up unless dismissed.
const DefaultAdvisoryTTL = 15 * time.Second

// Advisory is the warning shown for one source.
type Advisory struct {
	ID              string           `json:"id"`
	ScanID          string           `json:"scan_id"`
	Source          string           `json:"source"`
	Title           string           `json:"title"`
	Patterns        []AdvisoryItem   `json:"patterns"`
	RiskScore       int              `json:"risk_score"`
	Categories      []model.Category `json:"categories"`
	Recommendations []string         `json:"recommendations"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

type AdvisoryItem struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type advisoryEntry struct {
	adv   Advisory
	timer *time.Timer
}

// AdvisoryBoard keeps at most one live advisory per source. Posting a new
// advisory for a source replaces the old one under the same lock, so
// overlapping scans of one page never show two warnings.
type AdvisoryBoard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*advisoryEntry
	logger  logging.Logger
	now     func() time.Time
}

func NewAdvisoryBoard(ttl time.Duration, logger logging.Logger) *AdvisoryBoard {
	if ttl <= 0 {
		ttl = DefaultAdvisoryTTL
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &AdvisoryBoard{
		ttl:     ttl,
		entries: make(map[string]*advisoryEntry),
		logger:  logger.With(logging.Field{Key: "component", Value: "advisories"}),
		now:     time.Now,
	}
}

// Notify posts an advisory for result.SourceRef. Results without
// detections are ignored.
func (b *AdvisoryBoard) Notify(_ context.Context, result *model.ScanResult) error {
	if result == nil || !result.HasDetections() {
		return nil
	}
	now := b.now()
	adv := Advisory{
		ID:              uuid.New().String(),
		ScanID:          result.ID,
		Source:          result.SourceRef,
		Title:           "Dark Pattern Detected!",
		RiskScore:       result.RiskScore,
		Categories:      result.Categories(),
		Recommendations: append([]string(nil), result.Recommendations...),
		CreatedAt:       now,
		ExpiresAt:       now.Add(b.ttl),
	}
	for _, d := range result.Detections {
		adv.Patterns = append(adv.Patterns, AdvisoryItem{Name: d.Name, Message: d.Description})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.entries[adv.Source]; ok {
		old.timer.Stop()
	}
	id := adv.ID
	e := &advisoryEntry{adv: adv}
	e.timer = time.AfterFunc(b.ttl, func() { b.expire(adv.Source, id) })
	b.entries[adv.Source] = e

	b.logger.Debug("advisory posted",
		logging.Field{Key: "source", Value: adv.Source},
		logging.Field{Key: "patterns", Value: len(adv.Patterns)})
	return nil
}

func (b *AdvisoryBoard) expire(source, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[source]; ok && e.adv.ID == id {
		delete(b.entries, source)
	}
}

// Dismiss removes the advisory for source before it expires.
func (b *AdvisoryBoard) Dismiss(source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[source]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(b.entries, source)
	return true
}

// Get returns the live advisory for source.
func (b *AdvisoryBoard) Get(source string) (Advisory, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[source]
	if !ok {
		return Advisory{}, false
	}
	return e.adv, true
}

// Active returns live advisories, newest first.
func (b *AdvisoryBoard) Active() []Advisory {
	b.mu.Lock()
	out := make([]Advisory, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.adv)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Close stops all expiry timers and clears the board.
func (b *AdvisoryBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, e := range b.entries {
		e.timer.Stop()
		delete(b.entries, k)
	}
}
