package app

import (
	"context"
	"sync"
	"time"

	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/report"
)

type EventType string

const (
	EventScanCompleted  EventType = "scan_completed"
	EventAlertTriggered EventType = "alert_triggered"
	EventPatternAdded   EventType = "pattern_added"
	EventPatternUpdated EventType = "pattern_updated"
)

// Event is one live update pushed to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanSummary is the scan_completed payload.
type ScanSummary struct {
	ScanID     string   `json:"scan_id"`
	SourceRef  string   `json:"source_ref"`
	Domain     string   `json:"domain,omitempty"`
	RiskScore  int      `json:"risk_score"`
	Detections int      `json:"patterns_found"`
	Categories []string `json:"categories,omitempty"`
}

// AlertPayload is the alert_triggered payload.
type AlertPayload struct {
	ScanID  string         `json:"scan_id"`
	Message string         `json:"message"`
	Alerts  []report.Alert `json:"alerts"`
}

// Bus fans events out to subscribers. Slow subscribers miss events rather
// than block publishers. It is both a report.Recorder and a report.Notifier.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	now  func() time.Time
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), now: time.Now}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(t EventType, data any) {
	ev := Event{Type: t, Data: data, Timestamp: b.now().UTC()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		// Non-blocking send; drop if buffer is full.
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) RecordScan(_ context.Context, r *model.ScanResult) error {
	s := ScanSummary{
		ScanID:     r.ID,
		SourceRef:  r.SourceRef,
		Domain:     r.Domain,
		RiskScore:  r.RiskScore,
		Detections: len(r.Detections),
	}
	for _, c := range r.Categories() {
		s.Categories = append(s.Categories, string(c))
	}
	b.Publish(EventScanCompleted, s)
	return nil
}

func (b *Bus) Notify(_ context.Context, r *model.ScanResult) error {
	b.Publish(EventAlertTriggered, AlertPayload{
		ScanID:  r.ID,
		Message: report.Summary(r),
		Alerts:  report.Alerts(r),
	})
	return nil
}
