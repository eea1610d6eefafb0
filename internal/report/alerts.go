package report

import (
	"fmt"
	"time"

	"github.com/raysh454/patternshield/internal/model"
)

type Action string

const (
	ActionBlock Action = "block"
	ActionWarn  Action = "warn"
)

// BlockSeverity is the lowest severity that recommends blocking.
const BlockSeverity = 4

// Alert is a protection alert derived from one detection.
type Alert struct {
	ID        string         `json:"id"`
	ScanID    string         `json:"scan_id"`
	Source    string         `json:"source"`
	RuleID    string         `json:"rule_id"`
	Category  model.Category `json:"category"`
	Severity  int            `json:"severity"`
	Message   string         `json:"message"`
	Action    Action         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
}

func ActionFor(severity int) Action {
	if severity >= BlockSeverity {
		return ActionBlock
	}
	return ActionWarn
}

// Alerts returns one alert per detection, in detection order.
func Alerts(result *model.ScanResult) []Alert {
	if result == nil {
		return nil
	}
	out := make([]Alert, 0, len(result.Detections))
	for i, d := range result.Detections {
		out = append(out, Alert{
			ID:        fmt.Sprintf("%s-%d", result.ID, i+1),
			ScanID:    result.ID,
			Source:    result.SourceRef,
			RuleID:    d.RuleID,
			Category:  d.Category,
			Severity:  d.Severity,
			Message:   d.Description,
			Action:    ActionFor(d.Severity),
			Timestamp: result.Timestamp,
		})
	}
	return out
}
