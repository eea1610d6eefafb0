package matcher

import (
	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/rules"
)

// MatchURL evaluates the URL heuristic table. Each matching entry yields one
// detection with the fixed URL confidence.
func MatchURL(table []rules.URLRule, ev *evidence.URLEvidence) []model.Detection {
	if ev == nil {
		return nil
	}
	var out []model.Detection
	for _, u := range table {
		hit, ok := u.Match(ev.Lower, ev.Host)
		if !ok {
			continue
		}
		out = append(out, model.Detection{
			RuleID:          "url:" + u.ID,
			Name:            u.Message,
			Category:        u.Category,
			Severity:        u.Severity(),
			Confidence:      rules.URLConfidence,
			Description:     u.Message,
			MatchedEvidence: []string{hit},
		})
	}
	return out
}
