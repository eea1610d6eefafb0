package assessor

import (
	"math"

	"github.com/raysh454/patternshield/internal/model"
)

// NoConcerns is the single recommendation for a scan without detections.
const NoConcerns = "No concerns detected - continue with caution"

var recommendations = map[model.Category]string{
	model.CategoryHiddenCost:         "Look for all fees and charges before completing purchase",
	model.CategoryForcedRenewal:      "Disable auto-renewal immediately after signup",
	model.CategoryCancellationTrap:   "Document cancellation process before subscribing",
	model.CategoryPreChecked:         "Uncheck any pre-selected add-ons you don't need",
	model.CategoryCountdownPressure:  "Take time to evaluate - ignore artificial urgency",
	model.CategoryMisleadingLanguage: "Read all terms and conditions carefully",
}

// Recommendation returns the canned advice for a category.
func Recommendation(c model.Category) string {
	if r, ok := recommendations[c]; ok {
		return r
	}
	return "Review this page carefully before continuing"
}

// RiskScore is round(clamp(mean(severity*confidence), 0, 10)). It is 0
// exactly when there are no detections; any detection scores at least 1.
func RiskScore(ds []model.Detection) int {
	if len(ds) == 0 {
		return 0
	}
	var sum float64
	for _, d := range ds {
		sum += float64(d.Severity) * d.Confidence
	}
	mean := math.Max(0, math.Min(10, sum/float64(len(ds))))
	score := int(math.Round(mean))
	if score < 1 {
		score = 1
	}
	return score
}

// Recommendations returns one entry per distinct category, in first-seen
// order, or exactly NoConcerns.
func Recommendations(ds []model.Detection) []string {
	if len(ds) == 0 {
		return []string{NoConcerns}
	}
	seen := make(map[model.Category]bool, len(ds))
	var out []string
	for _, d := range ds {
		if seen[d.Category] {
			continue
		}
		seen[d.Category] = true
		out = append(out, Recommendation(d.Category))
	}
	return out
}

// AnalysisConfidence estimates how much to trust a scan given how much
// evidence it saw. lines is the number of text lines or elements examined.
func AnalysisConfidence(ds []model.Detection, lines int) float64 {
	c := 0.5
	if lines > 3 {
		c += 0.2
	}
	if lines > 10 {
		c += 0.1
	}
	if len(ds) > 0 {
		c += 0.2
	}
	for _, d := range ds {
		if d.Confidence > 0.8 {
			c += 0.1
			break
		}
	}
	return math.Min(c, 1)
}

// score fills in the derived fields of r. examined is the number of lines
// or elements the scan looked at.
func score(r *model.ScanResult, examined int) {
	r.RiskScore = RiskScore(r.Detections)
	r.Recommendations = Recommendations(r.Detections)
	r.AnalysisConfidence = AnalysisConfidence(r.Detections, examined)
}
