package model

import "time"

// ScanKind identifies which adapter produced a ScanResult.
type ScanKind string

const (
	ScanKindPage  ScanKind = "page"
	ScanKindHTML  ScanKind = "html"
	ScanKindImage ScanKind = "image"
	ScanKindText  ScanKind = "text"
	ScanKindURL   ScanKind = "url"
)

// Detection is one fired rule.
type Detection struct {
	// RuleID is the id of the rule that fired.
	RuleID string `json:"rule_id"`

	// Name is the rule's human-readable name.
	Name string `json:"name"`

	// Category is the rule's pattern category.
	Category Category `json:"category"`

	// Severity is the rule's fixed severity, 1..5.
	Severity int `json:"severity"`

	// Confidence is the rule's fixed confidence, 0..1.
	Confidence float64 `json:"confidence"`

	// Description explains what the pattern does to the user.
	Description string `json:"description"`

	// Suggestion is the rule's advice for the user.
	Suggestion string `json:"suggestion,omitempty"`

	// MatchedEvidence holds short excerpts of what triggered the rule.
	MatchedEvidence []string `json:"matched_evidence"`
}

// Company is the cosmetic enrichment attached to page and URL scans.
type Company struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Industry    string `json:"industry,omitempty"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
}

// ScanResult is the outcome of one scan. It is built once and not mutated
// after it has been handed to the reporter.
type ScanResult struct {
	// ID is a unique identifier for this scan.
	ID string `json:"id"`

	// Kind is the adapter that produced the evidence.
	Kind ScanKind `json:"kind"`

	// SourceRef is the page URL or a synthetic reference such as
	// "uploaded-image:<hash>".
	SourceRef string `json:"source_ref"`

	// Title and Description come from the page head when available.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// Domain is the canonical host of SourceRef, empty for non-URL sources.
	Domain string `json:"domain,omitempty"`

	// Secure reports whether the page was served over https.
	Secure bool `json:"secure"`

	// Company is optional enrichment from the company lookup.
	Company *Company `json:"company,omitempty"`

	// Timestamp is when the scan completed.
	Timestamp time.Time `json:"timestamp"`

	// Detections are in registry order.
	Detections []Detection `json:"detections"`

	// RiskScore is 0..10 and is 0 exactly when Detections is empty.
	RiskScore int `json:"risk_score"`

	// Recommendations has one entry per distinct detected category.
	Recommendations []string `json:"recommendations"`

	// Diagnostics records rules that were skipped because they could not
	// be evaluated.
	Diagnostics []string `json:"diagnostics,omitempty"`

	// AnalysisConfidence is how much the evidence supports the result, 0..1.
	AnalysisConfidence float64 `json:"analysis_confidence"`

	// Suspicious lists evidence worth a closer look even when no rule fired,
	// such as text hidden from view or set in fine print.
	Suspicious []SuspiciousElement `json:"suspicious,omitempty"`

	// RulesVersion identifies the rule table used.
	RulesVersion string `json:"rules_version,omitempty"`
}

// SuspiciousElement is one piece of evidence flagged for review.
type SuspiciousElement struct {
	Element   string `json:"element"`
	Reason    string `json:"reason"`
	RiskLevel string `json:"risk_level"`
}

// MaxSeverity returns the highest detection severity, or 0.
func (r *ScanResult) MaxSeverity() int {
	max := 0
	for _, d := range r.Detections {
		if d.Severity > max {
			max = d.Severity
		}
	}
	return max
}

// Categories returns the distinct categories in first-seen order.
func (r *ScanResult) Categories() []Category {
	seen := make(map[Category]bool, len(r.Detections))
	var out []Category
	for _, d := range r.Detections {
		if seen[d.Category] {
			continue
		}
		seen[d.Category] = true
		out = append(out, d.Category)
	}
	return out
}

// HasDetections reports whether any rule fired.
func (r *ScanResult) HasDetections() bool { return len(r.Detections) > 0 }
