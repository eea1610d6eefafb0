package server

import (
	"github.com/raysh454/patternshield/internal/community"
	"github.com/raysh454/patternshield/internal/model"
)

// ScanPageRequest asks for a live fetch and scan of a URL.
type ScanPageRequest struct {
	URL string `json:"url"`
}

// ScanHTMLRequest scans markup the client already has, e.g. from a browser
// extension content script.
type ScanHTMLRequest struct {
	SourceRef string `json:"source_ref"`
	HTML      string `json:"html"`
}

// ScanTextRequest scans plain text. Lines, when set, are scanned one by one
// as OCR output is.
type ScanTextRequest struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines"`
}

type ScanImageRequest struct {
	ImageRef string `json:"image_ref"`
}

type BlockSiteRequest struct {
	Reason string `json:"reason"`
}

// SubmitPatternResponse carries the stored report and the analyzer's
// review of it.
type SubmitPatternResponse struct {
	Pattern    *model.Pattern        `json:"pattern"`
	Validation *community.Validation `json:"validation"`
}

type PatternStatusRequest struct {
	Status model.PatternStatus `json:"status"`
}

type VoteRequest struct {
	Voter string `json:"voter"`
	Vote  string `json:"vote"`
}

type VoteResponse struct {
	PatternID string `json:"pattern_id"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

type CommentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

type StartCrawlJobRequest struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth"`
}

type StartWatchJobRequest struct {
	URL string `json:"url"`
}

type StartBatchJobRequest struct {
	URLs []string `json:"urls"`
}

// RulesResponse lists the active rule table.
type RulesResponse struct {
	Version string       `json:"version"`
	Rules   []RuleInfo   `json:"rules"`
	URL     []URLRuleRef `json:"url_rules"`
}

type RuleInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    model.Category `json:"category"`
	Severity    int            `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Description string         `json:"description"`
	Suggestion  string         `json:"suggestion"`
	Selectors   []string       `json:"selectors,omitempty"`
	Text        []string       `json:"text,omitempty"`
}

type URLRuleRef struct {
	ID       string         `json:"id"`
	Category model.Category `json:"category"`
	Severity int            `json:"severity"`
	Message  string         `json:"message"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
