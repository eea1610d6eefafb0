package model

import (
	"fmt"
	"strings"
	"time"
)

// PatternKind separates reported dark patterns from praised alternatives.
type PatternKind string

const (
	KindDarkPattern        PatternKind = "dark_pattern"
	KindEthicalAlternative PatternKind = "ethical_alternative"
)

func (k PatternKind) Valid() bool {
	return k == KindDarkPattern || k == KindEthicalAlternative
}

// Industry is the kind of business a report is about.
type Industry string

const (
	IndustrySaaS      Industry = "saas"
	IndustryStreaming Industry = "streaming"
	IndustryNews      Industry = "news"
	IndustryFitness   Industry = "fitness"
	IndustryEducation Industry = "education"
	IndustryEcommerce Industry = "ecommerce"
	IndustryFintech   Industry = "fintech"
	IndustryGaming    Industry = "gaming"
	IndustryOther     Industry = "other"
)

var allIndustries = []Industry{
	IndustrySaaS, IndustryStreaming, IndustryNews, IndustryFitness, IndustryEducation,
	IndustryEcommerce, IndustryFintech, IndustryGaming, IndustryOther,
}

func Industries() []Industry { return append([]Industry(nil), allIndustries...) }

func (i Industry) Valid() bool {
	for _, k := range allIndustries {
		if i == k {
			return true
		}
	}
	return false
}

type PatternStatus string

const (
	StatusPending  PatternStatus = "pending"
	StatusApproved PatternStatus = "approved"
	StatusRejected PatternStatus = "rejected"
)

func (s PatternStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Pattern is a community report.
type Pattern struct {
	ID            string      `json:"id"`
	Kind          PatternKind `json:"kind"`
	Industry      Industry    `json:"industry"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	CompanyName   string      `json:"company_name,omitempty"`
	WebsiteURL    string      `json:"website_url,omitempty"`
	ScreenshotURL string      `json:"screenshot_url,omitempty"`
	ImpactScore   int         `json:"impact_score,omitempty"`

	// Category is the dark-pattern category suggested by running the rule
	// table over the description. Empty when nothing matched.
	Category Category `json:"category,omitempty"`

	Status    PatternStatus `json:"status"`
	Upvotes   int           `json:"upvotes"`
	Downvotes int           `json:"downvotes"`
	Author    string        `json:"author"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PatternSort orders pattern listings.
type PatternSort string

const (
	SortRecent        PatternSort = "recent"
	SortPopular       PatternSort = "popular"
	SortControversial PatternSort = "controversial"
)

// PatternFilter selects patterns. Zero values mean "all".
type PatternFilter struct {
	Industry Industry
	Kind     PatternKind
	Status   PatternStatus
	Sort     PatternSort
	Limit    int
}

type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

// ParseVote accepts "up"/"upvote" and "down"/"downvote".
func ParseVote(s string) (VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "upvote":
		return VoteUp, nil
	case "down", "downvote":
		return VoteDown, nil
	}
	return "", fmt.Errorf("unknown vote type %q", s)
}

type Comment struct {
	ID        string    `json:"id"`
	PatternID string    `json:"pattern_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SiteFlag is the user's protection decision for one site.
type SiteFlag struct {
	Domain    string    `json:"domain"`
	Blocked   bool      `json:"blocked"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Activity struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Kind      PatternKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
}

// Stats feeds the dashboard.
type Stats struct {
	TotalPatterns        int         `json:"total_patterns"`
	DarkPatterns         int         `json:"dark_patterns"`
	EthicalAlternatives  int         `json:"ethical_alternatives"`
	PendingPatterns      int         `json:"pending_patterns"`
	TopIndustries        []NameCount `json:"top_industries"`
	RecentActivity       []Activity  `json:"recent_activity"`
	TotalScans           int         `json:"total_scans"`
	FlaggedScans         int         `json:"flagged_scans"`
	DetectionsByCategory []NameCount `json:"detections_by_category"`
	BlockedSites         int         `json:"blocked_sites"`
}

// CompanyRecord aggregates the reports filed against one company.
type CompanyRecord struct {
	Company       string    `json:"company_name"`
	TotalPatterns int       `json:"total_patterns"`
	SeverityScore float64   `json:"severity_score"`
	Reports       int       `json:"reports_count"`
	LastUpdated   time.Time `json:"last_updated"`
}
