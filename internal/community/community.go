// Package community reviews user-submitted pattern reports before they are
// stored: it pulls dark-pattern keywords out of the description, suggests an
// industry and a rule category, estimates risk and looks for similar
// reports.
package community

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/matcher"
	"github.com/raysh454/patternshield/internal/model"
)

var ErrNoStore = errors.New("community: no pattern store configured")

const maxSimilar = 3

// Store is the persistence the analyzer submits to. store.Store implements it.
type Store interface {
	SubmitPattern(ctx context.Context, p model.Pattern) (*model.Pattern, error)
	SearchPatterns(ctx context.Context, query string, limit int) ([]*model.Pattern, error)
}

// ImageScanner scans a screenshot reference. assessor.Scanner implements it.
type ImageScanner interface {
	ScanImage(ctx context.Context, imageRef string) *model.ScanResult
}

// Risk is the three-axis estimate shown next to a submission.
type Risk struct {
	Severity   int `json:"severity"`
	UserImpact int `json:"user_impact"`
	LegalRisk  int `json:"legal_risk"`
}

// Validation is the review of one submission.
type Validation struct {
	Confidence        float64           `json:"confidence"`
	Keywords          []string          `json:"keywords"`
	SuggestedIndustry model.Industry    `json:"suggested_industry"`
	SuggestedCategory model.Category    `json:"suggested_category,omitempty"`
	Similar           []string          `json:"similar_patterns"`
	Risk              Risk              `json:"risk"`
	Screenshot        *model.ScanResult `json:"screenshot_analysis,omitempty"`
}

type Analyzer struct {
	matcher *matcher.Matcher
	store   Store
	images  ImageScanner
	logger  logging.Logger
}

type Option func(*Analyzer)

func WithStore(s Store) Option { return func(a *Analyzer) { a.store = s } }

func WithImageScanner(s ImageScanner) Option { return func(a *Analyzer) { a.images = s } }

func New(m *matcher.Matcher, logger logging.Logger, opts ...Option) (*Analyzer, error) {
	if m == nil {
		return nil, errors.New("community: nil matcher")
	}
	if logger == nil {
		return nil, errors.New("community: nil logger")
	}
	a := &Analyzer{
		matcher: m,
		logger:  logger.With(logging.Field{Key: "component", Value: "community"}),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Validate reviews p without storing it.
func (a *Analyzer) Validate(ctx context.Context, p model.Pattern) *Validation {
	words := words(p.Title + " " + p.Description)
	kw := Keywords(words)

	v := &Validation{
		Keywords:          kw,
		SuggestedIndustry: Industry(words),
		SuggestedCategory: a.suggestCategory(p.Title + ". " + p.Description),
		Similar:           a.similar(ctx, kw),
		Risk:              AssessRisk(kw, p.ImpactScore),
	}

	if p.ScreenshotURL != "" && a.images != nil {
		r := a.images.ScanImage(ctx, p.ScreenshotURL)
		v.Screenshot = r
		if r != nil && r.HasDetections() {
			v.Risk.Severity = max(v.Risk.Severity, r.MaxSeverity())
			v.Risk.UserImpact = max(v.Risk.UserImpact, min(r.RiskScore, 5))
		}
	}
	v.Confidence = Confidence(p, kw, v.Screenshot)
	return v
}

// Submit reviews p, fills the fields the submitter left empty from the
// review, and stores it.
func (a *Analyzer) Submit(ctx context.Context, p model.Pattern) (*model.Pattern, *Validation, error) {
	if a.store == nil {
		return nil, nil, ErrNoStore
	}
	v := a.Validate(ctx, p)
	if p.Industry == "" {
		p.Industry = v.SuggestedIndustry
	}
	if p.Category == "" && p.Kind == model.KindDarkPattern {
		p.Category = v.SuggestedCategory
	}
	if p.ImpactScore == 0 {
		p.ImpactScore = v.Risk.UserImpact
	}
	stored, err := a.store.SubmitPattern(ctx, p)
	if err != nil {
		return nil, v, fmt.Errorf("submit pattern: %w", err)
	}
	a.logger.Info("pattern reviewed",
		logging.Field{Key: "pattern_id", Value: stored.ID},
		logging.Field{Key: "category", Value: string(stored.Category)},
		logging.Field{Key: "confidence", Value: v.Confidence})
	return stored, v, nil
}

// suggestCategory runs the rule table over the text and returns the
// category of the most severe detection.
func (a *Analyzer) suggestCategory(text string) model.Category {
	out := a.matcher.Match(&evidence.Set{FullText: evidence.Normalize(text)})
	var (
		best model.Category
		sev  int
	)
	for _, d := range out.Detections {
		if d.Severity > sev {
			best, sev = d.Category, d.Severity
		}
	}
	return best
}

func (a *Analyzer) similar(ctx context.Context, keywords []string) []string {
	out := []string{}
	if a.store == nil {
		return out
	}
	seen := map[string]bool{}
	for _, k := range keywords {
		ps, err := a.store.SearchPatterns(ctx, k, maxSimilar)
		if err != nil {
			a.logger.Warn("similar pattern search failed", logging.Field{Key: "error", Value: err.Error()})
			return out
		}
		for _, p := range ps {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p.Title)
			if len(out) == maxSimilar {
				return out
			}
		}
	}
	return out
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

// words lower-cases s, drops punctuation and keeps words longer than three
// characters.
func words(s string) []string {
	var out []string
	for _, w := range strings.Fields(nonWord.ReplaceAllString(strings.ToLower(s), " ")) {
		if len([]rune(w)) > 3 {
			out = append(out, w)
		}
	}
	return out
}

var darkKeywords = []string{
	"hidden", "auto", "renewal", "cancel", "difficult", "confusing",
	"misleading", "deceptive", "trick", "trap", "forced", "checked",
	"countdown", "urgent", "limited", "expires", "fee", "charge",
}

// Keywords returns, in order and without repeats, the words that contain a
// dark-pattern keyword.
func Keywords(words []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, w := range words {
		if seen[w] || !containsAny(w, darkKeywords) {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

var industryKeywords = []struct {
	industry model.Industry
	words    []string
}{
	{model.IndustrySaaS, []string{"software", "service", "platform", "tool", "app"}},
	{model.IndustryStreaming, []string{"video", "music", "stream", "watch", "listen"}},
	{model.IndustryNews, []string{"news", "article", "media", "publication"}},
	{model.IndustryFitness, []string{"fitness", "health", "workout", "exercise", "gym"}},
	{model.IndustryEducation, []string{"course", "learn", "education", "training", "study"}},
}

// Industry returns the first industry whose vocabulary appears in words,
// or other.
func Industry(words []string) model.Industry {
	for _, ik := range industryKeywords {
		for _, w := range words {
			if containsAny(w, ik.words) {
				return ik.industry
			}
		}
	}
	return model.IndustryOther
}

// AssessRisk scores severity 5 for deceptive wording, 3 for friction and 1
// otherwise. impact overrides the derived user impact when set.
func AssessRisk(keywords []string, impact int) Risk {
	r := Risk{Severity: 1, UserImpact: 1, LegalRisk: 1}
	switch {
	case anyContains(keywords, "hidden", "deceptive", "misleading", "trap"):
		r.Severity = 5
	case anyContains(keywords, "confusing", "difficult", "auto"):
		r.Severity = 3
	}
	if impact > 0 {
		r.UserImpact = min(impact, 5)
	} else {
		r.UserImpact = min(r.Severity+1, 5)
	}
	if anyContains(keywords, "hidden", "deceptive", "misleading", "forced") {
		r.LegalRisk = r.Severity
	}
	return r
}

// Confidence grows with how much supporting detail a submission carries.
func Confidence(p model.Pattern, keywords []string, screenshot *model.ScanResult) float64 {
	c := 0.5
	if p.WebsiteURL != "" {
		c += 0.2
	}
	if p.CompanyName != "" {
		c += 0.1
	}
	if p.ScreenshotURL != "" {
		c += 0.1
	}
	if len(keywords) > 0 {
		c += 0.1
	}
	if screenshot != nil {
		c += 0.2
		if screenshot.HasDetections() {
			c += 0.1
		}
	}
	return min(c, 1.0)
}

func containsAny(w string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(w, s) {
			return true
		}
	}
	return false
}

func anyContains(words []string, subs ...string) bool {
	for _, w := range words {
		if containsAny(w, subs) {
			return true
		}
	}
	return false
}
