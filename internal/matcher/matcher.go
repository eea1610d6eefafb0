package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/rules"
)

// ErrEvaluation marks a rule that was skipped because one of its matchers
// could not be evaluated.
var ErrEvaluation = errors.New("rule evaluation failed")

// maxEvidence bounds MatchedEvidence per detection.
const maxEvidence = 8

// Diagnostic records a skipped rule.
type Diagnostic struct {
	RuleID string
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.RuleID, d.Err)
}

// Outcome is the result of running every rule over one evidence set.
type Outcome struct {
	Detections  []model.Detection
	Diagnostics []Diagnostic
}

// Matcher evaluates a rule registry against evidence sets. It holds no
// per-scan state and is safe for concurrent use.
type Matcher struct {
	reg    *rules.Registry
	logger logging.Logger
}

func New(reg *rules.Registry, logger logging.Logger) (*Matcher, error) {
	if reg == nil {
		return nil, errors.New("matcher: nil registry")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Matcher{
		reg:    reg,
		logger: logger.With(logging.Field{Key: "component", Value: "matcher"}),
	}, nil
}

// Registry returns the registry the matcher evaluates.
func (m *Matcher) Registry() *rules.Registry { return m.reg }

// Match evaluates every rule independently, in registry order. A rule fires
// when any structural matcher or any text matcher hits, and yields exactly
// one detection. A rule that cannot be evaluated is skipped and reported as
// a diagnostic; the remaining rules still run.
func (m *Matcher) Match(set *evidence.Set) Outcome {
	var out Outcome
	if set == nil {
		set = &evidence.Set{}
	}
	for _, r := range m.reg.All() {
		det, fired, err := evaluate(r, set)
		if err != nil {
			m.logger.Warn("skipping rule",
				logging.Field{Key: "rule_id", Value: r.ID},
				logging.Field{Key: "error", Value: err.Error()})
			out.Diagnostics = append(out.Diagnostics, Diagnostic{RuleID: r.ID, Err: err})
			continue
		}
		if fired {
			out.Detections = append(out.Detections, det)
		}
	}
	m.logger.Debug("matched evidence set",
		logging.Field{Key: "elements", Value: len(set.Elements)},
		logging.Field{Key: "detections", Value: len(out.Detections)},
		logging.Field{Key: "skipped", Value: len(out.Diagnostics)})
	return out
}

func evaluate(r rules.Rule, set *evidence.Set) (det model.Detection, fired bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			det, fired = model.Detection{}, false
			err = fmt.Errorf("%w: rule %q: %v", ErrEvaluation, r.ID, rec)
		}
	}()

	var hits []string
	seen := map[string]bool{}
	add := func(s string) {
		s = evidence.Normalize(s)
		if s == "" || seen[s] || len(hits) >= maxEvidence {
			return
		}
		seen[s] = true
		hits = append(hits, s)
	}

	// Line-oriented evidence carries no DOM, so structural matchers are
	// not applicable there.
	if !set.LineMode() {
		for _, sm := range r.Structural {
			if serr := set.SelectorError(sm.Selector); serr != nil {
				return model.Detection{}, false, fmt.Errorf("%w: rule %q: %v", ErrEvaluation, r.ID, serr)
			}
		}
		for _, sm := range r.Structural {
			for _, el := range set.Elements {
				if structuralHit(sm, el) {
					add(describe(el, sm))
				}
			}
		}
	}

	for _, re := range r.TextPatterns() {
		if set.LineMode() {
			for _, line := range set.Lines {
				if re.MatchString(line) {
					add(line)
				}
			}
			continue
		}
		if loc := re.FindStringIndex(set.FullText); loc != nil {
			add(set.FullText[loc[0]:loc[1]])
		}
	}

	if len(hits) == 0 {
		return model.Detection{}, false, nil
	}
	return model.Detection{
		RuleID:          r.ID,
		Name:            r.Name,
		Category:        r.Category,
		Severity:        r.Severity,
		Confidence:      r.Confidence,
		Description:     r.Description,
		Suggestion:      r.Suggestion,
		MatchedEvidence: hits,
	}, true, nil
}

func structuralHit(sm rules.StructuralMatcher, el evidence.Element) bool {
	if !el.HasSelector(sm.Selector) {
		return false
	}
	if sm.RequireChecked && !el.IsChecked {
		return false
	}
	if sm.Attr != "" {
		v, ok := el.Attr(sm.Attr)
		if !ok {
			return false
		}
		if len(sm.Values) > 0 && !contains(sm.Values, strings.ToLower(strings.TrimSpace(v))) {
			return false
		}
	}
	if re := sm.Label(); re != nil && !re.MatchString(el.Content) {
		return false
	}
	return true
}

func describe(el evidence.Element, sm rules.StructuralMatcher) string {
	if el.Content != "" {
		return string(el.Kind) + ": " + el.Content
	}
	return string(el.Kind) + ": " + sm.Selector
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
