package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/raysh454/patternshield/internal/model"
)

var (
	ErrMalformedRule = errors.New("malformed rule")
	ErrRuleNotFound  = errors.New("rule not found")
)

// BuiltinVersion identifies the compiled-in rule table.
const BuiltinVersion = "builtin-1"

// StructuralMatcher selects elements by CSS selector and optionally narrows
// the selection with attribute, checked-state and label predicates. All set
// predicates must hold for an element to count as a hit.
type StructuralMatcher struct {
	Selector string `yaml:"selector" json:"selector"`

	// Attr and Values form an attribute whitelist. With Values empty the
	// attribute only has to be present.
	Attr   string   `yaml:"attr,omitempty" json:"attr,omitempty"`
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`

	RequireChecked bool `yaml:"require_checked,omitempty" json:"require_checked,omitempty"`

	// LabelPattern is matched case-insensitively against the element content.
	LabelPattern string `yaml:"label_pattern,omitempty" json:"label_pattern,omitempty"`

	label *regexp.Regexp
}

// Label returns the compiled LabelPattern, nil when unset.
func (m StructuralMatcher) Label() *regexp.Regexp { return m.label }

// Rule is an immutable detection rule. Rules are only usable after passing
// through New, which validates and compiles them.
type Rule struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Category    model.Category `yaml:"category" json:"category"`
	Severity    int            `yaml:"severity" json:"severity"`
	Confidence  float64        `yaml:"confidence" json:"confidence"`
	Description string         `yaml:"description" json:"description"`
	Suggestion  string         `yaml:"suggestion" json:"suggestion"`

	Structural []StructuralMatcher `yaml:"structural,omitempty" json:"structural,omitempty"`
	Text       []string            `yaml:"text,omitempty" json:"text,omitempty"`

	text []*regexp.Regexp
}

// TextPatterns returns the compiled textual matchers in declaration order.
func (r Rule) TextPatterns() []*regexp.Regexp { return r.text }

// Selectors returns the structural selectors of r in declaration order.
func (r Rule) Selectors() []string {
	out := make([]string, 0, len(r.Structural))
	for _, m := range r.Structural {
		out = append(out, m.Selector)
	}
	return out
}

func (r Rule) clone() Rule {
	c := r
	c.Structural = make([]StructuralMatcher, len(r.Structural))
	for i, m := range r.Structural {
		m.Values = append([]string(nil), m.Values...)
		c.Structural[i] = m
	}
	c.Text = append([]string(nil), r.Text...)
	c.text = append([]*regexp.Regexp(nil), r.text...)
	return c
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// prepare validates r and returns a compiled copy.
func prepare(r Rule) (Rule, error) {
	r = r.clone()
	fail := func(format string, args ...any) (Rule, error) {
		return Rule{}, fmt.Errorf("%w: rule %q: %s", ErrMalformedRule, r.ID, fmt.Sprintf(format, args...))
	}

	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return fail("id is required")
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	if !r.Category.Valid() {
		return fail("unknown category %q", r.Category)
	}
	if r.Severity < 1 || r.Severity > 5 {
		return fail("severity %d out of range [1,5]", r.Severity)
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		return fail("confidence %.2f out of range (0,1]", r.Confidence)
	}
	if len(r.Structural) == 0 && len(r.Text) == 0 {
		return fail("no structural or text matchers")
	}

	for i := range r.Structural {
		m := &r.Structural[i]
		m.Selector = strings.TrimSpace(m.Selector)
		if m.Selector == "" {
			return fail("structural matcher %d has an empty selector", i)
		}
		m.Attr = strings.ToLower(strings.TrimSpace(m.Attr))
		for j, v := range m.Values {
			m.Values[j] = strings.ToLower(strings.TrimSpace(v))
		}
		if len(m.Values) > 0 && m.Attr == "" {
			return fail("structural matcher %d lists values without an attribute", i)
		}
		if m.LabelPattern != "" {
			re, err := compile(m.LabelPattern)
			if err != nil {
				return fail("label pattern %q: %v", m.LabelPattern, err)
			}
			m.label = re
		}
	}

	r.text = make([]*regexp.Regexp, 0, len(r.Text))
	for _, p := range r.Text {
		re, err := compile(p)
		if err != nil {
			return fail("text pattern %q: %v", p, err)
		}
		r.text = append(r.text, re)
	}
	return r, nil
}

// Registry is an ordered, immutable set of rules. It is safe for concurrent
// readers.
type Registry struct {
	rules   []Rule
	byID    map[string]int
	version string
}

// New validates every rule and builds a Registry. The first invalid rule
// aborts construction with an error wrapping ErrMalformedRule.
func New(rs []Rule) (*Registry, error) {
	reg := &Registry{
		rules:   make([]Rule, 0, len(rs)),
		byID:    make(map[string]int, len(rs)),
		version: BuiltinVersion,
	}
	for _, r := range rs {
		p, err := prepare(r)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrMalformedRule, p.ID)
		}
		reg.byID[p.ID] = len(reg.rules)
		reg.rules = append(reg.rules, p)
	}
	return reg, nil
}

// Default returns a Registry over the built-in rule table.
func Default() (*Registry, error) {
	return New(DefaultRules())
}

// WithCustom returns a Registry of the built-in rules followed by extra.
func WithCustom(extra []Rule) (*Registry, error) {
	reg, err := New(append(DefaultRules(), extra...))
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		reg.version = fmt.Sprintf("%s+%d", BuiltinVersion, len(extra))
	}
	return reg, nil
}

// All returns a copy of every rule in canonical order.
func (r *Registry) All() []Rule {
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.clone()
	}
	return out
}

// ByID looks up a single rule.
func (r *Registry) ByID(id string) (Rule, error) {
	i, ok := r.byID[id]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	return r.rules[i].clone(), nil
}

// Len is the number of rules.
func (r *Registry) Len() int { return len(r.rules) }

// Version identifies the rule table, for recording alongside results.
func (r *Registry) Version() string { return r.version }

// Selectors returns every distinct structural selector across all rules,
// in first-seen order.
func (r *Registry) Selectors() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range r.rules {
		for _, m := range rule.Structural {
			if seen[m.Selector] {
				continue
			}
			seen[m.Selector] = true
			out = append(out, m.Selector)
		}
	}
	return out
}
