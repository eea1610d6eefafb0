package matcher_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/matcher"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/rules"
	"github.com/raysh454/patternshield/internal/testutil"
)

func newMatcher(t *testing.T, extra ...rules.Rule) (*matcher.Matcher, *testutil.DummyLogger) {
	t.Helper()
	reg, err := rules.WithCustom(extra)
	if err != nil {
		t.Fatalf("WithCustom: %v", err)
	}
	logger := &testutil.DummyLogger{}
	m, err := matcher.New(reg, logger)
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	return m, logger
}

func categories(ds []model.Detection) []model.Category {
	var out []model.Category
	for _, d := range ds {
		out = append(out, d.Category)
	}
	return out
}

func TestNew_NilRegistry(t *testing.T) {
	t.Parallel()
	if _, err := matcher.New(nil, nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

// ─── Scenarios ─────────────────────────────────────────────────────────

func TestMatch_CheckedAutoRenewCheckbox(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := &evidence.Set{Elements: []evidence.Element{{
		Kind:      evidence.KindCheckbox,
		Content:   "Yes, automatically renew my membership",
		IsChecked: true,
		Selectors: []string{rules.SelectorCheckbox},
	}}}

	out := m.Match(set)
	if len(out.Detections) != 1 {
		t.Fatalf("expected 1 detection, got %d: %v", len(out.Detections), categories(out.Detections))
	}
	d := out.Detections[0]
	if d.Category != model.CategoryForcedRenewal {
		t.Errorf("expected forced_renewal, got %s", d.Category)
	}
	rule, _ := m.Registry().ByID(d.RuleID)
	if d.Severity != rule.Severity || d.Confidence != rule.Confidence {
		t.Errorf("detection severity/confidence %d/%.2f do not match rule %d/%.2f", d.Severity, d.Confidence, rule.Severity, rule.Confidence)
	}
	if len(d.MatchedEvidence) == 0 {
		t.Error("expected matched evidence")
	}
}

func TestMatch_UncheckedAutoRenewCheckboxDoesNotFire(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := &evidence.Set{Elements: []evidence.Element{{
		Kind:      evidence.KindCheckbox,
		Content:   "Automatically renew",
		Selectors: []string{rules.SelectorCheckbox},
	}}}

	if out := m.Match(set); len(out.Detections) != 0 {
		t.Errorf("expected no detections for an unchecked box, got %v", categories(out.Detections))
	}
}

func TestMatch_SupportLineCancellation(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := &evidence.Set{FullText: "To stop billing, call our support line to cancel your subscription."}

	out := m.Match(set)
	if len(out.Detections) != 1 {
		t.Fatalf("expected 1 detection, got %v", categories(out.Detections))
	}
	if out.Detections[0].Category != model.CategoryCancellationTrap {
		t.Errorf("expected cancellation_trap, got %s", out.Detections[0].Category)
	}
}

func TestMatch_UrgencyPhrasesNeedWordBoundaries(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)

	for _, text := range []string{
		"Questions about your invoice? Contact now and our team will reply.",
		"Commonly 25 leftover seats are released each Friday.",
	} {
		if out := m.Match(&evidence.Set{FullText: text}); len(out.Detections) != 0 {
			t.Errorf("%q: expected no detections, got %v", text, categories(out.Detections))
		}
	}
	for _, text := range []string{"Act now!", "Only 3 left in stock."} {
		out := m.Match(&evidence.Set{FullText: text})
		if len(out.Detections) != 1 || out.Detections[0].Category != model.CategoryCountdownPressure {
			t.Errorf("%q: expected countdown_pressure, got %v", text, categories(out.Detections))
		}
	}
}

func TestMatch_EmptySet(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)

	out := m.Match(&evidence.Set{})
	if len(out.Detections) != 0 || len(out.Diagnostics) != 0 {
		t.Errorf("expected nothing for empty set, got %+v", out)
	}
	if out := m.Match(nil); len(out.Detections) != 0 {
		t.Error("expected nil set to behave like an empty set")
	}
}

func TestMatch_ThreeCategoriesInRegistryOrder(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := &evidence.Set{FullText: "Offer expires in 10 minutes. A processing fee applies. Call our support line to cancel."}

	got := categories(m.Match(set).Detections)
	want := []model.Category{model.CategoryCancellationTrap, model.CategoryHiddenCost, model.CategoryCountdownPressure}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMatch_BadSelectorIsolated(t *testing.T) {
	t.Parallel()
	broken := rules.Rule{
		ID:         "broken-selector",
		Category:   model.CategoryPreChecked,
		Severity:   2,
		Confidence: 0.5,
		Structural: []rules.StructuralMatcher{{Selector: `input[type="checkbox"`}},
		Text:       []string{`cancel`},
	}
	m, logger := newMatcher(t, broken)

	page := `<html><body><p>Please call us to cancel.</p><input type="checkbox" checked></body></html>`
	set, err := evidence.FromHTML([]byte(page), m.Registry().Selectors())
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}

	out := m.Match(set)
	if len(out.Diagnostics) != 1 || out.Diagnostics[0].RuleID != "broken-selector" {
		t.Fatalf("expected one diagnostic for broken-selector, got %+v", out.Diagnostics)
	}
	if !errors.Is(out.Diagnostics[0].Err, matcher.ErrEvaluation) {
		t.Errorf("expected ErrEvaluation, got %v", out.Diagnostics[0].Err)
	}
	got := categories(out.Detections)
	if len(got) != 1 || got[0] != model.CategoryCancellationTrap {
		t.Errorf("expected the valid cancellation rule to still fire, got %v", got)
	}
	if logger.WarnCount() == 0 {
		t.Error("expected the skipped rule to be logged")
	}
}

// ─── Structural predicates ─────────────────────────────────────────────

func TestMatch_AttributeWhitelist(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	sel := "[data-hidden-cost]"

	for value, want := range map[string]bool{"true": true, "YES": true, "1": true, "false": false, "": false} {
		set := &evidence.Set{Elements: []evidence.Element{{
			Kind:      evidence.KindText,
			Attrs:     map[string]string{"data-hidden-cost": value},
			Selectors: []string{sel},
		}}}
		fired := len(m.Match(set).Detections) == 1
		if fired != want {
			t.Errorf("data-hidden-cost=%q: expected fired=%v, got %v", value, want, fired)
		}
	}
}

func TestMatch_LineModeIgnoresStructural(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := evidence.FromLines([]string{"✓ Automatically renew"})
	set.Elements[0].IsChecked = true
	set.Elements[0].Selectors = []string{rules.SelectorCheckbox}

	out := m.Match(set)
	if len(out.Detections) != 1 || out.Detections[0].Category != model.CategoryForcedRenewal {
		t.Fatalf("expected the text matcher alone to fire, got %v", categories(out.Detections))
	}
	for _, ev := range out.Detections[0].MatchedEvidence {
		if ev == "checkbox: ✓ Automatically renew" {
			t.Error("structural evidence should not be produced in line mode")
		}
	}
}

func TestMatch_LineModeDoesNotSpanLines(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := evidence.FromLines([]string{"Call us", "to cancel"})

	if out := m.Match(set); len(out.Detections) != 0 {
		t.Errorf("expected per-line matching, got %v", categories(out.Detections))
	}
}

// ─── Properties ────────────────────────────────────────────────────────

func TestMatch_Idempotent(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	set := &evidence.Set{FullText: "Limited time only! Additional fees may apply."}

	a := m.Match(set)
	b := m.Match(set)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical outcomes, got %+v and %+v", a, b)
	}
}

func TestMatch_MonotonicInEvidence(t *testing.T) {
	t.Parallel()
	m, _ := newMatcher(t)
	base := &evidence.Set{FullText: "Limited time only!"}
	more := &evidence.Set{
		FullText: base.FullText + " Taxes and fees extra.",
		Elements: []evidence.Element{{Kind: evidence.KindText, Selectors: []string{".no-cancel-button"}}},
	}

	before := map[string]bool{}
	for _, d := range m.Match(base).Detections {
		before[d.RuleID] = true
	}
	after := map[string]bool{}
	for _, d := range m.Match(more).Detections {
		after[d.RuleID] = true
	}
	for id := range before {
		if !after[id] {
			t.Errorf("rule %s stopped firing after adding evidence", id)
		}
	}
	if len(after) <= len(before) {
		t.Errorf("expected additional detections, got %d -> %d", len(before), len(after))
	}
}

// ─── URL table ─────────────────────────────────────────────────────────

func TestMatchURL(t *testing.T) {
	t.Parallel()
	ev, err := evidence.FromURL("https://www.netflix.com/free-trial/checkout?utm_source=ads")
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}

	ids := map[string]bool{}
	for _, d := range matcher.MatchURL(rules.DefaultURLRules(), ev) {
		ids[d.RuleID] = true
		if d.Confidence != rules.URLConfidence {
			t.Errorf("expected fixed URL confidence, got %.2f", d.Confidence)
		}
	}
	for _, want := range []string{"url:free-trial", "url:checkout-page", "url:streaming-service", "url:tracking-params"} {
		if !ids[want] {
			t.Errorf("expected %s to fire, got %v", want, ids)
		}
	}
	if ids["url:social-platform"] {
		t.Error("unexpected social-platform hit")
	}
}

func TestMatchURL_Nil(t *testing.T) {
	t.Parallel()
	if got := matcher.MatchURL(rules.DefaultURLRules(), nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
