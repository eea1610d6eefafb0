package evidence_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/rules"
)

const checkoutPage = `<!doctype html>
<html>
<head>
  <title>Checkout - StreamCo</title>
  <meta name="description" content="Finish your subscription">
  <script>var msg = "processing fee";</script>
</head>
<body>
  <form id="signup" action="/subscribe">
    <label for="renew">Automatically renew my plan every month</label>
    <input type="checkbox" id="renew" checked>
    <label><input type="checkbox" name="warranty" checked> Add extended protection</label>
    <input type="checkbox" id="plain">
    <button type="submit">Start free trial</button>
  </form>
  <div class="countdown-timer" data-countdown="yes">09:59</div>
  <p style="display: none">hidden fine print</p>
</body>
</html>`

func findByContent(set *evidence.Set, prefix string) *evidence.Element {
	for i := range set.Elements {
		if strings.HasPrefix(set.Elements[i].Content, prefix) {
			return &set.Elements[i]
		}
	}
	return nil
}

// ─── HTML adapter ──────────────────────────────────────────────────────

func TestFromHTML_CheckboxLabels(t *testing.T) {
	t.Parallel()
	set, err := evidence.FromHTML([]byte(checkoutPage), []string{rules.SelectorCheckbox})
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if len(set.Elements) != 3 {
		t.Fatalf("expected 3 checkboxes, got %d", len(set.Elements))
	}

	renew := findByContent(set, "Automatically renew")
	if renew == nil {
		t.Fatal("expected label resolved via for= attribute")
	}
	if renew.Kind != evidence.KindCheckbox || !renew.IsChecked {
		t.Errorf("unexpected renew element: %+v", renew)
	}
	if !renew.HasSelector(rules.SelectorCheckbox) {
		t.Error("expected element to record its selector")
	}

	if w := findByContent(set, "Add extended protection"); w == nil || !w.IsChecked {
		t.Errorf("expected ancestor label to be used, got %+v", w)
	}

	for _, el := range set.Elements {
		if el.Attrs["id"] == "plain" && el.IsChecked {
			t.Error("unchecked box reported as checked")
		}
	}
}

func TestFromHTML_DeduplicatesAcrossSelectors(t *testing.T) {
	t.Parallel()
	sels := []string{".countdown-timer", "[data-countdown]", `[class*="timer"]`}
	set, err := evidence.FromHTML([]byte(checkoutPage), sels)
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if len(set.Elements) != 1 {
		t.Fatalf("expected one deduplicated element, got %d", len(set.Elements))
	}
	el := set.Elements[0]
	if len(el.Selectors) != 3 {
		t.Errorf("expected 3 selectors recorded, got %v", el.Selectors)
	}
	if el.Kind != evidence.KindTimer {
		t.Errorf("expected timer kind, got %s", el.Kind)
	}
	if v, ok := el.Attr("DATA-COUNTDOWN"); !ok || v != "yes" {
		t.Errorf("expected data-countdown=yes, got %q", v)
	}
}

func TestFromHTML_FullTextAndHead(t *testing.T) {
	t.Parallel()
	set, err := evidence.FromHTML([]byte(checkoutPage), nil)
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if set.Title != "Checkout - StreamCo" {
		t.Errorf("unexpected title %q", set.Title)
	}
	if set.Description != "Finish your subscription" {
		t.Errorf("unexpected description %q", set.Description)
	}
	if !strings.Contains(set.FullText, "Automatically renew my plan every month") {
		t.Errorf("expected label text in full text, got %q", set.FullText)
	}
	if strings.Contains(set.FullText, "processing fee") {
		t.Error("script content leaked into full text")
	}
	if strings.Contains(set.FullText, "hidden fine print") {
		t.Error("display:none content leaked into full text")
	}
	if strings.Contains(set.FullText, "  ") {
		t.Error("expected collapsed whitespace")
	}
}

func TestFromHTML_BadSelectorRecorded(t *testing.T) {
	t.Parallel()
	bad := `input[type="checkbox"`
	set, err := evidence.FromHTML([]byte(checkoutPage), []string{bad, ".countdown-timer"})
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if set.SelectorError(bad) == nil {
		t.Fatal("expected selector error to be recorded")
	}
	if len(set.Elements) != 1 {
		t.Errorf("expected remaining selector to still extract, got %d elements", len(set.Elements))
	}
}

func TestFromHTML_EmptyBody(t *testing.T) {
	t.Parallel()
	set, err := evidence.FromHTML([]byte("   "), []string{".x"})
	if !errors.Is(err, evidence.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if set == nil || !set.Empty() {
		t.Errorf("expected empty set, got %+v", set)
	}
}

func TestFromHTML_ContentTruncated(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("word ", 60)
	page := `<html><body><div class="fine">` + long + `</div></body></html>`
	set, err := evidence.FromHTML([]byte(page), []string{".fine"})
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if n := len([]rune(set.Elements[0].Content)); n != evidence.MaxContentLen {
		t.Errorf("expected content truncated to %d, got %d", evidence.MaxContentLen, n)
	}
}

// ─── OCR adapter ───────────────────────────────────────────────────────

func TestFromLines_Classification(t *testing.T) {
	t.Parallel()
	set := evidence.FromLines([]string{
		"Offer ends in 09:59",
		"✓ Premium support $4.99",
		"",
		"Click to continue",
		"Fill in the form",
		"Subscribe today*",
	})

	want := []evidence.Kind{
		evidence.KindTimer,
		evidence.KindCheckbox,
		evidence.KindButton,
		evidence.KindForm,
		evidence.KindText,
	}
	if len(set.Elements) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(set.Elements))
	}
	for i, k := range want {
		if set.Elements[i].Kind != k {
			t.Errorf("line %d: expected %s, got %s", i, k, set.Elements[i].Kind)
		}
	}
	if !set.Elements[4].IsHidden {
		t.Error("expected asterisk line to be flagged hidden")
	}
	if !set.LineMode() || len(set.Lines) != 5 {
		t.Errorf("expected line mode with 5 lines, got %v", set.Lines)
	}
}

func TestFromLines_Empty(t *testing.T) {
	t.Parallel()
	set := evidence.FromLines(nil)
	if !set.Empty() {
		t.Error("expected empty set")
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()
	got := evidence.SplitLines("first\r\n\n  second  \nthird")
	if len(got) != 3 || got[1] != "second" {
		t.Errorf("unexpected lines %q", got)
	}
}

// ─── URL adapter ───────────────────────────────────────────────────────

func TestFromURL(t *testing.T) {
	t.Parallel()
	ev, err := evidence.FromURL("HTTPS://WWW.Shop.Example/Free-Trial?utm_source=x")
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if ev.Host != "www.shop.example" {
		t.Errorf("unexpected host %q", ev.Host)
	}
	if !ev.Secure {
		t.Error("expected https to be secure")
	}
	if !strings.Contains(ev.Lower, "free-trial") {
		t.Errorf("expected lower-cased url, got %q", ev.Lower)
	}

	if _, err := evidence.FromURL("not a url"); err == nil {
		t.Error("expected error for relative input")
	}
}
