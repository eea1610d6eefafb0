package evidence

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// FromHTML is the live-DOM adapter. It collects every element matched by
// any of selectors, deduplicated by node, together with the flattened
// visible text of the body. Selectors that fail to compile are recorded in
// SelectorErrors and skipped.
//
// An empty or unparsable body yields an empty Set and an error wrapping
// ErrNoDocument; the Set is still safe to match against.
func FromHTML(body []byte, selectors []string) (*Set, error) {
	set := &Set{SelectorErrors: map[string]error{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return set, ErrNoDocument
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return set, fmt.Errorf("%w: parse html: %v", ErrNoDocument, err)
	}

	set.Title = collapse(doc.Find("title").First().Text())
	set.Description = collapse(doc.Find(`meta[name="description"]`).AttrOr("content", ""))

	labels := map[string]string{}
	doc.Find("label[for]").Each(func(_ int, l *goquery.Selection) {
		if id := getAttr(l, "for"); id != "" {
			labels[id] = collapse(l.Text())
		}
	})

	index := map[*html.Node]int{}
	for _, raw := range selectors {
		matched, err := selectAll(doc, raw)
		if err != nil {
			set.SelectorErrors[raw] = err
			continue
		}
		matched.Each(func(_ int, s *goquery.Selection) {
			node := s.Nodes[0]
			i, ok := index[node]
			if !ok {
				i = len(set.Elements)
				index[node] = i
				set.Elements = append(set.Elements, buildElement(s, i, labels))
			}
			el := &set.Elements[i]
			if !el.HasSelector(raw) {
				el.Selectors = append(el.Selectors, raw)
			}
		})
	}

	var b strings.Builder
	root := doc.Selection
	if bodySel := doc.Find("body"); bodySel.Length() > 0 {
		root = bodySel.First()
	}
	for _, n := range root.Nodes {
		visibleText(n, &b)
	}
	set.FullText = collapse(b.String())

	return set, nil
}

// selectAll compiles sel and runs it over doc. A selector that panics while
// matching is reported as an error like one that fails to compile.
func selectAll(doc *goquery.Document, sel string) (out *goquery.Selection, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("selector %q panicked: %v", sel, r)
		}
	}()
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", sel, err)
	}
	return doc.FindMatcher(m), nil
}

func buildElement(s *goquery.Selection, id int, labels map[string]string) Element {
	node := s.Nodes[0]
	attrs := make(map[string]string, len(node.Attr))
	for _, a := range node.Attr {
		attrs[strings.ToLower(a.Key)] = Normalize(a.Val)
	}

	el := Element{
		ID:        id,
		Kind:      classify(node, attrs),
		Attrs:     attrs,
		IsChecked: isChecked(attrs),
		IsHidden:  isHidden(attrs),
	}

	switch el.Kind {
	case KindCheckbox:
		el.Content = Normalize(checkboxLabel(s, attrs, labels))
	case KindForm:
		el.Content = Normalize(firstNonEmpty(attrs["aria-label"], attrs["name"], attrs["action"], s.Text()))
	default:
		if node.Data == "input" {
			el.Content = Normalize(firstNonEmpty(attrs["value"], attrs["placeholder"], attrs["aria-label"]))
		} else {
			el.Content = Normalize(s.Text())
		}
	}
	return el
}

// checkboxLabel resolves the visible label of a checkbox: label[for=id],
// then an enclosing <label>, then aria-label.
func checkboxLabel(s *goquery.Selection, attrs map[string]string, labels map[string]string) string {
	if id := attrs["id"]; id != "" {
		if l, ok := labels[id]; ok && l != "" {
			return l
		}
	}
	if l := s.Closest("label"); l.Length() > 0 {
		if txt := collapse(l.Text()); txt != "" {
			return txt
		}
	}
	return firstNonEmpty(attrs["aria-label"], attrs["title"], attrs["value"])
}

func classify(n *html.Node, attrs map[string]string) Kind {
	typ := strings.ToLower(attrs["type"])
	role := strings.ToLower(attrs["role"])
	marker := strings.ToLower(attrs["class"] + " " + attrs["id"])

	switch {
	case n.Data == "form":
		return KindForm
	case n.Data == "input" && (typ == "checkbox" || typ == "radio"), role == "checkbox":
		return KindCheckbox
	case n.Data == "button", n.Data == "input" && (typ == "submit" || typ == "button" || typ == "reset"), role == "button":
		return KindButton
	case strings.Contains(marker, "timer"), strings.Contains(marker, "countdown"):
		return KindTimer
	case role == "dialog", role == "alertdialog", strings.Contains(marker, "modal"), strings.Contains(marker, "popup"):
		return KindPopup
	default:
		return KindText
	}
}

func isChecked(attrs map[string]string) bool {
	if _, ok := attrs["checked"]; ok {
		return true
	}
	return strings.EqualFold(attrs["aria-checked"], "true")
}

func isHidden(attrs map[string]string) bool {
	if _, ok := attrs["hidden"]; ok {
		return true
	}
	if strings.EqualFold(attrs["type"], "hidden") || strings.EqualFold(attrs["aria-hidden"], "true") {
		return true
	}
	style := strings.ToLower(strings.ReplaceAll(attrs["style"], " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// visibleText approximates innerText: script-like elements and hidden
// subtrees contribute nothing.
func visibleText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "head":
			return
		}
		attrs := make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			attrs[strings.ToLower(a.Key)] = a.Val
		}
		if isHidden(attrs) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, b)
	}
}

func getAttr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
