// Package evidence turns concrete inputs (HTML documents, OCR text lines,
// bare URLs) into the normalized evidence sets the matcher consumes.
package evidence

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrNoDocument is returned when an adapter has nothing to extract from.
// Callers treat it as an empty evidence set, not a failed scan.
var ErrNoDocument = errors.New("no document to extract evidence from")

// MaxContentLen bounds Element.Content, in runes.
const MaxContentLen = 100

type Kind string

const (
	KindForm     Kind = "form"
	KindButton   Kind = "button"
	KindCheckbox Kind = "checkbox"
	KindText     Kind = "text"
	KindTimer    Kind = "timer"
	KindPopup    Kind = "popup"
)

// Element is one piece of structural evidence. Elements are rebuilt on
// every extraction.
type Element struct {
	// ID is the element's position in its Set.
	ID int `json:"id"`

	Kind    Kind   `json:"kind"`
	Content string `json:"content"`

	IsChecked bool `json:"is_checked"`
	IsHidden  bool `json:"is_hidden"`

	// Attrs holds the element's attributes with lower-cased keys.
	Attrs map[string]string `json:"attrs,omitempty"`

	// Selectors lists the structural selectors this element satisfied.
	Selectors []string `json:"selectors,omitempty"`
}

// HasSelector reports whether the element was selected by sel.
func (e Element) HasSelector(sel string) bool {
	for _, s := range e.Selectors {
		if s == sel {
			return true
		}
	}
	return false
}

// Attr returns the attribute value and whether it was present.
func (e Element) Attr(key string) (string, bool) {
	v, ok := e.Attrs[strings.ToLower(key)]
	return v, ok
}

// Set is everything the matcher needs to know about one input.
type Set struct {
	Elements []Element `json:"elements"`

	// FullText is the flattened visible text.
	FullText string `json:"full_text"`

	// Lines is set by line-oriented adapters. When non-nil, text matchers
	// are evaluated against each line rather than FullText.
	Lines []string `json:"lines,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// SelectorErrors maps selectors that could not be evaluated to the
	// reason.
	SelectorErrors map[string]error `json:"-"`
}

// LineMode reports whether text matchers should run per line.
func (s *Set) LineMode() bool { return s.Lines != nil }

// Empty reports whether the set carries no evidence at all.
func (s *Set) Empty() bool {
	return len(s.Elements) == 0 && strings.TrimSpace(s.FullText) == "" && len(s.Lines) == 0
}

// SelectorError returns the evaluation error recorded for sel, if any.
func (s *Set) SelectorError(sel string) error {
	if s.SelectorErrors == nil {
		return nil
	}
	return s.SelectorErrors[sel]
}

// Normalize collapses whitespace and trims s to MaxContentLen runes.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxContentLen {
		return s
	}
	r := []rune(s)
	return string(r[:MaxContentLen])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
