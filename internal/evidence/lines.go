package evidence

import (
	"regexp"
	"strings"
)

var clockRe = regexp.MustCompile(`\d{2}:\d{2}`)

var hiddenIndicators = []string{"fine print", "terms apply", "additional charges", "*"}

// FromLines is the OCR adapter. Every non-blank line becomes one element,
// classified by keyword sniffing. The returned set is in line mode, so
// structural matchers never apply and text matchers see one line at a time.
func FromLines(lines []string) *Set {
	set := &Set{Lines: []string{}}
	for _, raw := range lines {
		line := collapse(raw)
		if line == "" {
			continue
		}
		set.Lines = append(set.Lines, line)
		set.Elements = append(set.Elements, Element{
			ID:       len(set.Elements),
			Kind:     classifyLine(line),
			Content:  Normalize(line),
			IsHidden: hiddenLine(line),
		})
	}
	set.FullText = strings.Join(set.Lines, "\n")
	return set
}

// SplitLines splits OCR output into trimmed, non-blank lines.
func SplitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func classifyLine(line string) Kind {
	lower := strings.ToLower(line)
	switch {
	case clockRe.MatchString(line):
		return KindTimer
	case strings.Contains(line, "✓"), strings.Contains(lower, "check"), strings.Contains(lower, "select"):
		return KindCheckbox
	case strings.Contains(lower, "button"), strings.Contains(lower, "click"), strings.Contains(lower, "continue"):
		return KindButton
	case strings.Contains(lower, "form"), strings.Contains(lower, "input"):
		return KindForm
	case strings.Contains(lower, "popup"), strings.Contains(lower, "modal"):
		return KindPopup
	default:
		return KindText
	}
}

func hiddenLine(line string) bool {
	lower := strings.ToLower(line)
	for _, ind := range hiddenIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
