package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/report"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Renderer prints scan results for people. Colour is only used on a
// terminal.
type Renderer struct {
	out     io.Writer
	colored bool

	red, yellow, green, cyan, bold *color.Color
}

func NewRenderer(out io.Writer) *Renderer {
	r := &Renderer{
		out:     out,
		colored: isTerminal(out),
		red:     color.New(color.FgRed, color.Bold),
		yellow:  color.New(color.FgYellow),
		green:   color.New(color.FgGreen),
		cyan:    color.New(color.FgCyan),
		bold:    color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.red, r.yellow, r.green, r.cyan, r.bold} {
		if r.colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Banner prints the serve banner. It is skipped when out is not a terminal.
func (r *Renderer) Banner(addr string) {
	if !r.colored {
		return
	}
	fig := figure.NewFigure("PSHIELD", "doom", true)
	_, _ = r.red.Fprintln(r.out, fig.String())
	_, _ = r.cyan.Fprintln(r.out, "════════════════════════════════════════════════")
	_, _ = r.green.Fprintf(r.out, "    Dark pattern detection API on %s\n", addr)
	_, _ = r.cyan.Fprintln(r.out, "════════════════════════════════════════════════")
}

func (r *Renderer) riskColor(score int) *color.Color {
	switch {
	case score >= 7:
		return r.red
	case score >= 4:
		return r.yellow
	default:
		return r.green
	}
}

// Result prints one scan result.
func (r *Renderer) Result(res *model.ScanResult) {
	_, _ = r.bold.Fprintf(r.out, "%s\n", res.SourceRef)
	if res.Title != "" {
		fmt.Fprintf(r.out, "  title:      %s\n", res.Title)
	}
	if res.Company != nil && res.Company.Name != "" {
		fmt.Fprintf(r.out, "  company:    %s\n", res.Company.Name)
	}
	fmt.Fprint(r.out, "  risk score: ")
	_, _ = r.riskColor(res.RiskScore).Fprintf(r.out, "%d/10", res.RiskScore)
	fmt.Fprintf(r.out, "  (confidence %d%%)\n", int(res.AnalysisConfidence*100+0.5))

	if len(res.Detections) == 0 {
		_, _ = r.green.Fprintln(r.out, "  no dark patterns detected")
	}
	for _, d := range res.Detections {
		c := r.yellow
		if report.ActionFor(d.Severity) == report.ActionBlock {
			c = r.red
		}
		_, _ = c.Fprintf(r.out, "  [%d] %-22s", d.Severity, d.Category)
		fmt.Fprintf(r.out, " %s\n", d.Description)
		for _, ev := range d.MatchedEvidence {
			fmt.Fprintf(r.out, "        > %s\n", truncate(ev, 100))
		}
	}
	for _, s := range res.Suspicious {
		_, _ = r.yellow.Fprintf(r.out, "  suspicious: %s (%s)\n", truncate(s.Element, 80), s.Reason)
	}
	for _, rec := range res.Recommendations {
		fmt.Fprintf(r.out, "  - %s\n", rec)
	}
	for _, d := range res.Diagnostics {
		_, _ = r.cyan.Fprintf(r.out, "  diagnostic: %s\n", d)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
