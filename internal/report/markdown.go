package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/raysh454/patternshield/internal/model"
)

// Markdown renders result as an analysis report.
func Markdown(result *model.ScanResult) string {
	var b strings.Builder
	b.WriteString("# Dark Pattern Analysis Report\n\n")
	fmt.Fprintf(&b, "**Overall Risk Score:** %d/10\n", result.RiskScore)
	fmt.Fprintf(&b, "**Analysis Confidence:** %d%%\n\n", percent(result.AnalysisConfidence))

	if n := len(result.Detections); n > 0 {
		fmt.Fprintf(&b, "## Detected Dark Patterns (%d)\n\n", n)
		for i, d := range result.Detections {
			fmt.Fprintf(&b, "### %d. %s\n", i+1, d.Category.Label())
			fmt.Fprintf(&b, "- **Severity:** %d/5\n", d.Severity)
			fmt.Fprintf(&b, "- **Confidence:** %d%%\n", percent(d.Confidence))
			fmt.Fprintf(&b, "- **Description:** %s\n\n", d.Description)
		}
	}

	if len(result.Suspicious) > 0 {
		b.WriteString("## Suspicious Elements\n\n")
		for i, s := range result.Suspicious {
			fmt.Fprintf(&b, "%d. **%s**\n", i+1, s.Element)
			fmt.Fprintf(&b, "   - Risk Level: %s\n", strings.ToUpper(s.RiskLevel))
			fmt.Fprintf(&b, "   - Reason: %s\n\n", s.Reason)
		}
	}

	if len(result.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, r := range result.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

func percent(f float64) int { return int(math.Round(f * 100)) }
