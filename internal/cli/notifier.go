package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/report"
)

// TerminalNotifier writes one alert line per notified scan. It implements
// report.Notifier.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
	c   *color.Color
}

func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	c := color.New(color.FgRed, color.Bold)
	if isTerminal(out) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return &TerminalNotifier{out: out, c: c}
}

func (n *TerminalNotifier) Notify(_ context.Context, r *model.ScanResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := n.c.Fprintf(n.out, "⚠ %s (risk %d/10)\n", report.Summary(r), r.RiskScore)
	if err != nil {
		return fmt.Errorf("terminal notify: %w", err)
	}
	return nil
}
