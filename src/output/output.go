package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/report"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Printer formats run progress and results for humans.
type Printer struct {
	Writer io.Writer
	Color  bool
}

// NewPrinter creates a printer writing to stdout with color auto-detection.
func NewPrinter() *Printer {
	return &Printer{
		Writer: os.Stdout,
		Color:  UseColor(),
	}
}

// Plan renders the resolved plan before execution.
func (p *Printer) Plan(tasks []*plan.Task) {
	sec := NewSection(p.Writer, "Plan", 0, p.Color)
	for _, t := range tasks {
		if t.Status == plan.StatusPlanFailed {
			sec.Row("%-28s %s  %s", t.Entry, StatusIcon(string(t.Status), p.Color),
				Dimmed(fmt.Sprint(t.PlanErr), p.Color))
			continue
		}
		sec.Row("%-28s %s", t.Entry, p.colorize(t.ResolvedVersion, colorCyan))
	}
	sec.Close()
}

// Run renders per-target results and the run summary.
func (p *Printer) Run(rep report.RunReport) {
	sec := NewSection(p.Writer, "Targets", rep.FinishedAt.Sub(rep.StartedAt), p.Color)

	for _, tr := range rep.Targets {
		version := tr.ResolvedVersion
		if version == "" {
			version = "-"
		}

		var elapsed, size string
		if tr.Build != nil {
			elapsed = formatElapsed(time.Duration(tr.Build.DurationMS) * time.Millisecond)
			if tr.Build.SizeBytes > 0 {
				size = formatBytes(tr.Build.SizeBytes)
			}
		}

		note := targetNote(tr)
		if note != "" {
			note = "  " + Dimmed(note, p.Color)
		}

		sec.Row("%-24s %-14s %7s %9s  %s%s",
			tr.Name, version, elapsed, size,
			StatusIcon(tr.Status, p.Color), note)
	}

	sec.Separator()
	sec.Row("%s", p.summaryLine(rep.Summary))
	sec.Close()
}

// targetNote condenses the failure cause for one result row.
func targetNote(tr report.TargetReport) string {
	switch tr.Status {
	case string(plan.StatusPlanFailed):
		return tr.PlanError
	case string(plan.StatusBuildFailed):
		if tr.Build != nil && tr.Build.Error != "" {
			return tr.Build.Error
		}
		return "build failed"
	case string(plan.StatusVerificationFailed):
		if tr.Verification == nil {
			return ""
		}
		var failed []string
		for _, c := range tr.Verification.Checks {
			if !c.Passed {
				failed = append(failed, c.Name)
			}
		}
		return strings.Join(failed, ", ")
	}
	return ""
}

func (p *Printer) summaryLine(s report.Summary) string {
	var parts []string
	if s.Verified > 0 {
		parts = append(parts, p.colorize(fmt.Sprintf("%d verified", s.Verified), colorGreen))
	}
	if s.VerificationFailed > 0 {
		parts = append(parts, p.colorize(fmt.Sprintf("%d verification-failed", s.VerificationFailed), colorRed))
	}
	if s.BuildFailed > 0 {
		parts = append(parts, p.colorize(fmt.Sprintf("%d build-failed", s.BuildFailed), colorRed))
	}
	if s.PlanFailed > 0 {
		parts = append(parts, p.colorize(fmt.Sprintf("%d plan-failed", s.PlanFailed), colorRed))
	}
	if s.Incomplete > 0 {
		parts = append(parts, p.colorize(fmt.Sprintf("%d incomplete", s.Incomplete), colorYellow))
	}

	total := fmt.Sprintf("%d", s.Total)
	if p.Color {
		total = colorBold + total + colorReset
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s targets", total)
	}
	return fmt.Sprintf("%s targets: %s", total, strings.Join(parts, ", "))
}

func (p *Printer) colorize(text, color string) string {
	if !p.Color {
		return text
	}
	return color + text + colorReset
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}

// formatBytes formats bytes for human display: 75890432 → "72.4 MB".
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
