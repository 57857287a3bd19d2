package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	skipStyle   = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func outcomeLabel(outcome string) string {
	switch outcome {
	case "passed":
		return passStyle.Render("pass")
	case "failed":
		return failStyle.Render("fail")
	default:
		return skipStyle.Render("skip")
	}
}

func ScenarioLine(w io.Writer, outcome, feature, name string, d time.Duration) {
	fmt.Fprintf(w, "%s  %s: %s %s\n", outcomeLabel(outcome), feature, name, dimStyle.Render(d.Round(time.Millisecond).String()))
}

// StepFailure prints the failing step under its scenario line.
func StepFailure(w io.Writer, step, kind, diagnostic string) {
	if step == "" {
		fmt.Fprintf(w, "      %s\n", failStyle.Render(kind))
	} else {
		fmt.Fprintf(w, "      %s %s\n", failStyle.Render(kind), step)
	}
	for _, line := range strings.Split(diagnostic, "\n") {
		fmt.Fprintf(w, "        %s\n", line)
	}
}

func SummaryLine(w io.Writer, passed, failed, skipped int, d time.Duration) {
	parts := []string{passStyle.Render(fmt.Sprintf("%d passed", passed))}
	if failed > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d failed", failed)))
	} else {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	parts = append(parts, skipStyle.Render(fmt.Sprintf("%d skipped", skipped)))
	fmt.Fprintf(w, "%s in %s\n", strings.Join(parts, ", "), d.Round(time.Millisecond))
}

func ListRow(w io.Writer, location, name string, tags []string, locWidth, nameWidth int) {
	fmt.Fprintf(w, "%-*s  %-*s  %s\n", locWidth, location, nameWidth, name, dimStyle.Render(strings.Join(tags, " ")))
}

func ShowHeader(w io.Writer, location, name string) {
	fmt.Fprintln(w, headerStyle.Render(location)+"  "+name)
}

func ShowGherkin(w io.Writer, content string) {
	fmt.Fprintln(w, content)
}

// StepBinding prints a step with the id it dispatches to.
func StepBinding(w io.Writer, keyword, text, id string) {
	if id == "" {
		fmt.Fprintf(w, "  %s %s  %s\n", keyword, text, failStyle.Render("undefined"))
		return
	}
	fmt.Fprintf(w, "  %s %s  %s\n", keyword, text, dimStyle.Render(id))
}

func RunRow(w io.Writer, id string, started time.Time, passed, failed, skipped int, finished bool) {
	state := fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped)
	switch {
	case !finished:
		state = skipStyle.Render("unfinished")
	case failed > 0:
		state = failStyle.Render(state)
	default:
		state = passStyle.Render(state)
	}
	fmt.Fprintf(w, "%s  %s  %s\n", shortID(id), started.Format("2006-01-02 15:04:05"), state)
}

func ResultRow(w io.Writer, outcome, feature, name, kind, diagnostic string) {
	fmt.Fprintf(w, "%s  %s: %s\n", outcomeLabel(outcome), feature, name)
	if diagnostic != "" {
		StepFailure(w, "", kind, diagnostic)
	}
}

func LocatorRow(w io.Writer, element, strategy, value string, elemWidth int) {
	fmt.Fprintf(w, "  %-*s  %s %s\n", elemWidth, element, dimStyle.Render(strategy), value)
}

func PageHeader(w io.Writer, page string) {
	fmt.Fprintln(w, headerStyle.Render(page))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
