package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriserin/gherkit/internal/dispatch"
	"github.com/chriserin/gherkit/internal/parser"
	"github.com/chriserin/gherkit/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <path>[:line]",
	Short: "Show scenarios and the step each line dispatches to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunShow(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func RunShow(w io.Writer, target string) error {
	path, line, err := splitLocation(target)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	pf := parser.ParseFile(path, content)
	for _, e := range pf.Errors {
		fmt.Fprintf(w, "%s:%d: %s\n", path, e.Line, e.Message)
	}

	var matched []parser.ParsedScenario
	for _, s := range pf.Scenarios {
		if line == 0 || s.Line == line {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		if line > 0 {
			return fmt.Errorf("no scenario at %s:%d", path, line)
		}
		return fmt.Errorf("no scenarios in %s", path)
	}

	steps := dispatch.Builtin()
	background := extractBackground(string(content))
	for i, s := range matched {
		if i > 0 {
			fmt.Fprintln(w)
		}
		ui.ShowHeader(w, fmt.Sprintf("%s:%d", path, s.Line), pf.Name)

		if background != "" {
			fmt.Fprintln(w)
			ui.ShowGherkin(w, background)
		}
		fmt.Fprintln(w)
		ui.ShowGherkin(w, s.Content)

		fmt.Fprintln(w)
		for _, step := range s.Steps {
			id, _, _ := steps.Match(step.Text)
			ui.StepBinding(w, step.Keyword, step.Text, id)
		}
	}
	return nil
}

// splitLocation splits "path:line". A target without a numeric suffix is
// a bare path.
func splitLocation(target string) (string, int, error) {
	idx := strings.LastIndex(target, ":")
	if idx < 0 {
		return target, 0, nil
	}
	n, err := strconv.Atoi(target[idx+1:])
	if err != nil {
		return target, 0, nil
	}
	if n < 1 {
		return "", 0, fmt.Errorf("invalid line in %s", target)
	}
	return target[:idx], n, nil
}

// extractBackground finds the Background: section in raw file content
// and returns it as a string, collecting lines until the next keyword or tag.
func extractBackground(content string) string {
	lines := strings.Split(content, "\n")
	inBackground := false
	var bgLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Background:") {
			inBackground = true
			bgLines = append(bgLines, line)
			continue
		}
		if inBackground {
			if strings.HasPrefix(trimmed, "Scenario:") ||
				strings.HasPrefix(trimmed, "@") {
				break
			}
			bgLines = append(bgLines, line)
		}
	}

	// Trim trailing blank lines
	for len(bgLines) > 0 && strings.TrimSpace(bgLines[len(bgLines)-1]) == "" {
		bgLines = bgLines[:len(bgLines)-1]
	}

	return strings.Join(bgLines, "\n")
}
