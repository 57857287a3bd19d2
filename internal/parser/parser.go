package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`@[^@\s]+`)

var stepKeywords = []string{"Given", "When", "Then", "And", "But", "*"}

// Parse parses a .feature file and returns a Document AST and any parse errors.
func Parse(filename string, content []byte) (*Document, []ParseError) {
	lines := strings.Split(string(content), "\n")
	var errors []ParseError

	doc := &Document{}
	feature := &Feature{}
	doc.Feature = feature

	i := 0

	// Skip leading blanks and comments
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}
		break
	}

	// Collect feature-level tags
	var featureTags []Tag
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "@") {
			featureTags = append(featureTags, parseTags(trimmed)...)
			i++
			continue
		}
		break
	}
	feature.Header.Tags = featureTags
	feature.Header.Name = filenameWithoutExt(filename)

	if i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "Feature:") {
		feature.Header.Name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[i]), "Feature:"))
		i++

		// Scan description lines until keyword or tag
		var descLines []string
		for i < len(lines) {
			trimmed := strings.TrimSpace(lines[i])
			if isKeyword(trimmed) || isTagLine(trimmed) {
				break
			}
			if _, _, ok := splitStep(trimmed); ok {
				break
			}
			descLines = append(descLines, lines[i])
			i++
		}
		feature.Header.Description = strings.TrimSpace(strings.Join(descLines, "\n"))
	}

	// Body loop
	var pendingTags []Tag
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}

		if isTagLine(trimmed) {
			pendingTags = append(pendingTags, parseTags(trimmed)...)
			i++
			continue
		}

		if strings.HasPrefix(trimmed, "Background:") {
			pendingTags = nil // Background doesn't get tags
			if feature.Background != nil {
				errors = append(errors, ParseError{Line: i + 1, Message: "only one Background is allowed"})
			}
			bg := &Background{Line: i + 1}
			var errs []ParseError
			bg.Description, bg.Steps, i, errs = parseBlock(lines, i+1)
			errors = append(errors, errs...)
			feature.Background = bg
			continue
		}

		if strings.HasPrefix(trimmed, "Scenario:") {
			sd := ScenarioDefinition{
				Tags:     pendingTags,
				Scenario: Scenario{Name: strings.TrimSpace(strings.TrimPrefix(trimmed, "Scenario:"))},
				Line:     i + 1,
			}
			pendingTags = nil
			var errs []ParseError
			sd.Scenario.Description, sd.Scenario.Steps, i, errs = parseBlock(lines, i+1)
			errors = append(errors, errs...)
			feature.Scenarios = append(feature.Scenarios, sd)
			continue
		}

		// Unsupported keywords
		if msg, ok := unsupported(trimmed); ok {
			errors = append(errors, ParseError{Line: i + 1, Message: msg})
			pendingTags = nil
			i = consumeBlock(lines, i+1)
			continue
		}

		if isDocStringDelimiter(trimmed) {
			i, _ = skipDocString(lines, i)
			continue
		}

		if _, _, ok := splitStep(trimmed); ok {
			errors = append(errors, ParseError{Line: i + 1, Message: "step outside of a Scenario or Background"})
		}
		i++
	}

	return doc, errors
}

// parseBlock reads the description and steps following a Background: or
// Scenario: line, starting at index i. It stops at the next keyword, at a
// tag line that belongs to the next block, or at EOF.
func parseBlock(lines []string, i int) (string, []Step, int, []ParseError) {
	var (
		desc   []string
		steps  []Step
		errors []ParseError
	)
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		switch {
		case isKeyword(t):
			return strings.Join(desc, "\n"), steps, i, errors
		case isTagLine(t):
			if tagPrecedesKeyword(lines, i) {
				return strings.Join(desc, "\n"), steps, i, errors
			}
			i++
		case t == "" || strings.HasPrefix(t, "#"):
			i++
		case isDocStringDelimiter(t):
			ds, next, closed := readDocString(lines, i)
			if !closed {
				errors = append(errors, ParseError{Line: i + 1, Message: "unterminated doc string"})
			}
			switch {
			case len(steps) == 0:
				errors = append(errors, ParseError{Line: i + 1, Message: "doc string without a step"})
			case steps[len(steps)-1].Argument != nil:
				errors = append(errors, ParseError{Line: i + 1, Message: "step already has an argument"})
			default:
				steps[len(steps)-1].Argument = &StepArgument{DocString: ds}
			}
			i = next
		case strings.HasPrefix(t, "|"):
			if err := addTableRow(steps, parseRow(t)); err != "" {
				errors = append(errors, ParseError{Line: i + 1, Message: err})
			}
			i++
		default:
			if kw, text, ok := splitStep(t); ok {
				steps = append(steps, Step{Keyword: kw, Text: text, Line: i + 1})
			} else if len(steps) == 0 {
				desc = append(desc, t)
			} else {
				errors = append(errors, ParseError{Line: i + 1, Message: fmt.Sprintf("unexpected line %q", t)})
			}
			i++
		}
	}
	return strings.Join(desc, "\n"), steps, i, errors
}

func addTableRow(steps []Step, row []string) string {
	if len(steps) == 0 {
		return "table row without a step"
	}
	last := &steps[len(steps)-1]
	if last.Argument == nil {
		last.Argument = &StepArgument{DataTable: &DataTable{HeaderRow: row}}
		return ""
	}
	table := last.Argument.DataTable
	if table == nil {
		return "step already has an argument"
	}
	if len(row) != len(table.HeaderRow) {
		return fmt.Sprintf("table row has %d cells, header has %d", len(row), len(table.HeaderRow))
	}
	table.Rows = append(table.Rows, row)
	return ""
}

// splitStep splits "When  they log in" into ("When", "they log in").
func splitStep(trimmed string) (string, string, bool) {
	for _, kw := range stepKeywords {
		if !strings.HasPrefix(trimmed, kw) {
			continue
		}
		rest := trimmed[len(kw):]
		if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		return kw, strings.TrimSpace(rest), true
	}
	return "", "", false
}

func parseRow(trimmed string) []string {
	body := strings.TrimPrefix(trimmed, "|")
	var (
		cells []string
		cell  strings.Builder
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			i++
			switch body[i] {
			case '|':
				cell.WriteByte('|')
			case 'n':
				cell.WriteByte('\n')
			case '\\':
				cell.WriteByte('\\')
			default:
				cell.WriteByte('\\')
				cell.WriteByte(body[i])
			}
		case c == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(c)
		}
	}
	// Text after the final pipe is not a cell.
	return cells
}

func parseTags(line string) []Tag {
	matches := tagPattern.FindAllString(line, -1)
	var tags []Tag
	for _, m := range matches {
		tags = append(tags, Tag{Name: m})
	}
	return tags
}

func isTagLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "@")
}

func isKeyword(trimmed string) bool {
	return strings.HasPrefix(trimmed, "Feature:") ||
		strings.HasPrefix(trimmed, "Background:") ||
		strings.HasPrefix(trimmed, "Scenario:") ||
		strings.HasPrefix(trimmed, "Scenario Outline:") ||
		strings.HasPrefix(trimmed, "Rule:") ||
		strings.HasPrefix(trimmed, "Examples:")
}

func unsupported(trimmed string) (string, bool) {
	switch {
	case strings.HasPrefix(trimmed, "Scenario Outline:"):
		return "Scenario Outline is not supported", true
	case strings.HasPrefix(trimmed, "Rule:"):
		return "Rule is not supported", true
	case strings.HasPrefix(trimmed, "Examples:"):
		return "Examples is not supported", true
	}
	return "", false
}

func isDocStringDelimiter(trimmed string) bool {
	return strings.HasPrefix(trimmed, `"""`) || strings.HasPrefix(trimmed, "```")
}

// readDocString reads the doc string opening at line i. Content lines lose
// the opener's indentation. It returns the index after the closing delimiter
// and whether one was found.
func readDocString(lines []string, i int) (*DocString, int, bool) {
	opener := lines[i]
	indent := len(opener) - len(strings.TrimLeft(opener, " \t"))
	trimmed := strings.TrimSpace(opener)
	delimiter := `"""`
	if strings.HasPrefix(trimmed, "```") {
		delimiter = "```"
	}
	ds := &DocString{MediaType: strings.TrimSpace(strings.TrimPrefix(trimmed, delimiter))}

	var content []string
	for i++; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == delimiter {
			ds.Content = strings.Join(content, "\n")
			return ds, i + 1, true
		}
		content = append(content, unindent(line, indent))
	}
	ds.Content = strings.Join(content, "\n")
	return ds, i, false
}

func unindent(line string, n int) string {
	for n > 0 && len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
		line = line[1:]
		n--
	}
	return strings.ReplaceAll(line, `\"\"\"`, `"""`)
}

// skipDocString advances past a doc string block. i points at the opening delimiter.
func skipDocString(lines []string, i int) (int, bool) {
	_, next, closed := readDocString(lines, i)
	return next, closed
}

// consumeBlock advances past content lines, skipping over doc strings,
// until the next keyword, tag line, or EOF.
func consumeBlock(lines []string, i int) int {
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		if isDocStringDelimiter(t) {
			i, _ = skipDocString(lines, i)
			continue
		}
		if isKeyword(t) || isTagLine(t) {
			break
		}
		i++
	}
	return i
}

// tagPrecedesKeyword checks if a tag line at index i is followed by a Scenario: or keyword line.
func tagPrecedesKeyword(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		t := strings.TrimSpace(lines[j])
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		if strings.HasPrefix(t, "@") {
			continue
		}
		return isKeyword(t)
	}
	return false
}
