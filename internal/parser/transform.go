package parser

import (
	"strings"
)

// ParsedFile is the Layer 2 application model extracted from the AST.
type ParsedFile struct {
	Name      string
	Path      string
	Scenarios []ParsedScenario
	Errors    []ParseError
}

// ParsedScenario is a single runnable scenario. Steps holds the
// Background steps followed by the scenario's own.
type ParsedScenario struct {
	Name    string
	Tags    []string // feature tags followed by scenario tags
	Content string   // raw text from Scenario: line to end of scenario
	Line    int      // 1-based line number of Scenario: line
	Steps   []ParsedStep
}

type ParsedStep struct {
	Keyword string
	Text    string
	Line    int
	Body    string     // doc string content, empty when absent
	Table   [][]string // header row first, nil when absent
}

// HasTag reports whether the scenario carries tag, with or without the
// leading @.
func (s ParsedScenario) HasTag(tag string) bool {
	tag = "@" + strings.TrimPrefix(tag, "@")
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Transform converts a Layer 1 Document into a Layer 2 ParsedFile.
func Transform(doc *Document, filename string, content []byte, errors []ParseError) *ParsedFile {
	pf := &ParsedFile{
		Path:   filename,
		Errors: errors,
	}

	if doc.Feature != nil {
		pf.Name = doc.Feature.Header.Name
	} else {
		pf.Name = filenameWithoutExt(filename)
	}

	if doc.Feature == nil {
		return pf
	}

	lines := strings.Split(string(content), "\n")

	var featureTags []string
	for _, tag := range doc.Feature.Header.Tags {
		featureTags = append(featureTags, tag.Name)
	}
	var background []ParsedStep
	if doc.Feature.Background != nil {
		background = transformSteps(doc.Feature.Background.Steps)
	}

	for _, sd := range doc.Feature.Scenarios {
		ps := ParsedScenario{
			Name: sd.Scenario.Name,
			Line: sd.Line,
			Tags: append([]string(nil), featureTags...),
		}
		for _, tag := range sd.Tags {
			ps.Tags = append(ps.Tags, tag.Name)
		}
		ps.Steps = append(append([]ParsedStep(nil), background...), transformSteps(sd.Scenario.Steps)...)

		// Extract content: from Scenario: line to end of scenario
		startLine := sd.Line - 1 // 0-based
		endLine := len(lines)

		// Find the next scenario's start line or use end of file
		for _, other := range doc.Feature.Scenarios {
			if other.Line > sd.Line && other.Line-1 < endLine {
				candidateEnd := other.Line - 1 // 0-based index of next Scenario: line
				// Walk back to exclude tag lines and blank lines before the next scenario
				for candidateEnd > startLine {
					t := strings.TrimSpace(lines[candidateEnd-1])
					if t == "" || strings.HasPrefix(t, "@") || strings.HasPrefix(t, "#") {
						candidateEnd--
					} else {
						break
					}
				}
				if candidateEnd < endLine {
					endLine = candidateEnd
				}
			}
		}

		// Trim trailing blank lines
		for endLine > startLine && strings.TrimSpace(lines[endLine-1]) == "" {
			endLine--
		}

		if startLine < len(lines) {
			ps.Content = strings.Join(lines[startLine:endLine], "\n")
		}

		pf.Scenarios = append(pf.Scenarios, ps)
	}

	return pf
}

func transformSteps(steps []Step) []ParsedStep {
	out := make([]ParsedStep, 0, len(steps))
	for _, s := range steps {
		ps := ParsedStep{Keyword: s.Keyword, Text: s.Text, Line: s.Line}
		if arg := s.Argument; arg != nil {
			if arg.DocString != nil {
				ps.Body = arg.DocString.Content
			}
			if arg.DataTable != nil {
				ps.Table = append([][]string{arg.DataTable.HeaderRow}, arg.DataTable.Rows...)
			}
		}
		out = append(out, ps)
	}
	return out
}

// ParseFile is Parse followed by Transform.
func ParseFile(filename string, content []byte) *ParsedFile {
	doc, errors := Parse(filename, content)
	return Transform(doc, filename, content, errors)
}

func filenameWithoutExt(filename string) string {
	name := filename
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[:idx]
	}
	return name
}
