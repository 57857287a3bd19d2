package runner

import "strings"

// Filter selects scenarios by tag. A scenario is selected when it carries at
// least one include tag (or there are none) and no exclude tag.
type Filter struct {
	Include []string
	Exclude []string
}

// ParseFilter reads a comma separated tag list. Tags prefixed with "~" or
// "not " are excluded. The leading @ is optional.
func ParseFilter(expr string) Filter {
	var f Filter
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case strings.HasPrefix(part, "~"):
			f.Exclude = append(f.Exclude, normalizeTag(part[1:]))
		case strings.HasPrefix(part, "not "):
			f.Exclude = append(f.Exclude, normalizeTag(part[4:]))
		default:
			f.Include = append(f.Include, normalizeTag(part))
		}
	}
	return f
}

func (f Filter) Match(tags []string) bool {
	has := make(map[string]bool, len(tags))
	for _, t := range tags {
		has[normalizeTag(t)] = true
	}
	for _, t := range f.Exclude {
		if has[t] {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, t := range f.Include {
		if has[t] {
			return true
		}
	}
	return false
}

func normalizeTag(t string) string {
	return "@" + strings.TrimPrefix(strings.TrimSpace(t), "@")
}
