package tools

import (
	"regexp"
	"strings"
)

var (
	listItem  = regexp.MustCompile(`^\s*(?:\d{1,2}[.):]|[-*•])\s+(.+)$`)
	emphasis  = regexp.MustCompile(`\*\*|__`)
	fenceLine = regexp.MustCompile("^\\s*```")
)

// ParseObservations extracts the observations in a model answer: its list
// items, or its non-empty paragraphs when the text has no list. At most limit
// items are returned (limit <= 0 means no bound).
func ParseObservations(text string, limit int) []string {
	items := ListItems(text, limit)
	if len(items) > 0 {
		return items
	}
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if p := clean(strings.Join(strings.Fields(para), " ")); p != "" {
			items = append(items, p)
		}
	}
	return bound(items, limit)
}

// ListItems returns the numbered and bulleted items in text. Indented
// continuation lines are folded into the current item.
func ListItems(text string, limit int) []string {
	var items []string
	inList := false
	for _, line := range strings.Split(text, "\n") {
		if fenceLine.MatchString(line) {
			continue
		}
		if m := listItem.FindStringSubmatch(line); m != nil {
			items = append(items, clean(m[1]))
			inList = true
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			inList = false
			continue
		}
		if inList && len(items) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			items[len(items)-1] = clean(items[len(items)-1] + " " + trimmed)
		}
	}
	return bound(items, limit)
}

func bound(items []string, limit int) []string {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func clean(s string) string {
	return strings.TrimSpace(emphasis.ReplaceAllString(s, ""))
}
