package toolgram

import (
	"strings"
)

// grammarMarker opens the author-supplied grammar section of a tool's documentation.
const grammarMarker = "grammar:"

// DocInfo is what ExtractDoc recovers from a tool's documentation block.
type DocInfo struct {
	// Summary is the first non-blank line, trimmed. Empty if the doc is blank.
	Summary string
	// Grammar is the text following the "Grammar:" marker line, or "" if there is none.
	Grammar string
}

// ExtractDoc splits a documentation block into its summary line and an optional grammar
// override. The marker line is matched case-insensitively after trimming; everything after it
// up to the end of the doc is the grammar, with trailing spaces and surrounding blank lines
// removed and the common indentation stripped. Lines before the marker other than the summary
// are ignored.
//
//	Repeat a string.
//
//	Grammar:
//	    <repeat> ::= "repeat(" <int> ", " <string> ")"
func ExtractDoc(doc string) DocInfo {
	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")
	var info DocInfo
	summaryAt := -1
	for i, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			info.Summary = s
			summaryAt = i
			break
		}
	}
	if summaryAt < 0 {
		return info
	}
	for i := summaryAt + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[i])), grammarMarker) {
			info.Grammar = grammarSection(lines[i+1:])
			break
		}
	}
	return info
}

func grammarSection(lines []string) string {
	trimmed := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed = append(trimmed, strings.TrimRight(l, " \t"))
	}
	for len(trimmed) > 0 && trimmed[0] == "" {
		trimmed = trimmed[1:]
	}
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == "" {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) == 0 {
		return ""
	}
	indent := -1
	for _, l := range trimmed {
		if l == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, l := range trimmed {
		if len(l) >= indent {
			trimmed[i] = l[indent:]
		}
	}
	return strings.Join(trimmed, "\n")
}
