package toolgram

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// BuildSystemPrompt lists the tools with their signatures and descriptions, one per line:
//
//	Available tools:
//	- add(x: int, y: int): Add numbers
//	Respond with a tool call.
func BuildSystemPrompt(tools []*Tool) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for i, t := range tools {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(t.Name())
		b.WriteString(Signature(t))
		b.WriteString(": ")
		b.WriteString(t.Description())
	}
	b.WriteString("\nRespond with a tool call.")
	return b.String()
}

// Signature renders the parameter list of t, e.g. (name: string, punct: string = "!").
func Signature(t *Tool) string {
	parts := make([]string, 0, len(t.params))
	for _, p := range t.params {
		s := p.Name + ": " + p.Type.label()
		if p.HasDefault {
			s += " = " + defaultLiteral(p.Default)
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// defaultLiteral renders a default the way the model would write it in a call.
func defaultLiteral(v any) string {
	switch d := v.(type) {
	case nil:
		return "None"
	case string:
		return strconv.Quote(d)
	case bool:
		if d {
			return "True"
		}
		return "False"
	}
	if n, ok := asInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	if f, ok := asFloat64(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "..."
	}
	return string(data)
}
