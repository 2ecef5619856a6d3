package toolgram

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Primitive productions. They are emitted before any tool rule, whether or not a tool uses them,
// and must stay byte-for-byte stable: engines cache compiled grammars by their text.
const (
	StringRule = `<string> ::= "(?:\\\\.|[^\\\\"])*"`
	IntRule    = `<int> ::= -?[0-9]+`
	FloatRule  = `<float> ::= -?[0-9]+(?:\\.[0-9]+)?`
	BoolRule   = `<bool> ::= \"True\" | \"False\"`
)

// PrimitiveRules lists the primitive productions in emission order.
var PrimitiveRules = []string{StringRule, IntRule, FloatRule, BoolRule}

// Grammar is a compiled constraint grammar: one production per line, the root last.
type Grammar struct {
	Rules []string
	Root  string
}

// String renders the grammar in the form handed to the generation engine.
func (g *Grammar) String() string {
	if g == nil {
		return ""
	}
	lines := make([]string, 0, len(g.Rules)+1)
	lines = append(lines, g.Rules...)
	lines = append(lines, g.Root)
	return strings.Join(lines, "\n")
}

// CompileGrammar builds the grammar for tools in the given order. The root alternation lists
// the tools in that same order.
func CompileGrammar(tools []*Tool) *Grammar {
	g := &Grammar{Rules: make([]string, 0, len(PrimitiveRules)+len(tools))}
	g.Rules = append(g.Rules, PrimitiveRules...)
	alts := make([]string, 0, len(tools))
	for _, t := range tools {
		g.Rules = append(g.Rules, ToolRule(t))
		alts = append(alts, "<"+t.Name()+">")
	}
	g.Root = "<root> ::= " + strings.Join(alts, " | ")
	return g
}

// ToolRule returns the production for one tool: its custom grammar verbatim when present,
// otherwise a rule matching name(arg, arg, ...) with one primitive per parameter. Parameters
// with a default are optional; structured and list parameters are carried as strings.
func ToolRule(t *Tool) string {
	if custom, ok := t.CustomGrammar(); ok {
		return custom
	}
	args := make([]string, 0, 2*len(t.params))
	for i, p := range t.params {
		if i > 0 {
			args = append(args, `", "`)
		}
		nt := primitiveFor(p.Type)
		if p.HasDefault {
			nt = "[ " + nt + " ]"
		}
		args = append(args, nt)
	}
	return fmt.Sprintf(`<%s> ::= "%s(" %s ")"`, t.Name(), t.Name(), strings.Join(args, " "))
}

func primitiveFor(t Type) string {
	switch t.Kind {
	case KindInt:
		return "<int>"
	case KindFloat:
		return "<float>"
	case KindBool:
		return "<bool>"
	default:
		return "<string>"
	}
}

var (
	ruleHead    = regexp.MustCompile(`^\s*<([A-Za-z_][A-Za-z0-9_-]*)>\s*::=`)
	nonterminal = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_-]*)>`)
)

// Check reports nonterminals that are referenced but never defined, and nonterminals defined
// more than once. A custom tool grammar can introduce either; the engine would reject both.
func (g *Grammar) Check() error {
	defined := make(map[string]int)
	var order, bodies []string
	for line := range strings.SplitSeq(g.String(), "\n") {
		m := ruleHead.FindStringSubmatchIndex(line)
		if m == nil {
			bodies = append(bodies, line)
			continue
		}
		name := line[m[2]:m[3]]
		if defined[name] == 0 {
			order = append(order, name)
		}
		defined[name]++
		bodies = append(bodies, line[m[1]:])
	}
	var errs []error
	for _, name := range order {
		if n := defined[name]; n > 1 {
			errs = append(errs, fmt.Errorf("nonterminal <%s> defined %d times", name, n))
		}
	}
	reported := make(map[string]bool)
	for _, body := range bodies {
		for _, m := range nonterminal.FindAllStringSubmatch(body, -1) {
			name := m[1]
			if defined[name] == 0 && !reported[name] {
				reported[name] = true
				errs = append(errs, fmt.Errorf("nonterminal <%s> is not defined", name))
			}
		}
	}
	return errors.Join(errs...)
}
