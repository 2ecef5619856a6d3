package toolgram

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse extracts a single call from model output. The trimmed text must be exactly one
// name(arg, ...) expression whose arguments are literals: quoted strings, integers, floats,
// True/False, lists and mappings with string keys. Trailing argument slots may be left empty,
// as in f(1, , ), because the grammar makes defaulted arguments optional; an empty slot followed
// by a given argument is rejected since positions would no longer line up.
//
// Anything that would need evaluation (identifiers as arguments, operators, attribute access,
// nested calls, trailing text) is rejected with a *ParseError.
func Parse(text string) (ParsedCall, error) {
	p := &parser{src: strings.TrimSpace(text)}
	if p.src == "" {
		return ParsedCall{}, p.fail("empty input")
	}
	call, err := p.call()
	if err != nil {
		return ParsedCall{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return ParsedCall{}, p.fail("unexpected trailing text")
	}
	return call, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(format string, args ...any) *ParseError {
	return &ParseError{Pos: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.eof() {
			return p.fail("expected %q, got end of input", c)
		}
		return p.fail("expected %q, got %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) call() (ParsedCall, error) {
	name := p.ident()
	if name == "" {
		return ParsedCall{}, p.fail("expected a tool name")
	}
	switch name {
	case "True", "False", "None":
		p.pos -= len(name)
		return ParsedCall{}, p.fail("%s is a keyword, not a tool name", name)
	}
	p.skipSpace()
	if p.peek() == '.' {
		return ParsedCall{}, p.fail("attribute access is not allowed")
	}
	if err := p.expect('('); err != nil {
		return ParsedCall{}, err
	}
	args, err := p.sequence(')', true)
	if err != nil {
		return ParsedCall{}, err
	}
	if args == nil {
		args = []any{}
	}
	return ParsedCall{Name: name, Args: args}, nil
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '_' || isLetter(c) || (p.pos > start && isDigit(c)) {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

// sequence parses comma-separated literals up to the closing byte. The opening byte has already
// been consumed.
func (p *parser) sequence(closing byte, callArgs bool) ([]any, error) {
	var out []any
	emptySlot := false
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			return out, nil
		}
		if callArgs && p.peek() == ',' {
			emptySlot = true
			p.pos++
			continue
		}
		if emptySlot {
			return nil, p.fail("argument given after an empty argument slot")
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return out, nil
		default:
			if p.eof() {
				return nil, p.fail("expected %q, got end of input", closing)
			}
			if callArgs {
				return nil, p.fail("unexpected %q in argument list", p.peek())
			}
			return nil, p.fail("unexpected %q", p.peek())
		}
	}
}

func (p *parser) literal() (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.fail("expected a literal, got end of input")
	}
	var (
		v   any
		err error
	)
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		v, err = p.str()
	case c == '[':
		p.pos++
		var items []any
		items, err = p.sequence(']', false)
		if items == nil {
			items = []any{}
		}
		v = items
	case c == '{':
		v, err = p.mapping()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		v, err = p.number()
	case c == '_' || isLetter(c):
		v, err = p.keyword()
	default:
		return nil, p.fail("unexpected %q", c)
	}
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	switch c := p.peek(); c {
	case '(', '.', '+', '-', '*', '/', '%', '[', '<', '>', '=', '&', '|', '^', '@':
		return nil, p.fail("operator %q is not allowed in a literal argument", c)
	}
	return v, nil
}

func (p *parser) keyword() (any, error) {
	start := p.pos
	word := p.ident()
	switch word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null", "nil":
		p.pos = start
		return nil, p.fail("%s is not a supported literal", word)
	}
	p.skipSpace()
	if p.peek() == '(' {
		p.pos = start
		return nil, p.fail("nested call %s(...) is not allowed", word)
	}
	p.pos = start
	return nil, p.fail("identifier %s is not a literal", word)
}

func (p *parser) mapping() (any, error) {
	p.pos++ // {
	out := make(map[string]any)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}
		if c := p.peek(); c != '"' && c != '\'' {
			return nil, p.fail("mapping keys must be strings")
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		out[key] = v
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return out, nil
		default:
			if p.eof() {
				return nil, p.fail("expected '}', got end of input")
			}
			return nil, p.fail("unexpected %q in mapping", p.peek())
		}
	}
}

func (p *parser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	digits := p.digits()
	isFloat := false
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		digits += p.digits()
	}
	if digits == 0 {
		p.pos = start
		return nil, p.fail("malformed number")
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '-' || c == '+' {
			p.pos++
		}
		if p.digits() == 0 {
			return nil, p.fail("malformed exponent")
		}
	}
	if c := p.peek(); c == '_' || isLetter(c) {
		return nil, p.fail("malformed number")
	}
	lit := p.src[start:p.pos]
	if !isFloat {
		if body := strings.TrimLeft(lit, "+-"); len(body) > 1 && body[0] == '0' && strings.Trim(body, "0") != "" {
			p.pos = start
			return nil, p.fail("leading zeros in integer %s", lit)
		}
	}
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			p.pos = start
			return nil, p.fail("invalid float %s", lit)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		p.pos = start
		return nil, p.fail("integer %s out of range", lit)
	}
	return n, nil
}

func (p *parser) digits() int {
	n := 0
	for !p.eof() && isDigit(p.src[p.pos]) {
		p.pos++
		n++
	}
	return n
}

func (p *parser) str() (string, error) {
	quote := p.src[p.pos]
	start := p.pos
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			p.pos = start
			return "", p.fail("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n':
			return "", p.fail("newline in string")
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
}

func (p *parser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.eof() {
		return p.fail("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case '0':
		b.WriteByte(0)
	case 'x':
		return p.hexEscape(b, 2)
	case 'u':
		return p.hexEscape(b, 4)
	default:
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *parser) hexEscape(b *strings.Builder, n int) error {
	if p.pos+n > len(p.src) {
		return p.fail("truncated escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return p.fail("invalid escape \\%s", p.src[p.pos-1:p.pos+n])
	}
	p.pos += n
	b.WriteRune(rune(v))
	return nil
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
