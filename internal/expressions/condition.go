package expressions

import (
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// Evaluate resolves placeholders in expression and evaluates it as a
// restricted boolean expression:
//
//	or      = and { "||" and }
//	and     = unary { "&&" unary }
//	unary   = "!" unary | primary
//	primary = "(" or ")" | operand [ cmp operand ]
//	cmp     = "==" | "=" | "!=" | "<" | "<=" | ">" | ">=" | "contains"
//
// Operands are quoted literals or bare text up to the next operator.
// Comparison is numeric when both operands are unquoted numbers, textual otherwise.
// A lone operand must be true or false. Any parse failure yields false and
// a CONDITION_ERROR.
//
// Placeholders are resolved before parsing, so a value holding an operator
// such as " contains " or "&&" is parsed as one. Quote the placeholder
// ("{{x}}") to compare such values as text.
func Evaluate(expression string, scope *Scope) (bool, error) {
	resolved := Resolve(expression, scope)
	if strings.TrimSpace(resolved) == "" {
		return false, condErr(expression, "empty condition")
	}

	toks, err := tokenize(resolved)
	if err != nil {
		return false, condErr(expression, err.Error())
	}
	p := &condParser{toks: toks}
	val, err := p.parseOr()
	if err != nil {
		return false, condErr(expression, err.Error())
	}
	if p.peek().kind != tokEOF {
		return false, condErr(expression, "unexpected "+p.peek().String())
	}
	return val, nil
}

func condErr(expression, msg string) error {
	return schema.NewErrorf(schema.ErrCodeCondition, "condition %q: %s", expression, msg).
		WithDetails(map[string]any{"expression": expression})
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokText
	tokQuoted
	tokCmp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	val  string
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokQuoted:
		return "string " + t.val
	default:
		return "'" + t.val + "'"
	}
}

type condError string

func (e condError) Error() string { return string(e) }

// tokenize splits the resolved expression. Bare text accumulates (including
// spaces) until an operator; "(" and "!" only act as operators at the start
// of an operand, and ")" only closes an open group.
func tokenize(s string) ([]token, error) {
	var (
		toks  []token
		buf   strings.Builder
		depth int
	)
	flush := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			toks = append(toks, token{kind: tokText, val: text})
		}
		buf.Reset()
	}
	atOperandStart := func() bool {
		return strings.TrimSpace(buf.String()) == ""
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		next := byte(0)
		if i+1 < len(s) {
			next = s[i+1]
		}
		switch {
		case c == '&' && next == '&':
			flush()
			toks = append(toks, token{kind: tokAnd, val: "&&"})
			i++
		case c == '|' && next == '|':
			flush()
			toks = append(toks, token{kind: tokOr, val: "||"})
			i++
		case c == '=' && next == '=', c == '!' && next == '=', c == '<' && next == '=', c == '>' && next == '=':
			flush()
			toks = append(toks, token{kind: tokCmp, val: string([]byte{c, next})})
			i++
		case c == '<', c == '>':
			flush()
			toks = append(toks, token{kind: tokCmp, val: string(c)})
		case c == '=':
			flush()
			toks = append(toks, token{kind: tokCmp, val: "=="})
		case c == '!' && atOperandStart():
			flush()
			toks = append(toks, token{kind: tokNot, val: "!"})
		case c == '(' && atOperandStart():
			flush()
			depth++
			toks = append(toks, token{kind: tokLParen, val: "("})
		case c == ')' && depth > 0:
			flush()
			depth--
			toks = append(toks, token{kind: tokRParen, val: ")"})
		case (c == '"' || c == '\'') && atOperandStart():
			flush()
			lit, end, ok := readQuoted(s, i)
			if !ok {
				return nil, condError("unterminated string literal")
			}
			toks = append(toks, token{kind: tokQuoted, val: lit})
			i = end
		case c == 'c' && isContainsAt(s, i, buf.String()):
			flush()
			toks = append(toks, token{kind: tokCmp, val: "contains"})
			i += len("contains") - 1
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return toks, nil
}

func readQuoted(s string, start int) (string, int, bool) {
	quote := s[start]
	var b strings.Builder
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if c == quote {
			return b.String(), i, true
		}
		b.WriteByte(c)
	}
	return "", 0, false
}

// isContainsAt reports whether the keyword "contains" starts at i as a
// standalone word following a non-empty left operand.
func isContainsAt(s string, i int, pending string) bool {
	const kw = "contains"
	if !strings.HasPrefix(s[i:], kw) {
		return false
	}
	if pending == "" || !strings.HasSuffix(pending, " ") || strings.TrimSpace(pending) == "" {
		return false
	}
	end := i + len(kw)
	return end == len(s) || s[end] == ' ' || s[end] == '"' || s[end] == '\''
}

type operand struct {
	text   string
	quoted bool
}

type condParser struct {
	toks []token
	pos  int
}

func (p *condParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *condParser) advance() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *condParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *condParser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *condParser) parseUnary() (bool, error) {
	if p.peek().kind == tokNot {
		p.advance()
		v, err := p.parseUnary()
		return !v, err
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (bool, error) {
	if p.peek().kind == tokLParen {
		p.advance()
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.peek().kind != tokRParen {
			return false, condError("missing closing parenthesis")
		}
		p.advance()
		return v, nil
	}

	left, hasLeft := p.parseOperand()
	if p.peek().kind != tokCmp {
		if !hasLeft {
			return false, condError("expected operand, found " + p.peek().String())
		}
		return truthy(left)
	}
	op := p.advance().val
	right, _ := p.parseOperand()
	return compare(left, right, op), nil
}

// parseOperand consumes a text or quoted token. A missing operand (for
// example a placeholder that resolved to "") reads as empty text.
func (p *condParser) parseOperand() (operand, bool) {
	switch t := p.peek(); t.kind {
	case tokText:
		p.advance()
		return operand{text: t.val}, true
	case tokQuoted:
		p.advance()
		return operand{text: t.val, quoted: true}, true
	}
	return operand{}, false
}

func truthy(o operand) (bool, error) {
	switch strings.ToLower(o.text) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, condError("operand " + quoteForMsg(o.text) + " is not a boolean")
}

func quoteForMsg(s string) string {
	return "\"" + s + "\""
}

func compare(a, b operand, op string) bool {
	if op == "contains" {
		return strings.Contains(a.text, b.text)
	}
	if !a.quoted && !b.quoted {
		af, aok := parseNumber(a.text)
		bf, bok := parseNumber(b.text)
		if aok && bok {
			return compareOrdered(af, bf, op)
		}
	}
	return compareOrdered(strings.Compare(a.text, b.text), 0, op)
}

func compareOrdered[T int | float64](a, b T, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}
