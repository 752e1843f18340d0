/*
formula.go - Restricted arithmetic formula evaluator

PURPOSE:
  Bill heads of calculation type "formula" carry an administrator-edited
  expression such as "unitUsage * rate + 50". The expression is parsed
  against a fixed grammar and evaluated with decimal arithmetic. Nothing
  else is reachable: no function calls, no member access, no other names.

GRAMMAR:
  expr    := term (('+' | '-') term)*
  term    := unary (('*' | '/') unary)*
  unary   := ('+' | '-') unary | primary
  primary := number | ident | '(' expr ')'
  ident   := "unitUsage" | "rate"

FAILURES (all FormulaError, never a masked zero):
  - unknown identifier or character
  - malformed expression (unbalanced parentheses, dangling operator)
  - division by zero at evaluation time
  - a variable left unbound at evaluation time

SEE ALSO:
  - calculator.go: Binds unitUsage and rate from the bill head
*/
package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	VarUnitUsage = "unitUsage"
	VarRate      = "rate"

	maxFormulaLen   = 512
	maxFormulaDepth = 64
)

var allowedIdents = map[string]bool{VarUnitUsage: true, VarRate: true}

// Formula is a parsed, reusable expression.
type Formula struct {
	src  string
	root node
}

// ParseFormula parses src, rejecting anything outside the grammar.
func ParseFormula(src string) (*Formula, error) {
	if len(src) > maxFormulaLen {
		return nil, &FormulaError{Expr: src, Pos: -1, Reason: "expression too long"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.fail(t, "unexpected "+t.describe())
	}
	return &Formula{src: src, root: root}, nil
}

func (f *Formula) String() string { return f.src }

// Eval evaluates the formula with the given variable bindings.
func (f *Formula) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return f.root.eval(f.src, vars)
}

// EvalFormula parses and evaluates in one step.
func EvalFormula(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	f, err := ParseFormula(src)
	if err != nil {
		return decimal.Zero, err
	}
	return f.Eval(vars)
}

// =============================================================================
// LEXER
// =============================================================================

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  decimal.Decimal
	pos  int
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return "'" + t.text + "'"
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case isDigit(c) || c == '.':
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			text := src[start:i]
			n, err := decimal.NewFromString(text)
			if err != nil || strings.Count(text, ".") > 1 {
				return nil, &FormulaError{Expr: src, Pos: start, Reason: "malformed number " + text}
			}
			toks = append(toks, token{kind: tokNum, text: text, num: n, pos: start})
		case isLetter(c):
			start := i
			for i < len(src) && (isLetter(src[i]) || isDigit(src[i])) {
				i++
			}
			name := src[start:i]
			if !allowedIdents[name] {
				return nil, &FormulaError{Expr: src, Pos: start, Reason: "unknown identifier " + name}
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: start})
		default:
			return nil, &FormulaError{Expr: src, Pos: i, Reason: "unexpected character " + string(c)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// =============================================================================
// PARSER - recursive descent
// =============================================================================

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) fail(t token, reason string) *FormulaError {
	return &FormulaError{Expr: p.src, Pos: t.pos, Reason: reason}
}

func (p *parser) expr(depth int) (node, error) {
	if depth > maxFormulaDepth {
		return nil, p.fail(p.peek(), "expression nested too deeply")
	}
	left, err := p.term(depth)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.term(depth)
		if err != nil {
			return nil, err
		}
		left = binary{op: t.text[0], left: left, right: right, pos: t.pos}
	}
}

func (p *parser) term(depth int) (node, error) {
	left, err := p.unary(depth)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.unary(depth)
		if err != nil {
			return nil, err
		}
		left = binary{op: t.text[0], left: left, right: right, pos: t.pos}
	}
}

func (p *parser) unary(depth int) (node, error) {
	if depth > maxFormulaDepth {
		return nil, p.fail(p.peek(), "expression nested too deeply")
	}
	t := p.peek()
	if t.kind == tokOp && (t.text == "+" || t.text == "-") {
		p.next()
		operand, err := p.unary(depth + 1)
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return negate{operand: operand}, nil
		}
		return operand, nil
	}
	return p.primary(depth)
}

func (p *parser) primary(depth int) (node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return literal{value: t.num}, nil
	case tokIdent:
		return variable{name: t.text, pos: t.pos}, nil
	case tokLParen:
		inner, err := p.expr(depth + 1)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.fail(closing, "expected ')' but found "+closing.describe())
		}
		return inner, nil
	default:
		return nil, p.fail(t, "expected number, identifier or '(' but found "+t.describe())
	}
}

// =============================================================================
// AST
// =============================================================================

type node interface {
	eval(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type literal struct{ value decimal.Decimal }

func (n literal) eval(string, map[string]decimal.Decimal) (decimal.Decimal, error) {
	return n.value, nil
}

type variable struct {
	name string
	pos  int
}

func (n variable) eval(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := vars[n.name]
	if !ok {
		return decimal.Zero, &FormulaError{Expr: src, Pos: n.pos, Reason: "variable " + n.name + " is not bound"}
	}
	return v, nil
}

type negate struct{ operand node }

func (n negate) eval(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.operand.eval(src, vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binary struct {
	op          byte
	left, right node
	pos         int
}

func (n binary) eval(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.left.eval(src, vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(src, vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	default:
		if r.IsZero() {
			return decimal.Zero, &FormulaError{Expr: src, Pos: n.pos, Reason: "division by zero"}
		}
		return l.Div(r), nil
	}
}
