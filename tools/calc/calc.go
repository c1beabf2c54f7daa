// Package calc provides the calculator tool: a safe arithmetic
// expression evaluator with the common math functions. No code
// execution, just a recursive-descent parser over float64.
package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/relaydev/relay"
)

// Tool implements relay.Tool for the "calculator" name.
type Tool struct{}

var _ relay.Tool = (*Tool)(nil)

// New creates the calculator tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{{
		Name:        "calculator",
		Description: "Evaluate a math expression. Supports + - * / % ^, parentheses, constants pi and e, and functions like sqrt, abs, min, max, log, exp, sin, cos, tan, floor, ceil, round, pow.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string","description":"Expression to evaluate, e.g. sqrt(2) * (3 + 4)"}},"required":["expression"]}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (relay.ToolOutput, error) {
	var params struct {
		Expression string `json:"expression"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return relay.ToolOutput{Err: "invalid args: " + err.Error()}, nil
		}
	}
	if strings.TrimSpace(params.Expression) == "" {
		return relay.ToolOutput{Err: "expression is required"}, nil
	}
	v, err := Eval(params.Expression)
	if err != nil {
		return relay.ToolOutput{Err: "ERROR: " + err.Error()}, nil
	}
	return relay.ToolOutput{Content: formatResult(v)}, nil
}

// formatResult renders integers without a trailing ".000000".
func formatResult(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Eval parses and evaluates expr.
func Eval(expr string) (float64, error) {
	p := &parser{input: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not finite")
	}
	return v, nil
}

var constants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
}

var unaryFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"log":   math.Log,
	"log2":  math.Log2,
	"log10": math.Log10,
	"exp":   math.Exp,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
}

var binaryFuncs = map[string]func(float64, float64) float64{
	"pow":   math.Pow,
	"min":   math.Min,
	"max":   math.Max,
	"mod":   math.Mod,
	"atan2": math.Atan2,
}

// parser is a recursive-descent expression parser.
// Grammar: expr := term (('+'|'-') term)*
//
//	term   := power (('*'|'/'|'%') power)*
//	power  := unary ('^' power)?          right associative
//	unary  := '-' unary | atom
//	atom   := number | ident '(' args ')' | ident | '(' expr ')'
type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.accept('+'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.accept('-'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.accept('*'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.accept('/'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.accept('%'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.accept('^') {
		exp, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.accept('-') {
		v, err := p.parseUnary()
		return -v, err
	}
	p.accept('+')
	return p.parseAtom()
}

func (p *parser) parseAtom() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if p.accept('(') {
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if !p.expect(')') {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return v, nil
	}

	c := p.input[p.pos]
	if c >= '0' && c <= '9' || c == '.' {
		return p.parseNumber()
	}
	if unicode.IsLetter(rune(c)) {
		return p.parseIdent()
	}
	return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' ||
			((c == '+' || c == '-') && p.pos > start && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", p.input[start:p.pos])
	}
	return v, nil
}

func (p *parser) parseIdent() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsLetter(rune(p.input[p.pos])) || unicode.IsDigit(rune(p.input[p.pos]))) {
		p.pos++
	}
	name := strings.ToLower(p.input[start:p.pos])

	p.skipSpace()
	if !p.accept('(') {
		if v, ok := constants[name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown identifier %q", name)
	}

	first, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.accept(',') {
		second, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if !p.expect(')') {
			return 0, fmt.Errorf("missing closing parenthesis after %s()", name)
		}
		fn, ok := binaryFuncs[name]
		if !ok {
			return 0, fmt.Errorf("unknown function %q with two arguments", name)
		}
		return fn(first, second), nil
	}
	if !p.expect(')') {
		return 0, fmt.Errorf("missing closing parenthesis after %s()", name)
	}
	if fn, ok := unaryFuncs[name]; ok {
		return fn(first), nil
	}
	return 0, fmt.Errorf("unknown function %q", name)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) accept(c byte) bool {
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(c byte) bool {
	p.skipSpace()
	return p.accept(c)
}
