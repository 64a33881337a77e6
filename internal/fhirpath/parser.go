// Package fhirpath evaluates the subset of FHIRPath expressions used by the
// viewer's field-mapping tables: identifier chains, where() filters with
// = / != comparisons, collection indexing, first(), and external constants
// (%var) resolved from an evaluation context. Expressions operate on decoded
// JSON trees and return flat collections.
package fhirpath

import (
	"fmt"
	"strconv"
	"unicode"
)

type step interface{ isStep() }

type fieldStep struct{ name string }

type indexStep struct{ n int }

type firstStep struct{}

type whereStep struct{ cond condition }

func (fieldStep) isStep() {}
func (indexStep) isStep() {}
func (firstStep) isStep() {}
func (whereStep) isStep() {}

type litKind int

const (
	litString litKind = iota
	litNumber
	litBool
	litVar
)

type literal struct {
	kind litKind
	str  string
	num  float64
	b    bool
}

type condition struct {
	path []string
	op   string // "=" or "!="
	rhs  literal
}

// Expr is a parsed path expression.
type Expr struct {
	source string
	steps  []step
}

// String returns the original expression text.
func (e *Expr) String() string { return e.source }

// Parse compiles an expression.
func Parse(input string) (*Expr, error) {
	p := &parser{input: input}
	steps, err := p.parseSteps()
	if err != nil {
		return nil, fmt.Errorf("fhirpath: parsing %q: %w", input, err)
	}
	return &Expr{source: input, steps: steps}, nil
}

// MustParse compiles an expression, panicking on error. Intended for the
// static mapping tables, which are validated by tests.
func MustParse(input string) *Expr {
	e, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseSteps() ([]step, error) {
	var steps []step
	for {
		p.skipSpace()
		if p.eof() {
			return nil, fmt.Errorf("unexpected end of expression")
		}

		name, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.peek() == '(' {
			fn, err := p.parseFunction(name)
			if err != nil {
				return nil, err
			}
			steps = append(steps, fn)
		} else {
			steps = append(steps, fieldStep{name: name})
		}

		// Collection indexing, e.g. name[0]
		p.skipSpace()
		if p.peek() == '[' {
			idx, err := p.parseIndex()
			if err != nil {
				return nil, err
			}
			steps = append(steps, idx)
		}

		p.skipSpace()
		if p.eof() {
			return steps, nil
		}
		if p.peek() != '.' {
			return nil, fmt.Errorf("unexpected character %q at %d", p.peek(), p.pos)
		}
		p.pos++ // consume '.'
	}
}

func (p *parser) parseFunction(name string) (step, error) {
	p.pos++ // consume '('
	switch name {
	case "first":
		p.skipSpace()
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return firstStep{}, nil
	case "where":
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return whereStep{cond: cond}, nil
	default:
		return nil, fmt.Errorf("unsupported function %q", name)
	}
}

func (p *parser) parseCondition() (condition, error) {
	var cond condition
	for {
		p.skipSpace()
		name, err := p.parseIdentifier()
		if err != nil {
			return cond, err
		}
		cond.path = append(cond.path, name)
		p.skipSpace()
		if p.peek() == '.' {
			p.pos++
			continue
		}
		break
	}

	p.skipSpace()
	switch {
	case p.peek() == '=':
		cond.op = "="
		p.pos++
	case p.peek() == '!' && p.peekAt(1) == '=':
		cond.op = "!="
		p.pos += 2
	default:
		return cond, fmt.Errorf("expected comparison operator at %d", p.pos)
	}

	p.skipSpace()
	rhs, err := p.parseLiteral()
	if err != nil {
		return cond, err
	}
	cond.rhs = rhs
	p.skipSpace()
	return cond, nil
}

func (p *parser) parseLiteral() (literal, error) {
	switch {
	case p.peek() == '\'':
		p.pos++
		start := p.pos
		for !p.eof() && p.peek() != '\'' {
			p.pos++
		}
		if p.eof() {
			return literal{}, fmt.Errorf("unterminated string literal")
		}
		s := p.input[start:p.pos]
		p.pos++ // closing quote
		return literal{kind: litString, str: s}, nil

	case p.peek() == '%':
		p.pos++
		name, err := p.parseIdentifier()
		if err != nil {
			return literal{}, err
		}
		return literal{kind: litVar, str: name}, nil

	case unicode.IsDigit(rune(p.peek())) || p.peek() == '-':
		start := p.pos
		if p.peek() == '-' {
			p.pos++
		}
		for !p.eof() && (unicode.IsDigit(rune(p.peek())) || p.peek() == '.') {
			p.pos++
		}
		n, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return literal{}, fmt.Errorf("invalid number literal %q", p.input[start:p.pos])
		}
		return literal{kind: litNumber, num: n}, nil

	default:
		name, err := p.parseIdentifier()
		if err != nil {
			return literal{}, err
		}
		switch name {
		case "true":
			return literal{kind: litBool, b: true}, nil
		case "false":
			return literal{kind: litBool, b: false}, nil
		}
		return literal{}, fmt.Errorf("unsupported literal %q", name)
	}
}

func (p *parser) parseIndex() (step, error) {
	p.pos++ // consume '['
	start := p.pos
	for !p.eof() && unicode.IsDigit(rune(p.peek())) {
		p.pos++
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return nil, fmt.Errorf("invalid index at %d", start)
	}
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return indexStep{n: n}, nil
}

func (p *parser) parseIdentifier() (string, error) {
	start := p.pos
	for !p.eof() {
		c := rune(p.peek())
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at %d", p.pos)
	}
	return p.input[start:p.pos], nil
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.eof() || p.peek() != c {
		return fmt.Errorf("expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) peekAt(off int) byte {
	if p.pos+off >= len(p.input) {
		return 0
	}
	return p.input[p.pos+off]
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }
