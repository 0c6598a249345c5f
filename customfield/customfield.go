// Package customfield evaluates user defined expressions on report items.
//
// An expression sees one variable, item, holding the fields of the current
// report item. It may use arithmetic, comparisons, boolean logic, string
// literals, the functions len, sum, abs, min and max, and attribute access
// on item. Any other name is rejected before evaluation.
//
//	item.market_value_res / 1000
//	abs(item.pl.total.full.total) > 100 && item.portfolio == "P1"
//	$.item.instrument.user_code
package customfield

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/scanner"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// InvalidExpression is the value recorded when an expression cannot be evaluated.
const InvalidExpression = "Invalid expression"

const (
	// DefaultLimit is the wall time budget of one evaluation.
	DefaultLimit = time.Millisecond
	maxLength    = 1024
	maxDepth     = 32
)

// ErrForbidden is returned for expressions using names outside the whitelist.
var ErrForbidden = errors.New("forbidden expression")

// Field is a user defined field.
type Field struct {
	UserCode   string `json:"user_code"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Value is the result of a field on one item.
type Value struct {
	Field string `json:"custom_field"`
	Value any    `json:"value"`
}

var functions = map[string]bool{"len": true, "sum": true, "abs": true, "min": true, "max": true}

var language = gval.NewLanguage(
	gval.Arithmetic(),
	gval.PropositionalLogic(),
	gval.Text(),
	jsonpath.Language(),
	gval.Function("len", length),
	gval.Function("sum", sum),
	gval.Function("abs", abs),
	gval.Function("min", minimum),
	gval.Function("max", maximum),
)

// Evaluator evaluates a fixed list of fields.
type Evaluator struct {
	fields     []Field
	compiled   []gval.Evaluable
	errs       []error
	attributes map[string]bool
	limit      time.Duration
	marker     string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLimit sets the wall time budget of one evaluation.
func WithLimit(d time.Duration) Option { return func(e *Evaluator) { e.limit = d } }

// WithMarker sets the value recorded for failing expressions, for instance a translation of InvalidExpression.
func WithMarker(m string) Option { return func(e *Evaluator) { e.marker = m } }

// New compiles fields. attributes lists the names allowed after a dot.
//
// New never fails: a field that does not compile yields the marker on every item.
func New(fields []Field, attributes []string, opts ...Option) *Evaluator {
	e := &Evaluator{
		fields:     fields,
		compiled:   make([]gval.Evaluable, len(fields)),
		errs:       make([]error, len(fields)),
		attributes: make(map[string]bool, len(attributes)),
		limit:      DefaultLimit,
		marker:     InvalidExpression,
	}
	for _, a := range attributes {
		e.attributes[a] = true
	}
	for _, o := range opts {
		o(e)
	}
	for i, f := range fields {
		e.compiled[i], e.errs[i] = e.Compile(f.Expression)
	}
	return e
}

// Compile checks expr against the whitelist and compiles it.
func (e *Evaluator) Compile(expr string) (gval.Evaluable, error) {
	if err := check(expr, e.attributes); err != nil {
		return nil, err
	}
	ev, err := language.NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", expr, err)
	}
	return ev, nil
}

// Errors returns the compilation error of every field, nil for valid fields.
func (e *Evaluator) Errors() []error { return e.errs }

// Evaluate returns the value of every field on item.
func (e *Evaluator) Evaluate(ctx context.Context, item map[string]any) []Value {
	if len(e.fields) == 0 {
		return nil
	}
	values := make([]Value, len(e.fields))
	params := map[string]any{"item": item}
	for i, f := range e.fields {
		values[i] = Value{Field: f.UserCode, Value: e.marker}
		if e.errs[i] != nil {
			continue
		}
		v, err := e.run(ctx, e.compiled[i], params)
		if err != nil {
			continue
		}
		values[i].Value = v
	}
	return values
}

// run evaluates ev, failing when it exceeds the time budget.
func (e *Evaluator) run(ctx context.Context, ev gval.Evaluable, params map[string]any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("evaluation panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, e.limit)
	defer cancel()
	start := time.Now()
	v, err = ev(ctx, params)
	if err != nil {
		return nil, err
	}
	if time.Since(start) > e.limit {
		return nil, fmt.Errorf("evaluation exceeded %v", e.limit)
	}
	return v, nil
}

// check rejects expressions using names outside the whitelist, index access,
// or exceeding the size bounds.
func check(expr string, attributes map[string]bool) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: empty expression", ErrForbidden)
	}
	if len(expr) > maxLength {
		return fmt.Errorf("%w: expression longer than %d", ErrForbidden, maxLength)
	}
	var s scanner.Scanner
	s.Init(strings.NewReader(expr))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings
	var scanErr error
	s.Error = func(_ *scanner.Scanner, msg string) { scanErr = fmt.Errorf("%w: %s", ErrForbidden, msg) }

	depth := 0
	prev := rune(0)
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if scanErr != nil {
			return scanErr
		}
		switch tok {
		case scanner.Ident:
			name := s.TokenText()
			switch {
			case prev == '.':
				if !attributes[name] {
					return fmt.Errorf("%w: unknown attribute %q", ErrForbidden, name)
				}
			case name == "item" || name == "true" || name == "false" || functions[name]:
			default:
				return fmt.Errorf("%w: unknown name %q", ErrForbidden, name)
			}
		case '$':
			if s.Peek() != '.' {
				return fmt.Errorf("%w: $ must be followed by .item", ErrForbidden)
			}
		case '.':
			if prev == '$' {
				next := s.Scan()
				if next != scanner.Ident || s.TokenText() != "item" {
					return fmt.Errorf("%w: $ must be followed by .item", ErrForbidden)
				}
				tok = scanner.Ident
			}
		case '[', ']', '@', '?', '#', '{', '}':
			return fmt.Errorf("%w: %q is not allowed", ErrForbidden, s.TokenText())
		case '(':
			depth++
			if depth > maxDepth {
				return fmt.Errorf("%w: nesting deeper than %d", ErrForbidden, maxDepth)
			}
		case ')':
			depth--
		}
		prev = tok
	}
	return scanErr
}
