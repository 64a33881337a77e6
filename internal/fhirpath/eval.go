package fhirpath

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Context carries external constants referenced as %name in expressions.
type Context map[string]any

// Evaluate compiles and runs an expression against a decoded JSON tree.
// Missing fields yield an empty collection, not an error.
func Evaluate(doc any, expression string, ctx Context) ([]any, error) {
	expr, err := Parse(expression)
	if err != nil {
		return nil, err
	}
	return expr.Eval(doc, ctx)
}

// Eval runs a compiled expression against a decoded JSON tree.
func (e *Expr) Eval(doc any, ctx Context) ([]any, error) {
	nodes := []any{doc}
	for i, st := range e.steps {
		var err error
		nodes, err = applyStep(nodes, st, ctx, i == 0)
		if err != nil {
			return nil, fmt.Errorf("fhirpath: evaluating %q: %w", e.source, err)
		}
		if len(nodes) == 0 {
			return nil, nil
		}
	}
	return nodes, nil
}

func applyStep(nodes []any, st step, ctx Context, root bool) ([]any, error) {
	switch s := st.(type) {
	case fieldStep:
		var out []any
		for _, n := range nodes {
			// A leading type name selects the node itself when it matches
			// the resource type, per FHIRPath root semantics.
			if root {
				if m, ok := n.(map[string]any); ok {
					if rt, _ := m["resourceType"].(string); rt == s.name {
						out = append(out, n)
						continue
					}
				}
			}
			out = append(out, member(n, s.name)...)
		}
		return out, nil

	case indexStep:
		if s.n >= len(nodes) {
			return nil, nil
		}
		return nodes[s.n : s.n+1], nil

	case firstStep:
		return nodes[:1], nil

	case whereStep:
		var out []any
		for _, n := range nodes {
			ok, err := matches(n, s.cond, ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, n)
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported step %T", st)
	}
}

// member accesses a field on a node, flattening arrays into the result
// collection. Accessing "value" on an element without a literal value field
// resolves FHIR choice types (valueString, valueCodeableConcept, ...).
func member(n any, name string) []any {
	switch v := n.(type) {
	case map[string]any:
		val, ok := v[name]
		if !ok && name == "value" {
			val, ok = choiceValue(v)
		}
		if !ok || val == nil {
			return nil
		}
		if arr, isArr := val.([]any); isArr {
			return arr
		}
		return []any{val}
	case []any:
		var out []any
		for _, item := range v {
			out = append(out, member(item, name)...)
		}
		return out
	default:
		return nil
	}
}

func choiceValue(m map[string]any) (any, bool) {
	var keys []string
	for k := range m {
		if len(k) > len("value") && strings.HasPrefix(k, "value") && k[5] >= 'A' && k[5] <= 'Z' {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return m[keys[0]], true
}

func matches(n any, cond condition, ctx Context) (bool, error) {
	vals := []any{n}
	for _, field := range cond.path {
		var next []any
		for _, v := range vals {
			next = append(next, member(v, field)...)
		}
		vals = next
	}

	rhs, err := resolveLiteral(cond.rhs, ctx)
	if err != nil {
		return false, err
	}

	for _, v := range vals {
		if equal(v, rhs) {
			return cond.op == "=", nil
		}
	}
	return cond.op == "!=", nil
}

func resolveLiteral(l literal, ctx Context) (any, error) {
	switch l.kind {
	case litString:
		return l.str, nil
	case litNumber:
		return l.num, nil
	case litBool:
		return l.b, nil
	case litVar:
		v, ok := ctx[l.str]
		if !ok {
			return nil, fmt.Errorf("undefined external constant %%%s", l.str)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown literal kind")
}

func equal(a, b any) bool {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			return an == bn
		}
	}
	switch av := a.(type) {
	case string:
		bs, ok := b.(string)
		return ok && av == bs
	case bool:
		bb, ok := b.(bool)
		return ok && av == bb
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	case int:
		return float64(n), true
	}
	return 0, false
}
