// Package evaluate memoizes path-expression lookups against a single
// document. An Evaluator is created per render pass, so the cache lives
// exactly as long as the request that built it.
package evaluate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/fhirpath"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
)

// Engine evaluates one expression against a document.
type Engine func(doc any, expression string, ctx fhirpath.Context) ([]any, error)

// Evaluator caches evaluation results keyed by document identity,
// expression text, and serialized context. Identical triples hit the
// underlying engine exactly once per cache epoch.
type Evaluator struct {
	engine Engine
	cache  map[string][]any
}

// New returns an Evaluator backed by the given engine. A nil engine uses
// the fhirpath package directly.
func New(engine Engine) *Evaluator {
	if engine == nil {
		engine = fhirpath.Evaluate
	}
	return &Evaluator{
		engine: engine,
		cache:  make(map[string][]any),
	}
}

// Evaluate runs an expression against a document, serving repeated lookups
// from the cache.
func (e *Evaluator) Evaluate(doc any, expression string, ctx fhirpath.Context) ([]any, error) {
	key := cacheKey(doc, expression, ctx)
	if result, ok := e.cache[key]; ok {
		metrics.RecordEvaluation("hit")
		return result, nil
	}

	result, err := e.engine(doc, expression, ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordEvaluation("miss")
	e.cache[key] = result
	return result, nil
}

// EvaluateOne returns the first result of an expression, or nil when the
// expression selects nothing.
func (e *Evaluator) EvaluateOne(doc any, expression string, ctx fhirpath.Context) (any, error) {
	result, err := e.Evaluate(doc, expression, ctx)
	if err != nil || len(result) == 0 {
		return nil, err
	}
	return result[0], nil
}

// EvaluateString returns the first result rendered as a string, or "" when
// the expression selects nothing.
func (e *Evaluator) EvaluateString(doc any, expression string, ctx fhirpath.Context) (string, error) {
	v, err := e.EvaluateOne(doc, expression, ctx)
	if err != nil || v == nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		if s {
			return "true", nil
		}
		return "false", nil
	default:
		return fmt.Sprintf("%v", s), nil
	}
}

// Clear drops every cached result, starting a new cache epoch.
func (e *Evaluator) Clear() {
	e.cache = make(map[string][]any)
}

// cacheKey fingerprints the document and appends expression and context.
// Bundles are identified by their first entry's fullUrl, standalone
// resources by their id. A document with neither falls back to its JSON
// serialization, which makes the lookup effectively uncached but never
// wrong. Distinct documents sharing an identity value will collide; the
// per-request cache lifetime keeps that window to a single render.
func cacheKey(doc any, expression string, ctx fhirpath.Context) string {
	var b strings.Builder
	b.WriteString(fingerprint(doc))
	b.WriteByte('|')
	b.WriteString(expression)
	b.WriteByte('|')
	b.WriteString(serializeContext(ctx))
	return b.String()
}

func fingerprint(doc any) string {
	m, ok := doc.(map[string]any)
	if !ok {
		return serialize(doc)
	}

	if rt, _ := m["resourceType"].(string); rt == "Bundle" {
		if entries, ok := m["entry"].([]any); ok && len(entries) > 0 {
			if entry, ok := entries[0].(map[string]any); ok {
				if url, _ := entry["fullUrl"].(string); url != "" {
					return url
				}
			}
		}
	}

	if id, _ := m["id"].(string); id != "" {
		return id
	}
	return serialize(doc)
}

func serializeContext(ctx fhirpath.Context) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(serialize(ctx[k]))
		b.WriteByte(';')
	}
	return b.String()
}

func serialize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
