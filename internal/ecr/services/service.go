// Package services extracts display-ready fields from eCR bundles. Each
// evaluator walks the loosely typed bundle through the shared path table
// and renders the results with the format package.
package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/evaluate"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/mappings"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/fhirpath"
)

// Service runs field extraction for one render pass. The evaluator's cache
// is request-scoped, so a Service should live no longer than the request
// that created it.
type Service struct {
	ev    *evaluate.Evaluator
	paths mappings.PathMappings
	loc   *time.Location
}

// New builds a Service around a memoizing evaluator. A nil location renders
// times in the process-local zone.
func New(ev *evaluate.Evaluator, paths mappings.PathMappings, loc *time.Location) *Service {
	if ev == nil {
		ev = evaluate.New(nil)
	}
	if paths == nil {
		paths = mappings.Load()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{ev: ev, paths: paths, loc: loc}
}

// evalAll evaluates a named path against a document.
func (s *Service) evalAll(doc any, name string) []any {
	return s.evalAllCtx(doc, name, nil)
}

func (s *Service) evalAllCtx(doc any, name string, ctx fhirpath.Context) []any {
	expr, ok := s.paths[name]
	if !ok {
		return nil
	}
	result, err := s.ev.Evaluate(doc, expr, ctx)
	if err != nil {
		return nil
	}
	return result
}

// evalFirst returns the first result of a named path, or nil.
func (s *Service) evalFirst(doc any, name string) any {
	result := s.evalAll(doc, name)
	if len(result) == 0 {
		return nil
	}
	return result[0]
}

// evalString returns the first result of a named path rendered as a plain
// string.
func (s *Service) evalString(doc any, name string) string {
	expr, ok := s.paths[name]
	if !ok {
		return ""
	}
	v, err := s.ev.EvaluateString(doc, expr, nil)
	if err != nil {
		return ""
	}
	return v
}

// evalValue returns the first result of a named path rendered through the
// FHIR shape rules (Quantity, CodeableConcept, Coding).
func (s *Service) evalValue(doc any, name string) string {
	expr, ok := s.paths[name]
	if !ok {
		return ""
	}
	return s.EvaluateValue(doc, expr)
}

// EvaluateValue evaluates a raw path expression and renders the first
// result as a display string. Scalars render directly; Quantity renders as
// value plus unit, CodeableConcept as its first display, text, or code, and
// Coding as display or code.
func (s *Service) EvaluateValue(doc any, expr string) string {
	result, err := s.ev.Evaluate(doc, expr, nil)
	if err != nil || len(result) == 0 {
		return ""
	}
	return valueToString(result[0])
}

func valueToString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any:
		return compositeToString(t)
	}
	return ""
}

func compositeToString(m map[string]any) string {
	if codings, ok := m["coding"].([]any); ok && len(codings) > 0 {
		first, _ := codings[0].(map[string]any)
		if display, _ := first["display"].(string); display != "" {
			return strings.TrimSpace(display)
		}
		if text, _ := m["text"].(string); text != "" {
			return strings.TrimSpace(text)
		}
		code, _ := first["code"].(string)
		return strings.TrimSpace(code)
	}
	if text, _ := m["text"].(string); text != "" {
		return strings.TrimSpace(text)
	}

	if value, ok := m["value"]; ok {
		amount := valueToString(value)
		unit, _ := m["unit"].(string)
		if unit != "" && isLetter(rune(unit[0])) {
			unit = " " + unit
		}
		return strings.TrimSpace(amount + unit)
	}

	if display, _ := m["display"].(string); display != "" {
		return strings.TrimSpace(display)
	}
	if code, _ := m["code"].(string); code != "" {
		return strings.TrimSpace(code)
	}
	return ""
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// ResolveReference looks up a relative reference such as "Patient/abc"
// inside the bundle. Unknown or malformed references yield nil.
func (s *Service) ResolveReference(doc map[string]any, ref string) map[string]any {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	result, err := s.ev.Evaluate(doc, s.paths["resolve"], fhirpath.Context{
		"resourceType": parts[0],
		"id":           parts[1],
	})
	if err != nil || len(result) == 0 {
		return nil
	}
	resource, _ := result[0].(map[string]any)
	return resource
}

// resolveAs resolves a reference and rebinds it onto a typed struct.
func resolveAs[T any](s *Service, doc map[string]any, ref string) (T, bool) {
	var zero T
	resource := s.ResolveReference(doc, ref)
	if resource == nil {
		return zero, false
	}
	out, err := fhir.Decode[T](resource)
	if err != nil {
		return zero, false
	}
	return out, true
}

// uniqueJoin deduplicates values preserving order and joins them.
func uniqueJoin(values []string, sep string) string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return strings.Join(out, sep)
}
