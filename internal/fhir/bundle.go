package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Bundle is a decoded FHIR Bundle kept as a loosely typed tree. Documents are
// produced by an upstream pipeline and treated as immutable here; field
// extraction runs path queries against the raw structure rather than binding
// the full R4 resource model.
type Bundle map[string]any

// ParseBundle decodes bundle JSON.
func ParseBundle(data []byte) (Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if rt, _ := b["resourceType"].(string); rt != "Bundle" {
		return nil, fmt.Errorf("expected resourceType Bundle, got %q", rt)
	}
	return b, nil
}

// ResourceType returns the bundle's resourceType field.
func (b Bundle) ResourceType() string {
	rt, _ := b["resourceType"].(string)
	return rt
}

// Entries returns the decoded entry list.
func (b Bundle) Entries() []any {
	entries, _ := b["entry"].([]any)
	return entries
}

// FirstEntryFullURL returns entry[0].fullUrl, the bundle's identity marker.
// Bundles produced by the pipeline carry no top-level id.
func (b Bundle) FirstEntryFullURL() string {
	entries := b.Entries()
	if len(entries) == 0 {
		return ""
	}
	entry, _ := entries[0].(map[string]any)
	url, _ := entry["fullUrl"].(string)
	return url
}

// FirstResourceID returns entry[0].resource.id, used as the eCR id on ingest.
func (b Bundle) FirstResourceID() string {
	entries := b.Entries()
	if len(entries) == 0 {
		return ""
	}
	entry, _ := entries[0].(map[string]any)
	resource, _ := entry["resource"].(map[string]any)
	id, _ := resource["id"].(string)
	return id
}

// Decode rebinds a loosely typed subtree onto a typed FHIR struct.
func Decode[T any](v any) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// DecodeAll rebinds a slice of loosely typed subtrees, skipping entries that
// do not fit the target shape.
func DecodeAll[T any](vals []any) []T {
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		item, err := Decode[T](v)
		if err != nil {
			continue
		}
		out = append(out, item)
	}
	return out
}
