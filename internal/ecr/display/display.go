// Package display defines the presentation-ready records produced by the
// field-extraction services and the availability rules deciding which
// section of the accordion a field renders in.
package display

import (
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
)

// Data is one extracted field ready for rendering.
type Data struct {
	Title   string `json:"title"`
	Value   string `json:"value,omitempty"`
	Table   *Table `json:"table,omitempty"`
	ToolTip string `json:"toolTip,omitempty"`
}

// Metadata carries per-cell attributes such as abnormal-result styling
// hints from the source document.
type Metadata map[string]string

// Cell is one table cell value plus its metadata.
type Cell struct {
	Value    string   `json:"value"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Row maps column headers to cells.
type Row map[string]Cell

// Table is a rendered table with its column order preserved.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// unavailableTerms are sentinel phrases meaning a field was checked but has
// no clinical value.
var unavailableTerms = []string{
	"Not on file",
	"Not on file documented in this encounter",
	"Unknown",
	"Unknown if ever smoked",
	"Tobacco smoking consumption unknown",
	"Do not know",
	"No history of present illness information available",
}

// IsAvailable reports whether a record holds real clinical data: a
// non-blank value that is not an unavailable sentinel, or a table with at
// least one row.
func IsAvailable(d Data) bool {
	if d.Table != nil {
		return len(d.Table.Rows) > 0
	}

	value := strings.TrimSpace(d.Value)
	if value == "" {
		return false
	}
	for _, term := range unavailableTerms {
		if value == term {
			return false
		}
	}
	return true
}

// Split partitions records into available and unavailable groups, keeping
// order within each.
func Split(items []Data) (available, unavailable []Data) {
	for _, item := range items {
		if IsAvailable(item) {
			available = append(available, item)
		} else {
			unavailable = append(unavailable, item)
		}
	}
	return available, unavailable
}

// Section is one accordion section of the rendered view.
type Section struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Available   []Data `json:"availableData"`
	Unavailable []Data `json:"unavailableData"`
}

// NewSection builds a section from extracted records, deriving its anchor
// id from the title.
func NewSection(title string, items []Data) Section {
	available, unavailable := Split(items)
	return Section{
		ID:          format.ToKebabCase(title),
		Title:       title,
		Available:   available,
		Unavailable: unavailable,
	}
}
