package mappings

import (
	"testing"

	"github.com/dibbs-platform/ecr-viewer/internal/fhirpath"
)

// TestLoadParses tests that every mapped expression parses.
func TestLoadParses(t *testing.T) {
	m := Load()
	if len(m) == 0 {
		t.Fatal("Expected a non-empty mapping table")
	}

	for name, expr := range m {
		if _, err := fhirpath.Parse(expr); err != nil {
			t.Errorf("Expected %q to parse, got %v", name, err)
		}
	}
}

// TestLoadCoreKeys tests that the fields the extraction services depend on
// are present.
func TestLoadCoreKeys(t *testing.T) {
	m := Load()
	for _, key := range []string{
		"resolve",
		"patientNameList",
		"patientDOB",
		"encounterStartDate",
		"compositionEncounterRef",
		"rrDetails",
		"diagnosticReports",
		"stampedImmunizations",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("Expected mapping for %q", key)
		}
	}
}
