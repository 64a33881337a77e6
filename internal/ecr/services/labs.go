package services

import (
	"strconv"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

// LabReport is one diagnostic report rendered for the accordion: its
// observation results table, an antimicrobial susceptibility table when the
// report carries one, and the specimen details.
type LabReport struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Abnormal       bool           `json:"abnormal"`
	ResultsTable   *display.Table `json:"resultsTable,omitempty"`
	OrganismsTable *display.Table `json:"organismsTable,omitempty"`
	Details        []display.Data `json:"details"`
}

// LabOrganization groups the lab reports performed by one organization
// together with the organization's display fields.
type LabOrganization struct {
	OrganizationID string         `json:"organizationId"`
	DisplayData    []display.Data `json:"organizationDisplayData"`
	Reports        []LabReport    `json:"diagnosticReports"`
}

// EvaluateLabInfoData renders every diagnostic report in the bundle,
// grouped by performing organization.
func (s *Service) EvaluateLabInfoData(bundle fhir.Bundle) []LabOrganization {
	doc := map[string]any(bundle)
	return s.EvaluateLabReports(bundle, s.evalAll(doc, "diagnosticReports"))
}

// EvaluateLabReports renders the given diagnostic reports grouped by
// performing organization, preserving report order within each group.
func (s *Service) EvaluateLabReports(bundle fhir.Bundle, reports []any) []LabOrganization {
	doc := map[string]any(bundle)

	grouped := make(map[string][]LabReport)
	var order []string
	for _, r := range reports {
		report, ok := r.(map[string]any)
		if !ok {
			continue
		}
		orgID := reportPerformerID(report)
		if _, seen := grouped[orgID]; !seen {
			order = append(order, orgID)
		}
		grouped[orgID] = append(grouped[orgID], s.evaluateLabReport(doc, report))
	}

	out := make([]LabOrganization, 0, len(order))
	for _, orgID := range order {
		out = append(out, LabOrganization{
			OrganizationID: orgID,
			DisplayData:    s.EvaluateLabOrganizationData(bundle, orgID, len(grouped[orgID])),
			Reports:        grouped[orgID],
		})
	}
	return out
}

func reportPerformerID(report map[string]any) string {
	performers, _ := report["performer"].([]any)
	if len(performers) == 0 {
		return ""
	}
	performer, _ := performers[0].(map[string]any)
	ref, _ := performer["reference"].(string)
	return strings.TrimPrefix(ref, "Organization/")
}

func (s *Service) evaluateLabReport(doc map[string]any, report map[string]any) LabReport {
	id, _ := report["id"].(string)
	title := s.reportTitle(report)
	observations := s.reportObservations(doc, report)

	return LabReport{
		ID:             id,
		Title:          title,
		Abnormal:       strings.Contains(strings.ToLower(title), "abnormal"),
		ResultsTable:   s.evaluateObservationTable(doc, observations),
		OrganismsTable: s.evaluateOrganismsTable(observations),
		Details: []display.Data{
			{Title: "Collection Time", Value: s.observationTimes(observations, "specimenCollectionTime")},
			{Title: "Received Time", Value: s.observationTimes(observations, "specimenReceivedTime")},
			{Title: "Specimen (Source)", Value: s.specimenSources(observations)},
		},
	}
}

// reportTitle returns the first coding display on the report's code.
func (s *Service) reportTitle(report map[string]any) string {
	code, _ := report["code"].(map[string]any)
	codings, _ := code["coding"].([]any)
	for _, c := range codings {
		coding, _ := c.(map[string]any)
		if display, _ := coding["display"].(string); display != "" {
			return display
		}
	}
	return ""
}

// reportObservations resolves the report's result references.
func (s *Service) reportObservations(doc map[string]any, report map[string]any) []map[string]any {
	results, _ := report["result"].([]any)
	var observations []map[string]any
	for _, r := range results {
		ref, _ := r.(map[string]any)
		refString, _ := ref["reference"].(string)
		if obs := s.ResolveReference(doc, refString); obs != nil {
			observations = append(observations, obs)
		}
	}
	return observations
}

// evaluateObservationTable builds the results table from observations that
// carry a direct value. Component-bearing observations render in the
// organisms table instead, and interpretation-only observations are
// skipped.
func (s *Service) evaluateObservationTable(doc map[string]any, observations []map[string]any) *display.Table {
	table := &display.Table{Headers: []string{"Component", "Value", "Ref Range", "Test Method", "Lab Comment"}}
	for _, obs := range observations {
		if _, hasComponent := obs["component"]; hasComponent {
			continue
		}
		name := s.EvaluateValue(obs, s.paths["observationComponent"])
		if name == "Lab Interpretation" {
			continue
		}

		method := ""
		if deviceRef := s.EvaluateValue(obs, s.paths["observationDeviceReference"]); deviceRef != "" {
			method = s.deviceName(doc, deviceRef)
		}

		table.Rows = append(table.Rows, display.Row{
			"Component":   display.Cell{Value: name},
			"Value":       display.Cell{Value: s.EvaluateValue(obs, s.paths["observationValue"])},
			"Ref Range":   display.Cell{Value: s.EvaluateValue(obs, s.paths["observationReferenceRange"])},
			"Test Method": display.Cell{Value: method},
			"Lab Comment": display.Cell{Value: s.EvaluateValue(obs, s.paths["observationNote"])},
		})
	}
	if len(table.Rows) == 0 {
		return nil
	}
	return table
}

func (s *Service) deviceName(doc map[string]any, ref string) string {
	device := s.ResolveReference(doc, ref)
	if device == nil {
		return ""
	}
	return s.EvaluateValue(device, "deviceName.first().name")
}

// evaluateOrganismsTable renders the antimicrobial susceptibility table
// from the first component-bearing observation, one row per antibiotic
// component. Returns nil when the report has no such observation.
func (s *Service) evaluateOrganismsTable(observations []map[string]any) *display.Table {
	var organismObs map[string]any
	for _, obs := range observations {
		if _, ok := obs["component"]; ok {
			organismObs = obs
			break
		}
	}
	if organismObs == nil {
		return nil
	}

	organism := s.EvaluateValue(organismObs, s.paths["observationOrganism"])
	components, _ := organismObs["component"].([]any)

	table := &display.Table{Headers: []string{"Organism", "Antibiotic", "Method", "Susceptibility"}}
	for _, c := range components {
		table.Rows = append(table.Rows, display.Row{
			"Organism":       display.Cell{Value: organism},
			"Antibiotic":     display.Cell{Value: s.EvaluateValue(c, s.paths["observationAntibiotic"])},
			"Method":         display.Cell{Value: s.EvaluateValue(c, s.paths["observationOrganismMethod"])},
			"Susceptibility": display.Cell{Value: s.EvaluateValue(c, s.paths["observationSusceptibility"])},
		})
	}
	if len(table.Rows) == 0 {
		return nil
	}
	return table
}

// observationTimes collects a time field across the report's observations,
// deduplicated and formatted.
func (s *Service) observationTimes(observations []map[string]any, pathName string) string {
	var times []string
	for _, obs := range observations {
		if raw := s.EvaluateValue(obs, s.paths[pathName]); raw != "" {
			times = append(times, format.FormatDateTime(raw, s.loc))
		}
	}
	return uniqueJoin(times, ", ")
}

func (s *Service) specimenSources(observations []map[string]any) string {
	var sources []string
	for _, obs := range observations {
		if source := s.EvaluateValue(obs, s.paths["specimenSource"]); source != "" {
			sources = append(sources, source)
		}
	}
	return uniqueJoin(sources, ", ")
}

// EvaluateLabOrganizationData renders the performing organization's
// display fields. Organizations sometimes appear twice in a bundle, once
// with an address and once with contact details; a second organization at
// the identical address contributes its telecom to the match.
func (s *Service) EvaluateLabOrganizationData(bundle fhir.Bundle, orgID string, reportCount int) []display.Data {
	doc := map[string]any(bundle)
	organizations := fhir.DecodeAll[organizationResource](s.evalAll(doc, "organizations"))

	var matched *organizationResource
	for i := range organizations {
		if organizations[i].ID == orgID {
			matched = &organizations[i]
			break
		}
	}

	var name, address, contact string
	if matched != nil {
		mergeIdenticalOrgTelecom(organizations, matched)
		name = matched.Name
		if len(matched.Address) > 0 {
			address = format.FormatAddress(&matched.Address[0], format.AddressOptions{})
		}
		if len(matched.Telecom) > 0 {
			contact = format.FormatPhoneNumber(matched.Telecom[0].Value)
		}
	}

	return []display.Data{
		{Title: "Lab Performing Name", Value: name},
		{Title: "Lab Address", Value: address},
		{Title: "Lab Contact", Value: contact},
		{Title: "Number of Results", Value: strconv.Itoa(reportCount)},
	}
}

// mergeIdenticalOrgTelecom copies telecom onto the matched organization
// from any other organization registered at the same address.
func mergeIdenticalOrgTelecom(organizations []organizationResource, matched *organizationResource) {
	for i := range organizations {
		org := &organizations[i]
		if org.ID == matched.ID {
			continue
		}
		if sameAddress(org.Address, matched.Address) {
			matched.Telecom = org.Telecom
		}
	}
}

func sameAddress(a, b []fhir.Address) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return addressLine(a[0], 0) == addressLine(b[0], 0) &&
		addressLine(a[0], 1) == addressLine(b[0], 1) &&
		a[0].City == b[0].City &&
		a[0].State == b[0].State &&
		a[0].PostalCode == b[0].PostalCode
}

func addressLine(a fhir.Address, i int) string {
	if i >= len(a.Line) {
		return ""
	}
	return a.Line[i]
}
