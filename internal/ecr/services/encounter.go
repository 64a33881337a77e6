package services

import (
	"regexp"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

var numericID = regexp.MustCompile(`^\d+$`)

// EvaluateEncounterData assembles the encounter details fields, including
// the care team table.
func (s *Service) EvaluateEncounterData(bundle fhir.Bundle) []display.Data {
	doc := map[string]any(bundle)

	return []display.Data{
		{
			Title: "Encounter Date/Time",
			Value: format.FormatStartEndDateTime(
				s.evalString(doc, "encounterStartDate"),
				s.evalString(doc, "encounterEndDate"),
				s.loc,
			),
		},
		{Title: "Encounter Type", Value: s.evalString(doc, "encounterType")},
		{Title: "Encounter ID", Value: s.EvaluateEncounterID(bundle)},
		{Title: "Encounter Diagnosis", Value: s.EvaluateEncounterDiagnosis(bundle)},
		{Title: "Encounter Care Team", Table: s.EvaluateEncounterCareTeamTable(bundle)},
	}
}

// EvaluateEncounterID returns the first all-numeric encounter identifier.
// Identifiers carrying OID or URN values are skipped.
func (s *Service) EvaluateEncounterID(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	for _, v := range s.evalAll(doc, "encounterID") {
		id, _ := v.(string)
		if numericID.MatchString(id) {
			return id
		}
	}
	return ""
}

// EvaluateEncounterDiagnosis resolves the encounter's diagnosis references
// and joins their primary display names.
func (s *Service) EvaluateEncounterDiagnosis(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)

	var names []string
	for _, diag := range s.evalAll(doc, "encounterDiagnosis") {
		m, ok := diag.(map[string]any)
		if !ok {
			continue
		}
		ref, _ := m["condition"].(map[string]any)
		refString, _ := ref["reference"].(string)
		condition := s.ResolveReference(doc, refString)
		if condition == nil {
			continue
		}
		if name := s.EvaluateValue(condition, "code.coding.first().display"); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// EvaluateEncounterCareTeamTable builds the care team table from the
// composition's encounter participants: one row per participant with name,
// role, and participation dates. Returns nil when the encounter has no
// participants.
func (s *Service) EvaluateEncounterCareTeamTable(bundle fhir.Bundle) *display.Table {
	doc := map[string]any(bundle)

	encounterRef := s.evalString(doc, "compositionEncounterRef")
	encounter := s.ResolveReference(doc, encounterRef)
	if encounter == nil {
		return nil
	}

	participants, err := s.ev.Evaluate(encounter, s.paths["encounterParticipants"], nil)
	if err != nil || len(participants) == 0 {
		return nil
	}

	table := &display.Table{Headers: []string{"Name", "Role", "Dates"}}
	for _, p := range participants {
		participant, ok := p.(map[string]any)
		if !ok {
			continue
		}

		role := s.EvaluateValue(participant, "type")

		start, end := "", ""
		if period, ok := participant["period"].(map[string]any); ok {
			start, _ = period["start"].(string)
			end, _ = period["end"].(string)
		}

		name := ""
		if individual, ok := participant["individual"].(map[string]any); ok {
			ref, _ := individual["reference"].(string)
			if practitioner, _ := s.resolvePractitionerRole(doc, ref); practitioner != nil && len(practitioner.Name) > 0 {
				name = format.FormatName(&practitioner.Name[0], false)
			}
		}

		table.Rows = append(table.Rows, display.Row{
			"Name":  display.Cell{Value: name},
			"Role":  display.Cell{Value: role},
			"Dates": display.Cell{Value: format.FormatStartEndDate(start, end)},
		})
	}
	return table
}

// EvaluateFacilityData assembles the facility details fields.
func (s *Service) EvaluateFacilityData(bundle fhir.Bundle) []display.Data {
	doc := map[string]any(bundle)

	contactAddress := ""
	if providerRef := s.evalString(doc, "facilityContactAddress"); providerRef != "" {
		if org, ok := resolveAs[organizationResource](s, doc, providerRef); ok && len(org.Address) > 0 {
			contactAddress = format.FormatAddress(&org.Address[0], format.AddressOptions{})
		}
	}

	facilityAddress := ""
	if addr, ok := s.evalFirst(doc, "facilityAddress").(map[string]any); ok {
		if decoded, err := fhir.Decode[fhir.Address](addr); err == nil {
			facilityAddress = format.FormatAddress(&decoded, format.AddressOptions{})
		}
	}

	return []display.Data{
		{Title: "Facility Name", Value: s.evalString(doc, "facilityName")},
		{Title: "Facility Address", Value: facilityAddress},
		{Title: "Facility Contact Address", Value: contactAddress},
		{Title: "Facility Contact", Value: format.FormatPhoneNumber(s.evalString(doc, "facilityContact"))},
		{Title: "Facility Type", Value: s.evalValue(doc, "facilityType")},
		{Title: "Facility ID", Value: s.EvaluateFacilityID(bundle)},
	}
}

// EvaluateFacilityID resolves the encounter's location reference and
// returns its first identifier value.
func (s *Service) EvaluateFacilityID(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	locationRef := s.evalString(doc, "facilityLocation")
	location, ok := resolveAs[locationResource](s, doc, locationRef)
	if !ok || len(location.Identifier) == 0 {
		return ""
	}
	return location.Identifier[0].Value
}

// EvaluateProviderData assembles the provider fields from the encounter's
// attending participant.
func (s *Service) EvaluateProviderData(bundle fhir.Bundle) []display.Data {
	doc := map[string]any(bundle)

	encounterRef := s.evalString(doc, "compositionEncounterRef")
	encounter := s.ResolveReference(doc, encounterRef)

	individualRef := ""
	if encounter != nil {
		if v, err := s.ev.EvaluateString(encounter, s.paths["encounterIndividualRef"], nil); err == nil {
			individualRef = v
		}
	}
	practitioner, organization := s.resolvePractitionerRole(doc, individualRef)

	var name, addresses, contact, ids string
	if practitioner != nil {
		if len(practitioner.Name) > 0 {
			name = format.FormatName(&practitioner.Name[0], false)
		}
		addresses = formatAddressList(practitioner.Address)
		contact = format.FormatContactPoint(practitioner.Telecom)
		var values []string
		for _, id := range practitioner.Identifier {
			values = append(values, id.Value)
		}
		ids = joinNonEmpty(values, "\n")
	}

	var orgName, orgAddresses string
	if organization != nil {
		orgName = organization.Name
		orgAddresses = formatAddressList(organization.Address)
	}

	return []display.Data{
		{Title: "Provider Name", Value: name},
		{Title: "Provider Address", Value: addresses},
		{Title: "Provider Contact", Value: contact},
		{Title: "Provider Facility Name", Value: orgName},
		{Title: "Provider Facility Address", Value: orgAddresses},
		{Title: "Provider ID", Value: ids},
	}
}

// resolvePractitionerRole resolves a PractitionerRole reference along with
// the practitioner and organization it points at. Either result may be nil.
func (s *Service) resolvePractitionerRole(doc map[string]any, roleRef string) (*practitionerResource, *organizationResource) {
	role, ok := resolveAs[practitionerRoleResource](s, doc, roleRef)
	if !ok {
		return nil, nil
	}

	var practitioner *practitionerResource
	if role.Practitioner != nil {
		if p, ok := resolveAs[practitionerResource](s, doc, role.Practitioner.Reference); ok {
			practitioner = &p
		}
	}
	var organization *organizationResource
	if role.Organization != nil {
		if o, ok := resolveAs[organizationResource](s, doc, role.Organization.Reference); ok {
			organization = &o
		}
	}
	return practitioner, organization
}

func formatAddressList(addresses []fhir.Address) string {
	var blocks []string
	for i := range addresses {
		blocks = append(blocks, format.FormatAddress(&addresses[i], format.AddressOptions{}))
	}
	return joinNonEmpty(blocks, "\n\n")
}
