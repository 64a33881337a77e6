package services

import (
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

// EvaluateSocialData assembles the social history fields.
func (s *Service) EvaluateSocialData(bundle fhir.Bundle) []display.Data {
	doc := map[string]any(bundle)

	return []display.Data{
		{Title: "Tobacco Use", Value: s.evalValue(doc, "patientTobaccoUse")},
		{Title: "Travel History", Table: s.EvaluateTravelHistoryTable(bundle)},
		{Title: "Homeless Status", Value: s.evalValue(doc, "patientHomelessStatus")},
		{Title: "Pregnancy Status", Value: s.evalValue(doc, "patientPregnancyStatus")},
		{Title: "Alcohol Use", Value: s.EvaluateAlcoholUse(bundle)},
		{Title: "Sexual Orientation", Value: s.evalValue(doc, "patientSexualOrientation")},
		{Title: "Occupation", Value: s.evalValue(doc, "patientCurrentJobTitle")},
		{Title: "Religious Affiliation", Value: s.evalValue(doc, "patientReligion")},
		{Title: "Marital Status", Value: s.evalValue(doc, "patientMaritalStatus")},
	}
}

// EvaluateAlcoholUse combines the alcohol use observation, weekly intake,
// and clinician comment into one labeled block.
func (s *Service) EvaluateAlcoholUse(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)

	use := s.evalValue(doc, "patientAlcoholUse")
	intake := s.evalValue(doc, "patientAlcoholIntake")
	comment := s.evalValue(doc, "patientAlcoholComment")

	var lines []string
	if use != "" {
		lines = append(lines, "Use: "+use)
	}
	if intake != "" {
		lines = append(lines, "Intake (standard drinks/week): "+intake)
	}
	if comment != "" {
		lines = append(lines, "Comment: "+format.ToSentenceCase(comment))
	}
	return joinNonEmpty(lines, "\n")
}

// EvaluateTravelHistoryTable builds the travel history table from travel
// observations. Rows where every cell is empty are dropped; a table with no
// rows renders as unavailable.
func (s *Service) EvaluateTravelHistoryTable(bundle fhir.Bundle) *display.Table {
	doc := map[string]any(bundle)
	observations := s.evalAll(doc, "patientTravelHistory")

	table := &display.Table{Headers: []string{"Location", "Start Date", "End Date", "Purpose"}}
	for _, obs := range observations {
		location := s.EvaluateValue(obs, s.paths["travelHistoryLocation"])
		start := format.FormatDate(s.EvaluateValue(obs, s.paths["travelHistoryStartDate"]))
		end := format.FormatDate(s.EvaluateValue(obs, s.paths["travelHistoryEndDate"]))
		purpose := s.EvaluateValue(obs, s.paths["travelHistoryPurpose"])

		if location == "" && start == "" && end == "" && purpose == "" {
			continue
		}
		table.Rows = append(table.Rows, display.Row{
			"Location":   display.Cell{Value: location},
			"Start Date": display.Cell{Value: start},
			"End Date":   display.Cell{Value: end},
			"Purpose":    display.Cell{Value: purpose},
		})
	}
	return table
}
