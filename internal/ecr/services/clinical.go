package services

import (
	"sort"
	"strconv"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

// ClinicalData carries the clinical info section groups.
type ClinicalData struct {
	ReasonForVisit []display.Data `json:"reasonForVisitDetails"`
	ActiveProblems []display.Data `json:"activeProblemsDetails"`
	Treatment      []display.Data `json:"treatmentData"`
	Vitals         []display.Data `json:"vitalData"`
	Immunizations  []display.Data `json:"immunizationsDetails"`
}

// EvaluateClinicalData assembles the clinical info section: reason for
// visit, problems list, administered medications, vital signs, and
// immunization history.
func (s *Service) EvaluateClinicalData(bundle fhir.Bundle) ClinicalData {
	doc := map[string]any(bundle)

	return ClinicalData{
		ReasonForVisit: []display.Data{
			{Title: "Reason for Visit", Value: s.evalString(doc, "clinicalReasonForVisit")},
		},
		ActiveProblems: []display.Data{
			{Title: "Problems List", Table: s.EvaluateProblemsTable(bundle, s.evalAll(doc, "activeProblems"))},
		},
		Treatment: []display.Data{
			{Title: "Administered Medications", Table: s.EvaluateAdministeredMedicationsTable(bundle)},
		},
		Vitals: []display.Data{
			{Title: "Vital Signs", Value: s.EvaluateVitals(bundle)},
		},
		Immunizations: []display.Data{
			{Title: "Immunization History", Table: s.EvaluateImmunizationsTable(bundle, s.evalAll(doc, "immunizations"))},
		},
	}
}

// EvaluateProblemsTable builds the problems list from condition resources,
// newest onset first. Conditions without a coded display are dropped;
// returns nil when nothing remains.
func (s *Service) EvaluateProblemsTable(bundle fhir.Bundle, conditions []any) *display.Table {
	type problem struct {
		display  string
		onset    string
		onsetAge string
		comment  string
	}

	var problems []problem
	for _, c := range conditions {
		name := s.EvaluateValue(c, s.paths["activeProblemsDisplay"])
		if name == "" {
			continue
		}
		onset := s.EvaluateValue(c, s.paths["activeProblemsOnsetDate"])

		onsetAge := s.EvaluateValue(c, s.paths["activeProblemsOnsetAge"])
		if onsetAge == "" && onset != "" {
			if t, err := parseFHIRDate(onset, s.loc); err == nil {
				if age, ok := s.CalculatePatientAge(bundle, t); ok {
					onsetAge = strconv.Itoa(age)
				}
			}
		}

		problems = append(problems, problem{
			display:  name,
			onset:    onset,
			onsetAge: onsetAge,
			comment:  s.EvaluateValue(c, s.paths["activeProblemsComments"]),
		})
	}
	if len(problems) == 0 {
		return nil
	}

	sort.SliceStable(problems, func(i, j int) bool {
		return problems[i].onset > problems[j].onset
	})

	table := &display.Table{Headers: []string{"Active Problem", "Onset Date/Time", "Onset Age", "Comments"}}
	for _, p := range problems {
		table.Rows = append(table.Rows, display.Row{
			"Active Problem":  display.Cell{Value: p.display},
			"Onset Date/Time": display.Cell{Value: format.FormatDateTime(p.onset, s.loc)},
			"Onset Age":       display.Cell{Value: p.onsetAge},
			"Comments":        display.Cell{Value: p.comment},
		})
	}
	return table
}

// EvaluateAdministeredMedicationsTable lists administered medications with
// their start times. Medications whose referenced resource carries no coded
// name get a synthesized name from the first coding so the reader still has
// something to look up.
func (s *Service) EvaluateAdministeredMedicationsTable(bundle fhir.Bundle) *display.Table {
	doc := map[string]any(bundle)
	administrations := s.evalAll(doc, "adminMedicationsRefs")
	if len(administrations) == 0 {
		return nil
	}

	table := &display.Table{Headers: []string{"Medication Name", "Medication Start Date/Time"}}
	for _, a := range administrations {
		admin, ok := a.(map[string]any)
		if !ok {
			continue
		}

		date, _ := admin["effectiveDateTime"].(string)
		if date == "" {
			if period, ok := admin["effectivePeriod"].(map[string]any); ok {
				date, _ = period["start"].(string)
			}
		}

		name := ""
		if medRef, ok := admin["medicationReference"].(map[string]any); ok {
			ref, _ := medRef["reference"].(string)
			if medication := s.ResolveReference(doc, ref); medication != nil {
				code, _ := medication["code"].(map[string]any)
				name = medicationDisplayName(code)
			}
		}

		table.Rows = append(table.Rows, display.Row{
			"Medication Name":            display.Cell{Value: name},
			"Medication Start Date/Time": display.Cell{Value: format.FormatDateTime(date, s.loc)},
		})
	}
	if len(table.Rows) == 0 {
		return nil
	}
	return table
}

// medicationDisplayName picks the first coding display, falling back to a
// synthesized name from the first code when no display exists.
func medicationDisplayName(code map[string]any) string {
	codings, _ := code["coding"].([]any)
	for _, c := range codings {
		coding, _ := c.(map[string]any)
		if display, _ := coding["display"].(string); display != "" {
			return display
		}
	}
	if len(codings) > 0 {
		coding, _ := codings[0].(map[string]any)
		system, _ := coding["system"].(string)
		value, _ := coding["code"].(string)
		return "Unknown medication name - " + system + " code " + value
	}
	return ""
}

// EvaluateImmunizationsTable lists immunizations sorted by administration
// date, newest first. Returns nil when the bundle has none.
func (s *Service) EvaluateImmunizationsTable(bundle fhir.Bundle, immunizations []any) *display.Table {
	type shot struct {
		name, date, dose, lot string
	}

	var shots []shot
	for _, imm := range immunizations {
		shots = append(shots, shot{
			name: s.EvaluateValue(imm, s.paths["immunizationsName"]),
			date: s.EvaluateValue(imm, s.paths["immunizationsAdminDate"]),
			dose: s.EvaluateValue(imm, s.paths["immunizationsDoseNumber"]),
			lot:  s.EvaluateValue(imm, s.paths["immunizationsLotNumber"]),
		})
	}
	if len(shots) == 0 {
		return nil
	}

	sort.SliceStable(shots, func(i, j int) bool {
		return shots[i].date > shots[j].date
	})

	table := &display.Table{Headers: []string{"Name", "Administration Dates", "Dose Number", "Lot Number"}}
	for _, sh := range shots {
		table.Rows = append(table.Rows, display.Row{
			"Name":                 display.Cell{Value: sh.name},
			"Administration Dates": display.Cell{Value: format.FormatDate(sh.date)},
			"Dose Number":          display.Cell{Value: sh.dose},
			"Lot Number":           display.Cell{Value: sh.lot},
		})
	}
	return table
}

// EvaluateVitals renders the most recent height, weight, and BMI readings.
func (s *Service) EvaluateVitals(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)

	vitals := format.FormatVitals(
		s.evalString(doc, "patientHeight"),
		s.evalString(doc, "patientHeightMeasurement"),
		s.evalString(doc, "patientWeight"),
		s.evalString(doc, "patientWeightMeasurement"),
		s.evalString(doc, "patientBmi"),
		s.evalString(doc, "patientBmiMeasurement"),
	)

	var lines []string
	if vitals.Height != "" {
		lines = append(lines, "Height: "+vitals.Height)
	}
	if vitals.Weight != "" {
		lines = append(lines, "Weight: "+vitals.Weight)
	}
	if vitals.BMI != "" {
		lines = append(lines, "Body Mass Index (BMI): "+vitals.BMI)
	}
	return joinNonEmpty(lines, "\n")
}
