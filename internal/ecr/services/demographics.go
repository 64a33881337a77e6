package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

// EvaluatePatientName renders the patient's names. The banner form picks
// the official name (or the first one) without a use label; the full form
// lists every name, labeled by use when there is more than one.
func (s *Service) EvaluatePatientName(bundle fhir.Bundle, banner bool) string {
	doc := map[string]any(bundle)
	names := fhir.DecodeAll[fhir.HumanName](s.evalAll(doc, "patientNameList"))
	if len(names) == 0 {
		return ""
	}

	if banner {
		for i := range names {
			if names[i].Use == "official" {
				return format.FormatName(&names[i], false)
			}
		}
		return format.FormatName(&names[0], false)
	}

	var lines []string
	for i := range names {
		lines = append(lines, format.FormatName(&names[i], len(names) > 1))
	}
	return joinNonEmpty(lines, "\n")
}

// EvaluatePatientRace renders the OMB race category with the detailed race
// extension on a second line when present.
func (s *Service) EvaluatePatientRace(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	race := s.evalString(doc, "patientRace")
	detailed := s.evalString(doc, "patientRaceDetailed")
	if detailed != "" {
		return race + "\n" + detailed
	}
	return race
}

// EvaluatePatientEthnicity renders the OMB ethnicity with the detailed
// ethnicity extension on a second line when present.
func (s *Service) EvaluatePatientEthnicity(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	ethnicity := s.evalString(doc, "patientEthnicity")
	detailed := s.evalString(doc, "patientEthnicityDetailed")
	if detailed != "" {
		return ethnicity + "\n" + detailed
	}
	return ethnicity
}

// EvaluatePatientAddress renders every patient address, labeled by use when
// there is more than one, separated by blank lines.
func (s *Service) EvaluatePatientAddress(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	addresses := fhir.DecodeAll[fhir.Address](s.evalAll(doc, "patientAddressList"))

	var blocks []string
	for i := range addresses {
		blocks = append(blocks, format.FormatAddress(&addresses[i], format.AddressOptions{
			IncludeUse:    len(addresses) > 1,
			IncludePeriod: true,
		}))
	}
	return joinNonEmpty(blocks, "\n\n")
}

// CalculatePatientAge returns the patient's age in whole years at the given
// reference date, or at now when ref is zero. The second return is false
// when no birth date is recorded.
func (s *Service) CalculatePatientAge(bundle fhir.Bundle, ref time.Time) (int, bool) {
	doc := map[string]any(bundle)
	dobString := s.evalString(doc, "patientDOB")
	if dobString == "" {
		return 0, false
	}
	dob, err := time.ParseInLocation("2006-01-02", dobString, s.loc)
	if err != nil {
		return 0, false
	}
	if ref.IsZero() {
		ref = time.Now().In(s.loc)
	}
	if ref.Before(dob) {
		return 0, false
	}
	return yearsBetween(dob, ref), true
}

// CalculatePatientAgeAtDeath returns the patient's age at their recorded
// date of death, or "" when either date is missing.
func (s *Service) CalculatePatientAgeAtDeath(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	dodString := s.evalString(doc, "patientDOD")
	if dodString == "" {
		return ""
	}
	dod, err := parseFHIRDate(dodString, s.loc)
	if err != nil {
		return ""
	}
	age, ok := s.CalculatePatientAge(bundle, dod)
	if !ok {
		return ""
	}
	return strconv.Itoa(age)
}

// EvaluateDemographicsData assembles the Patient Info section fields.
func (s *Service) EvaluateDemographicsData(bundle fhir.Bundle) []display.Data {
	doc := map[string]any(bundle)

	currentAge := ""
	if s.evalString(doc, "patientDOD") == "" {
		if age, ok := s.CalculatePatientAge(bundle, time.Time{}); ok {
			currentAge = strconv.Itoa(age)
		}
	}

	vitalStatus := "Deceased"
	if deceased, ok := s.evalFirst(doc, "patientVitalStatus").(bool); ok && !deceased {
		vitalStatus = "Alive"
	}

	sex := format.ToTitleCase(s.evalString(doc, "patientGender"))
	if sex != "Male" && sex != "Female" {
		sex = ""
	}

	return []display.Data{
		{Title: "Patient Name", Value: s.EvaluatePatientName(bundle, false)},
		{Title: "DOB", Value: format.FormatDate(s.evalString(doc, "patientDOB"))},
		{Title: "Current Age", Value: currentAge},
		{Title: "Age at Death", Value: s.CalculatePatientAgeAtDeath(bundle)},
		{Title: "Vital Status", Value: vitalStatus},
		{Title: "Date of Death", Value: s.evalString(doc, "patientDOD")},
		{Title: "Sex", Value: sex},
		{Title: "Race", Value: s.EvaluatePatientRace(bundle)},
		{Title: "Ethnicity", Value: s.EvaluatePatientEthnicity(bundle)},
		{Title: "Tribal Affiliation", Value: s.evalValue(doc, "patientTribalAffiliation")},
		{Title: "Preferred Language", Value: s.EvaluatePatientLanguage(bundle)},
		{Title: "Patient Address", Value: s.EvaluatePatientAddress(bundle)},
		{Title: "County", Value: s.evalString(doc, "patientCounty")},
		{Title: "Country", Value: s.evalString(doc, "patientCountry")},
		{Title: "Contact", Value: format.FormatContactPoint(fhir.DecodeAll[fhir.ContactPoint](s.evalAll(doc, "patientTelecom")))},
		{Title: "Emergency Contact", Value: s.EvaluateEmergencyContact(bundle)},
		{
			Title:   "Patient IDs",
			Value:   s.evalValue(doc, "patientIds"),
			ToolTip: "Unique patient identifier(s) from their medical record. For example, a patient's social security number or medical record number.",
		},
	}
}

// EvaluateEmergencyContact renders the patient's contacts: relationship,
// name, address, and phone numbers per contact, blank lines between
// contacts.
func (s *Service) EvaluateEmergencyContact(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	contacts := fhir.DecodeAll[fhir.PatientContact](s.evalAll(doc, "patientEmergencyContact"))

	var blocks []string
	for _, contact := range contacts {
		relationship := ""
		if len(contact.Relationship) > 0 && len(contact.Relationship[0].Coding) > 0 {
			relationship = format.ToSentenceCase(contact.Relationship[0].Coding[0].Display)
		}
		name := format.FormatName(contact.Name, false)
		address := format.FormatAddress(contact.Address, format.AddressOptions{})
		phones := format.FormatContactPoint(contact.Telecom)

		block := joinNonEmpty([]string{relationship, name, address, phones}, "\n")
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return joinNonEmpty(blocks, "\n\n")
}

const proficiencyExtensionURL = "http://hl7.org/fhir/StructureDefinition/patient-proficiency"

// EvaluatePatientLanguage renders the patient's communication languages,
// restricted to preferred ones when any are marked preferred. Each language
// lists its proficiency level and mode when recorded.
func (s *Service) EvaluatePatientLanguage(bundle fhir.Bundle) string {
	doc := map[string]any(bundle)
	communications := s.evalAll(doc, "patientCommunication")

	var preferred []any
	for _, comm := range communications {
		m, ok := comm.(map[string]any)
		if !ok {
			continue
		}
		if p, _ := m["preferred"].(bool); p {
			preferred = append(preferred, comm)
		}
	}
	if len(preferred) > 0 {
		communications = preferred
	}

	var blocks []string
	for _, comm := range communications {
		language := s.EvaluateValue(comm, "language.coding")

		proficiency, err := s.ev.Evaluate(comm, "extension.where(url = '"+proficiencyExtensionURL+"')", nil)
		level, mode := "", ""
		if err == nil && len(proficiency) > 0 {
			level = s.EvaluateValue(proficiency, "extension.where(url = 'level').value")
			mode = s.EvaluateValue(proficiency, "extension.where(url = 'type').value")
		}

		block := joinNonEmpty([]string{language, level, mode}, "\n")
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return joinNonEmpty(blocks, "\n\n")
}

// yearsBetween counts whole years elapsed from start to end.
func yearsBetween(start, end time.Time) int {
	years := end.Year() - start.Year()
	if end.Month() < start.Month() || (end.Month() == start.Month() && end.Day() < start.Day()) {
		years--
	}
	return years
}

// parseFHIRDate accepts date and dateTime inputs.
func parseFHIRDate(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}

func joinNonEmpty(values []string, sep string) string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
