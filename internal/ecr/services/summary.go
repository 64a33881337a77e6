package services

import (
	"sort"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/fhirpath"
)

const (
	noMatchingClinicalData = "No matching clinical data found in this eCR"
	noMatchingLabResults   = "No matching lab results found in this eCR"
)

// ConditionSummary is one reportable condition's slice of the eCR summary:
// the rules that made it reportable and the clinical data, lab results, and
// immunizations the conversion pipeline stamped with its SNOMED code.
type ConditionSummary struct {
	Title             string         `json:"title"`
	Snomed            string         `json:"snomed"`
	ConditionDetails  []display.Data `json:"conditionDetails"`
	ClinicalDetails   []display.Data `json:"clinicalDetails"`
	LabDetails        []display.Data `json:"labDetails"`
	ImmunizationTable *display.Table `json:"immunizationDetails,omitempty"`
}

// EvaluateEcrSummaryPatientDetails assembles the summary's patient fields.
func (s *Service) EvaluateEcrSummaryPatientDetails(bundle fhir.Bundle) []display.Data {
	doc := map[string]any(bundle)

	sex := format.ToTitleCase(s.evalString(doc, "patientGender"))
	if sex != "Male" && sex != "Female" {
		sex = ""
	}

	return []display.Data{
		{Title: "Patient Name", Value: s.EvaluatePatientName(bundle, false)},
		{Title: "DOB", Value: format.FormatDate(s.evalString(doc, "patientDOB"))},
		{Title: "Sex", Value: sex},
		{Title: "Patient Address", Value: FindCurrentAddress(fhir.DecodeAll[fhir.Address](s.evalAll(doc, "patientAddressList")))},
		{Title: "Patient Contact", Value: format.FormatContactPoint(fhir.DecodeAll[fhir.ContactPoint](s.evalAll(doc, "patientTelecom")))},
	}
}

// FindCurrentAddress picks the patient's most current address: a home
// address with an open period wins, then any address with an open period,
// then any home address, then the first one.
func FindCurrentAddress(addresses []fhir.Address) string {
	pick := func(match func(fhir.Address) bool) *fhir.Address {
		for i := range addresses {
			if match(addresses[i]) {
				return &addresses[i]
			}
		}
		return nil
	}

	open := func(a fhir.Address) bool {
		return a.Period != nil && a.Period.Start != "" && a.Period.End == ""
	}

	address := pick(func(a fhir.Address) bool { return a.Use == "home" && open(a) })
	if address == nil {
		address = pick(open)
	}
	if address == nil {
		address = pick(func(a fhir.Address) bool { return a.Use == "home" })
	}
	if address == nil && len(addresses) > 0 {
		address = &addresses[0]
	}
	return format.FormatAddress(address, format.AddressOptions{})
}

// EvaluateEcrSummaryEncounterDetails assembles the summary's encounter
// fields.
func (s *Service) EvaluateEcrSummaryEncounterDetails(bundle fhir.Bundle) []display.Data {
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
		{Title: "Encounter Diagnosis", Value: s.EvaluateEncounterDiagnosis(bundle)},
		{Title: "Facility Name", Value: s.evalString(doc, "facilityName")},
		{Title: "Facility Contact", Value: format.FormatPhoneNumber(s.evalString(doc, "facilityContact"))},
	}
}

// EvaluateEcrSummaryConditionSummaries builds one summary per reportable
// condition found in the reportability response. The condition matching
// snomedCode sorts to the front so the condition the reader searched for
// opens first.
func (s *Service) EvaluateEcrSummaryConditionSummaries(bundle fhir.Bundle, snomedCode string) []ConditionSummary {
	doc := map[string]any(bundle)

	type conditionInfo struct {
		display       string
		ruleSummaries map[string]struct{}
	}
	conditions := make(map[string]*conditionInfo)
	var order []string

	for _, v := range s.evalAll(doc, "rrDetails") {
		obs, ok := v.(map[string]any)
		if !ok {
			continue
		}
		snomed, displayName := snomedCoding(obs)
		if snomed == "" {
			continue
		}
		info := conditions[snomed]
		if info == nil {
			info = &conditionInfo{display: displayName, ruleSummaries: make(map[string]struct{})}
			conditions[snomed] = info
			order = append(order, snomed)
		}
		for _, rule := range reportabilityTriggers(obs) {
			info.ruleSummaries[rule] = struct{}{}
		}
	}

	summaries := make([]ConditionSummary, 0, len(conditions))
	for _, snomed := range order {
		info := conditions[snomed]

		rules := make([]string, 0, len(info.ruleSummaries))
		for rule := range info.ruleSummaries {
			rules = append(rules, rule)
		}
		sort.Strings(rules)

		summary := ConditionSummary{
			Title:  info.display,
			Snomed: snomed,
			ConditionDetails: []display.Data{
				{
					Title:   "RCKMS Rule Summary",
					Value:   strings.Join(rules, "\n"),
					ToolTip: "Reason(s) that this eCR was sent for this condition. Corresponds to your jurisdiction's rules for routing eCRs in RCKMS (Reportable Condition Knowledge Management System).",
				},
			},
			ClinicalDetails:   s.evaluateRelevantClinicalDetails(bundle, snomed),
			LabDetails:        s.evaluateRelevantLabResults(bundle, snomed),
			ImmunizationTable: s.evaluateRelevantImmunizations(bundle, snomed),
		}

		if snomed == snomedCode {
			summaries = append([]ConditionSummary{summary}, summaries...)
		} else {
			summaries = append(summaries, summary)
		}
	}
	return summaries
}

// snomedCoding returns the SNOMED code and display name from a
// reportability observation's value.
func snomedCoding(obs map[string]any) (code, displayName string) {
	concept, _ := obs["valueCodeableConcept"].(map[string]any)
	codings, _ := concept["coding"].([]any)
	for _, c := range codings {
		coding, _ := c.(map[string]any)
		if system, _ := coding["system"].(string); system != "http://snomed.info/sct" {
			continue
		}
		code, _ = coding["code"].(string)
		if code == "" {
			continue
		}
		displayName, _ = concept["text"].(string)
		if displayName == "" {
			displayName, _ = coding["display"].(string)
		}
		return code, displayName
	}
	return "", ""
}

// evaluateRelevantClinicalDetails renders the problems stamped with the
// condition's SNOMED code, or the no-data sentinel.
func (s *Service) evaluateRelevantClinicalDetails(bundle fhir.Bundle, snomedCode string) []display.Data {
	if snomedCode == "" {
		return []display.Data{{Value: noMatchingClinicalData}}
	}

	doc := map[string]any(bundle)
	stamped := s.evalAllCtx(doc, "stampedConditions", fhirpath.Context{"snomedCode": snomedCode})
	table := s.EvaluateProblemsTable(bundle, stamped)
	if table == nil {
		return []display.Data{{Value: noMatchingClinicalData}}
	}
	return []display.Data{{Title: "Problems List", Table: table}}
}

// evaluateRelevantLabResults renders the lab reports stamped with the
// condition's SNOMED code, or the no-data sentinel.
func (s *Service) evaluateRelevantLabResults(bundle fhir.Bundle, snomedCode string) []display.Data {
	if snomedCode == "" {
		return []display.Data{{Value: noMatchingLabResults}}
	}

	doc := map[string]any(bundle)
	stamped := s.evalAllCtx(doc, "stampedDiagnosticReports", fhirpath.Context{"snomedCode": snomedCode})
	groups := s.EvaluateLabReports(bundle, stamped)
	if len(groups) == 0 {
		return []display.Data{{Value: noMatchingLabResults}}
	}

	var out []display.Data
	for _, group := range groups {
		for _, report := range group.Reports {
			out = append(out, display.Data{Title: report.Title, Table: report.ResultsTable})
		}
	}
	return out
}

// evaluateRelevantImmunizations renders the immunizations stamped with the
// condition's SNOMED code. Returns nil when none match.
func (s *Service) evaluateRelevantImmunizations(bundle fhir.Bundle, snomedCode string) *display.Table {
	if snomedCode == "" {
		return nil
	}
	doc := map[string]any(bundle)
	stamped := s.evalAllCtx(doc, "stampedImmunizations", fhirpath.Context{"snomedCode": snomedCode})
	return s.EvaluateImmunizationsTable(bundle, stamped)
}
