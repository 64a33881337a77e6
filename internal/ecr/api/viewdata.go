package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/services"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
)

// EcrSummary is the at-a-glance block above the accordion.
type EcrSummary struct {
	PatientDetails     []display.Data              `json:"patientDetails"`
	EncounterDetails   []display.Data              `json:"encounterDetails"`
	ConditionSummaries []services.ConditionSummary `json:"conditionSummaries"`
}

// ViewData is the fully rendered document view: the patient banner, the
// summary block, and the accordion sections.
type ViewData struct {
	PatientName string            `json:"patientName"`
	EcrSummary  EcrSummary        `json:"ecrSummary"`
	Sections    []display.Section `json:"sections"`
}

// GetViewData renders a stored bundle into display-ready sections. The
// optional snomed-code parameter moves that condition's summary to the
// front.
func (h *Handler) GetViewData(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.BadRequest("eCR ID is required"), "")
		return
	}

	bundle, err := h.findBundle(r, id)
	if err != nil {
		h.writeBundleError(w, err)
		return
	}

	metrics.RecordEcrViewed()
	writeJSON(w, http.StatusOK, h.renderViewData(bundle, r.URL.Query().Get("snomed-code")))
}

// renderViewData builds the full view from a bundle. The field-extraction
// service is created per render because its evaluation cache is
// request-scoped.
func (h *Handler) renderViewData(bundle fhir.Bundle, snomedCode string) ViewData {
	svc := services.New(nil, h.paths, h.loc)

	summary := EcrSummary{
		PatientDetails:     available(svc.EvaluateEcrSummaryPatientDetails(bundle)),
		EncounterDetails:   available(svc.EvaluateEcrSummaryEncounterDetails(bundle)),
		ConditionSummaries: svc.EvaluateEcrSummaryConditionSummaries(bundle, snomedCode),
	}

	sections := []display.Section{
		display.NewSection("Patient Info", concat(
			svc.EvaluateDemographicsData(bundle),
			svc.EvaluateSocialData(bundle),
		)),
		display.NewSection("Encounter Info", concat(
			svc.EvaluateEncounterData(bundle),
			svc.EvaluateFacilityData(bundle),
			svc.EvaluateProviderData(bundle),
		)),
		display.NewSection("Clinical Info", clinicalItems(svc.EvaluateClinicalData(bundle))),
		display.NewSection("Lab Info", labItems(svc.EvaluateLabInfoData(bundle))),
		display.NewSection("eCR Metadata", metadataItems(svc.EvaluateEcrMetadata(bundle))),
	}
	sections = append(sections, unavailableSection(sections))

	return ViewData{
		PatientName: svc.EvaluatePatientName(bundle, true),
		EcrSummary:  summary,
		Sections:    sections,
	}
}

func available(items []display.Data) []display.Data {
	out, _ := display.Split(items)
	return out
}

func concat(groups ...[]display.Data) []display.Data {
	var out []display.Data
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func clinicalItems(data services.ClinicalData) []display.Data {
	return concat(
		data.ReasonForVisit,
		data.ActiveProblems,
		data.Treatment,
		data.Vitals,
		data.Immunizations,
	)
}

// labItems flattens the organization-grouped lab reports into section
// records: each organization's display fields followed by one table per
// report.
func labItems(organizations []services.LabOrganization) []display.Data {
	var out []display.Data
	for _, org := range organizations {
		out = append(out, org.DisplayData...)
		for _, report := range org.Reports {
			out = append(out, display.Data{Title: report.Title, Table: report.ResultsTable})
			if report.OrganismsTable != nil {
				out = append(out, display.Data{Title: report.Title + " Organisms", Table: report.OrganismsTable})
			}
			out = append(out, report.Details...)
		}
	}
	return out
}

func metadataItems(meta services.EcrMetadata) []display.Data {
	items := concat(meta.EicrDetails, meta.EcrCustodianDetails)
	items = append(items, display.Data{
		Title: "RR Details",
		Table: reportabilityTable(meta.RRDetails),
	})
	if len(meta.ERSDWarnings) > 0 {
		items = append(items, display.Data{
			Title: "eRSD Warnings",
			Table: ersdWarningsTable(meta.ERSDWarnings),
		})
	}
	for _, block := range meta.EicrAuthorDetails {
		items = append(items, block...)
	}
	return items
}

// reportabilityTable renders the condition/rule/jurisdiction map, one row
// per rule, ordered for stable output.
func reportabilityTable(rr services.ReportableConditions) *display.Table {
	table := &display.Table{
		Headers: []string{"Reportable Condition", "RCKMS Rule Summary", "Jurisdiction Sending eCR"},
	}

	conditions := make([]string, 0, len(rr))
	for condition := range rr {
		conditions = append(conditions, condition)
	}
	sort.Strings(conditions)

	for _, condition := range conditions {
		rules := make([]string, 0, len(rr[condition]))
		for rule := range rr[condition] {
			rules = append(rules, rule)
		}
		sort.Strings(rules)

		for _, rule := range rules {
			table.Rows = append(table.Rows, display.Row{
				"Reportable Condition":     display.Cell{Value: condition},
				"RCKMS Rule Summary":       display.Cell{Value: rule},
				"Jurisdiction Sending eCR": display.Cell{Value: strings.Join(rr[condition][rule], "\n")},
			})
		}
	}
	if len(table.Rows) == 0 {
		return nil
	}
	return table
}

func ersdWarningsTable(warnings []services.ERSDWarning) *display.Table {
	table := &display.Table{
		Headers: []string{"Warning", "Version Used", "Expected Version", "Suggested Solution"},
	}
	for _, warning := range warnings {
		table.Rows = append(table.Rows, display.Row{
			"Warning":            display.Cell{Value: warning.Warning},
			"Version Used":       display.Cell{Value: warning.VersionUsed},
			"Expected Version":   display.Cell{Value: warning.ExpectedVersion},
			"Suggested Solution": display.Cell{Value: warning.SuggestedSolution},
		})
	}
	return table
}

// unavailableSection gathers every field the other sections checked but
// could not fill, so readers can see what was looked for.
func unavailableSection(sections []display.Section) display.Section {
	var items []display.Data
	for _, section := range sections {
		items = append(items, section.Unavailable...)
	}
	return display.Section{
		ID:          format.ToKebabCase("Unavailable Info"),
		Title:       "Unavailable Info",
		Unavailable: items,
	}
}
