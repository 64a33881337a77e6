// Package ecrstore persists and queries eCR bundles and their case-summary
// metadata. Two relational backends implement the same Repository contract:
// PostgreSQL carries the core metadata schema plus the bundles themselves,
// SQL Server carries the extended metadata schema and persists metadata only.
package ecrstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/daterange"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

var (
	// ErrNoBundleStorage rejects bundle reads and writes on the SQL Server
	// backend, which only supports metadata persistence.
	ErrNoBundleStorage = errors.New("bundle storage is not supported by the SQL Server backend")

	// ErrSchemaMismatch rejects a save whose metadata variant does not match
	// the backend's column set.
	ErrSchemaMismatch = errors.New("metadata schema is not supported by this backend")
)

// EcrDisplay is one case-summary row of the eCR library list.
type EcrDisplay struct {
	EcrID                string   `json:"ecrId"`
	PatientFirstName     string   `json:"patient_first_name"`
	PatientLastName      string   `json:"patient_last_name"`
	PatientDateOfBirth   string   `json:"patient_date_of_birth"`
	ReportableConditions []string `json:"reportable_conditions"`
	RuleSummaries        []string `json:"rule_summaries"`
	PatientReportDate    string   `json:"patient_report_date"`
	DateCreated          string   `json:"date_created"`
}

// ListParams carries the list query's pagination, sorting, and filters.
type ListParams struct {
	StartIndex    int
	ItemsPerPage  int
	SortColumn    string
	SortDirection string
	Period        daterange.Period
	Search        string
	// Conditions filters rows to eCRs reportable for any of the named
	// conditions. nil means no condition filter; a list consisting solely
	// of empty strings selects rows with no recorded condition.
	Conditions []string
}

// RuleSummary is one RCKMS rule that made a condition reportable.
type RuleSummary struct {
	Summary string `json:"summary"`
}

// RRCondition is one reportable condition from the reportability response
// together with the rules that triggered it.
type RRCondition struct {
	Condition     string        `json:"condition"`
	RuleSummaries []RuleSummary `json:"rule_summaries"`
}

// CoreMetadata is the compact column set extracted during conversion,
// written by the PostgreSQL backend.
type CoreMetadata struct {
	LastName          string        `json:"last_name"`
	FirstName         string        `json:"first_name"`
	BirthDate         string        `json:"birth_date"`
	DataSource        string        `json:"data_source"`
	EicrSetID         string        `json:"eicr_set_id"`
	EicrVersionNumber string        `json:"eicr_version_number"`
	RR                []RRCondition `json:"rr"`
	ReportDate        string        `json:"report_date"`
}

// PatientAddress is one patient address row of the extended schema.
type PatientAddress struct {
	Use         string   `json:"use,omitempty"`
	Type        string   `json:"type,omitempty"`
	Text        string   `json:"text,omitempty"`
	Line        []string `json:"line,omitempty"`
	City        string   `json:"city,omitempty"`
	District    string   `json:"district,omitempty"`
	State       string   `json:"state,omitempty"`
	PostalCode  string   `json:"postal_code,omitempty"`
	Country     string   `json:"country,omitempty"`
	PeriodStart string   `json:"period_start,omitempty"`
	PeriodEnd   string   `json:"period_end,omitempty"`
}

// LabResult is one lab result row of the extended schema.
type LabResult struct {
	UUID                           string   `json:"uuid,omitempty"`
	TestType                       string   `json:"test_type,omitempty"`
	TestTypeCode                   string   `json:"test_type_code,omitempty"`
	TestTypeSystem                 string   `json:"test_type_system,omitempty"`
	TestResultQualitative          string   `json:"test_result_qualitative,omitempty"`
	TestResultQuantitative         *float64 `json:"test_result_quantitative,omitempty"`
	TestResultUnits                string   `json:"test_result_units,omitempty"`
	TestResultCode                 string   `json:"test_result_code,omitempty"`
	TestResultCodeDisplay          string   `json:"test_result_code_display,omitempty"`
	TestResultCodeSystem           string   `json:"test_result_code_system,omitempty"`
	TestResultInterpretation       string   `json:"test_result_interpretation,omitempty"`
	TestResultInterpretationCode   string   `json:"test_result_interpretation_code,omitempty"`
	TestResultInterpretationSystem string   `json:"test_result_interpretation_system,omitempty"`
	TestResultRefRangeLow          string   `json:"test_result_ref_range_low,omitempty"`
	TestResultRefRangeLowUnits     string   `json:"test_result_ref_range_low_units,omitempty"`
	TestResultRefRangeHigh         string   `json:"test_result_ref_range_high,omitempty"`
	TestResultRefRangeHighUnits    string   `json:"test_result_ref_range_high_units,omitempty"`
	SpecimenType                   string   `json:"specimen_type,omitempty"`
	SpecimenCollectionDate         string   `json:"specimen_collection_date,omitempty"`
	PerformingLab                  string   `json:"performing_lab,omitempty"`
}

// ExtendedMetadata is the full column set extracted during conversion,
// written by the SQL Server backend.
type ExtendedMetadata struct {
	EicrSetID              string           `json:"eicr_set_id,omitempty"`
	EicrVersionNumber      string           `json:"eicr_version_number,omitempty"`
	LastName               string           `json:"last_name,omitempty"`
	FirstName              string           `json:"first_name,omitempty"`
	BirthDate              string           `json:"birth_date,omitempty"`
	Gender                 string           `json:"gender,omitempty"`
	BirthSex               string           `json:"birth_sex,omitempty"`
	GenderIdentity         string           `json:"gender_identity,omitempty"`
	Race                   string           `json:"race,omitempty"`
	Ethnicity              string           `json:"ethnicity,omitempty"`
	Latitude               *float64         `json:"latitude,omitempty"`
	Longitude              *float64         `json:"longitude,omitempty"`
	HomelessnessStatus     string           `json:"homelessness_status,omitempty"`
	Disabilities           string           `json:"disabilities,omitempty"`
	TribalAffiliation      string           `json:"tribal_affiliation,omitempty"`
	TribalEnrollmentStatus string           `json:"tribal_enrollment_status,omitempty"`
	CurrentJobTitle        string           `json:"current_job_title,omitempty"`
	CurrentJobIndustry     string           `json:"current_job_industry,omitempty"`
	UsualOccupation        string           `json:"usual_occupation,omitempty"`
	UsualIndustry          string           `json:"usual_industry,omitempty"`
	PreferredLanguage      string           `json:"preferred_language,omitempty"`
	PregnancyStatus        string           `json:"pregnancy_status,omitempty"`
	RRID                   string           `json:"rr_id,omitempty"`
	ProcessingStatus       string           `json:"processing_status,omitempty"`
	AuthoringDatetime      string           `json:"authoring_datetime,omitempty"`
	ProviderID             string           `json:"provider_id,omitempty"`
	FacilityIDNumber       string           `json:"facility_id_number,omitempty"`
	FacilityName           string           `json:"facility_name,omitempty"`
	FacilityType           string           `json:"facility_type,omitempty"`
	EncounterType          string           `json:"encounter_type,omitempty"`
	EncounterStartDate     string           `json:"encounter_start_date,omitempty"`
	EncounterEndDate       string           `json:"encounter_end_date,omitempty"`
	ReasonForVisit         string           `json:"reason_for_visit,omitempty"`
	ActiveProblems         []string         `json:"active_problems,omitempty"`
	PatientAddresses       []PatientAddress `json:"patient_addresses,omitempty"`
	Labs                   []LabResult      `json:"labs,omitempty"`
	RR                     []RRCondition    `json:"rr,omitempty"`
	ReportDate             string           `json:"report_date,omitempty"`
}

// Repository is the metadata store contract shared by both backends.
type Repository interface {
	// ListEcrData returns one page of case-summary rows.
	ListEcrData(ctx context.Context, params ListParams) ([]EcrDisplay, error)
	// TotalEcrCount counts the rows matching the params' filters.
	TotalEcrCount(ctx context.Context, params ListParams) (int, error)
	// Conditions returns the distinct reportable-condition vocabulary.
	Conditions(ctx context.Context) ([]string, error)
	// FindBundle loads a stored FHIR bundle by eCR id.
	FindBundle(ctx context.Context, ecrID string) (fhir.Bundle, error)
	// SaveBundle stores a FHIR bundle, replacing any previous ingest.
	SaveBundle(ctx context.Context, ecrID string, bundle fhir.Bundle) error
	// SaveWithCoreMetadata writes the core metadata column set.
	SaveWithCoreMetadata(ctx context.Context, ecrID string, meta CoreMetadata) error
	// SaveWithExtendedMetadata writes the extended metadata column set.
	SaveWithExtendedMetadata(ctx context.Context, ecrID string, meta ExtendedMetadata) error
}

// normalizeSort validates the sort column and direction, falling back to
// date_created DESC so an unrecognized parameter can never reach the query.
func normalizeSort(column, direction string) (string, string) {
	switch column {
	case "patient", "date_created", "report_date":
	default:
		column = "date_created"
	}

	switch strings.ToUpper(direction) {
	case "ASC":
		direction = "ASC"
	case "DESC":
		direction = "DESC"
	default:
		direction = "DESC"
	}
	return column, direction
}

// allEmpty reports whether every filter entry is the empty string, the list
// view's encoding of "eCRs with no condition".
func allEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

func formatRowDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return format.FormatDate(t.UTC().Format(time.RFC3339))
}

func formatRowDateTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return format.FormatDateTime(t.UTC().Format(time.RFC3339), loc)
}
