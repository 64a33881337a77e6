package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

const fixtureJSON = `{
  "resourceType": "Bundle",
  "type": "batch",
  "entry": [
    {
      "fullUrl": "urn:uuid:comp1",
      "resource": {
        "resourceType": "Composition",
        "id": "comp1",
        "date": "2022-05-14T12:56:38Z",
        "extension": [
          {
            "url": "https://www.hl7.org/implement/standards/product_brief.cfm?product_id=436",
            "valueString": "2016-12-01"
          }
        ],
        "encounter": {"reference": "Encounter/enc1"},
        "custodian": {"reference": "Organization/org-custodian"},
        "author": [{"reference": "PractitionerRole/pr1"}]
      }
    },
    {
      "resource": {
        "resourceType": "Patient",
        "id": "pat1",
        "name": [
          {"use": "official", "family": "doe", "given": ["ANNE", "b"]},
          {"use": "nickname", "family": "doe", "given": ["Annie"]}
        ],
        "gender": "female",
        "birthDate": "1970-07-15",
        "deceasedBoolean": false,
        "identifier": [{"value": "MRN-1234"}],
        "address": [
          {
            "use": "work",
            "line": ["1 office park"],
            "city": "richmond",
            "state": "VA",
            "district": "Suffolk",
            "country": "US",
            "postalCode": "23219",
            "period": {"start": "2015-01-01", "end": "2020-01-01"}
          },
          {
            "use": "home",
            "line": ["123 main st"],
            "city": "boston",
            "state": "MA",
            "postalCode": "02101",
            "period": {"start": "2020-01-01"}
          }
        ],
        "telecom": [{"system": "phone", "use": "home", "value": "+1-555-111-2222"}],
        "extension": [
          {
            "url": "http://hl7.org/fhir/us/core/StructureDefinition/us-core-race",
            "extension": [
              {"url": "ombCategory", "valueCoding": {"display": "White"}}
            ]
          },
          {
            "url": "http://hl7.org/fhir/us/core/StructureDefinition/us-core-ethnicity",
            "extension": [
              {"url": "ombCategory", "valueCoding": {"display": "Not Hispanic or Latino"}}
            ]
          }
        ],
        "communication": [
          {
            "language": {"coding": [{"code": "es", "display": "Spanish"}]},
            "preferred": true,
            "extension": [
              {
                "url": "http://hl7.org/fhir/StructureDefinition/patient-proficiency",
                "extension": [{"url": "level", "valueCoding": {"display": "Good"}}]
              }
            ]
          }
        ],
        "contact": [
          {
            "relationship": [{"coding": [{"display": "sister"}]}],
            "name": {"family": "doe", "given": ["jane"]},
            "telecom": [{"system": "phone", "use": "mobile", "value": "555-123-4567"}]
          }
        ]
      }
    },
    {
      "resource": {
        "resourceType": "Encounter",
        "id": "enc1",
        "class": {"display": "Emergency"},
        "period": {"start": "2022-10-11T19:29:00Z", "end": "2022-10-11T21:00:00Z"},
        "identifier": [{"value": "urn:oid:1.2.840"}, {"value": "123456"}],
        "reasonCode": [{"text": "Fever"}],
        "diagnosis": [{"condition": {"reference": "Condition/cond1"}}],
        "participant": [
          {
            "type": [{"coding": [{"code": "ATND", "display": "attender"}]}],
            "period": {"start": "2022-10-11", "end": "2022-10-12"},
            "individual": {"reference": "PractitionerRole/pr1"}
          }
        ],
        "location": [
          {"location": {"display": "Evergreen Clinic", "reference": "Location/loc1"}}
        ],
        "serviceProvider": {"reference": "Organization/org-custodian"}
      }
    },
    {
      "resource": {
        "resourceType": "PractitionerRole",
        "id": "pr1",
        "practitioner": {"reference": "Practitioner/prac1"},
        "organization": {"reference": "Organization/org1"}
      }
    },
    {
      "resource": {
        "resourceType": "Practitioner",
        "id": "prac1",
        "name": [{"family": "smith", "given": ["jane"], "prefix": ["Dr."]}],
        "identifier": [{"value": "NPI-99"}]
      }
    },
    {
      "resource": {
        "resourceType": "Organization",
        "id": "org1",
        "name": "Evergreen Medical"
      }
    },
    {
      "resource": {
        "resourceType": "Organization",
        "id": "org-custodian",
        "name": "Evergreen Hospital",
        "identifier": [{"value": "CUST-1"}],
        "address": [{"line": ["55 hospital way"], "city": "boston", "state": "MA", "postalCode": "02101"}],
        "telecom": [{"system": "phone", "use": "work", "value": "555-999-0000"}]
      }
    },
    {
      "resource": {
        "resourceType": "Organization",
        "id": "org-lab",
        "name": "Acme Laboratory",
        "address": [{"line": ["9 lab ln"], "city": "boston", "state": "MA", "postalCode": "02102"}]
      }
    },
    {
      "resource": {
        "resourceType": "Organization",
        "id": "org-lab-contact",
        "address": [{"line": ["9 lab ln"], "city": "boston", "state": "MA", "postalCode": "02102"}],
        "telecom": [{"system": "phone", "value": "+1 555 867 5309"}]
      }
    },
    {
      "resource": {
        "resourceType": "Location",
        "id": "loc1",
        "identifier": [{"value": "FAC123"}]
      }
    },
    {
      "resource": {
        "resourceType": "Condition",
        "id": "cond1",
        "category": [{"coding": [{"code": "problem-item-list"}]}],
        "code": {"coding": [{"display": "Pneumonia"}]},
        "onsetDateTime": "2022-03-01T10:00:00Z",
        "extension": [
          {
            "url": "https://reportstream.cdc.gov/fhir/StructureDefinition/condition-code",
            "valueCoding": {"code": "840539006"}
          }
        ]
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "rr1",
        "meta": {"profile": ["http://hl7.org/fhir/us/ecr/StructureDefinition/rr-reportability-information-observation"]},
        "valueCodeableConcept": {
          "text": "COVID-19",
          "coding": [{"system": "http://snomed.info/sct", "code": "840539006", "display": "Disease caused by SARS-CoV-2"}]
        },
        "extension": [
          {
            "url": "http://hl7.org/fhir/us/ecr/StructureDefinition/us-ph-determination-of-reportability-rule-extension",
            "valueString": "Detection of SARS-CoV-2 nucleic acid in a clinical specimen"
          }
        ],
        "performer": [{"display": "Massachusetts Department of Public Health"}]
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "ersd1",
        "code": {"coding": [{"code": "RRVS33"}]},
        "valueCodeableConcept": {"coding": [{"code": "RRVS29"}]}
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "tobacco1",
        "code": {"coding": [{"code": "72166-2"}]},
        "valueCodeableConcept": {"coding": [{"display": "Never smoker"}]}
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "alcohol1",
        "code": {"coding": [{"code": "11331-6"}]},
        "valueCodeableConcept": {"coding": [{"display": "Current drinker"}]},
        "note": [{"text": "patient reports weekend use"}]
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "alcohol2",
        "code": {"coding": [{"code": "74013-4"}]},
        "valueQuantity": {"value": 2, "unit": "/wk"}
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "travel1",
        "code": {"coding": [{"code": "420008001"}]},
        "effectivePeriod": {"start": "2023-01-05", "end": "2023-01-20"},
        "component": [
          {"code": {"coding": [{"code": "LOC"}]}, "valueString": "Brazil"},
          {
            "code": {"coding": [{"code": "280147009"}]},
            "valueCodeableConcept": {"coding": [{"display": "Tourism"}]}
          }
        ]
      }
    },
    {
      "resource": {
        "resourceType": "Observation",
        "id": "obs1",
        "code": {"coding": [{"display": "SARS-CoV-2 RNA"}]},
        "valueString": "Detected",
        "referenceRange": [{"text": "Not Detected"}],
        "effectiveDateTime": "2022-10-11T19:29:00Z",
        "issued": "2022-10-12T10:00:00Z",
        "specimen": [{"display": "Nasal swab"}]
      }
    },
    {
      "resource": {
        "resourceType": "DiagnosticReport",
        "id": "dr1",
        "code": {"coding": [{"display": "Abnormal COVID-19 Panel"}]},
        "performer": [{"reference": "Organization/org-lab"}],
        "result": [{"reference": "Observation/obs1"}],
        "extension": [
          {
            "url": "https://reportstream.cdc.gov/fhir/StructureDefinition/condition-code",
            "valueCoding": {"code": "840539006"}
          }
        ]
      }
    },
    {
      "resource": {
        "resourceType": "MedicationAdministration",
        "id": "medadmin1",
        "effectiveDateTime": "2022-10-01T12:00:00Z",
        "medicationReference": {"reference": "Medication/med1"}
      }
    },
    {
      "resource": {
        "resourceType": "Medication",
        "id": "med1",
        "code": {"coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "435"}]}
      }
    },
    {
      "resource": {
        "resourceType": "Immunization",
        "id": "imm1",
        "vaccineCode": {"coding": [{"display": "COVID-19 mRNA vaccine"}]},
        "occurrenceDateTime": "2021-05-06T09:00:00Z",
        "lotNumber": "A123",
        "protocolApplied": [{"doseNumberPositiveInt": 1}],
        "extension": [
          {
            "url": "https://reportstream.cdc.gov/fhir/StructureDefinition/condition-code",
            "valueCoding": {"code": "840539006"}
          }
        ]
      }
    }
  ]
}`

func newFixture(t *testing.T) (*Service, fhir.Bundle) {
	t.Helper()
	bundle, err := fhir.ParseBundle([]byte(fixtureJSON))
	if err != nil {
		t.Fatalf("Failed to parse fixture bundle: %v", err)
	}
	return New(nil, nil, time.UTC), bundle
}

func findData(t *testing.T, items []display.Data, title string) display.Data {
	t.Helper()
	for _, item := range items {
		if item.Title == title {
			return item
		}
	}
	t.Fatalf("Expected field %q, got none", title)
	return display.Data{}
}

// TestEvaluatePatientName tests banner and full name rendering.
func TestEvaluatePatientName(t *testing.T) {
	s, bundle := newFixture(t)

	if got := s.EvaluatePatientName(bundle, true); got != "Anne B Doe" {
		t.Errorf("Expected banner name %q, got %q", "Anne B Doe", got)
	}

	want := "Official: Anne B Doe\nNickname: Annie Doe"
	if got := s.EvaluatePatientName(bundle, false); got != want {
		t.Errorf("Expected full name list %q, got %q", want, got)
	}
}

// TestEvaluateDemographicsData tests the assembled patient info fields.
func TestEvaluateDemographicsData(t *testing.T) {
	s, bundle := newFixture(t)
	data := s.EvaluateDemographicsData(bundle)

	tests := []struct {
		title string
		want  string
	}{
		{"DOB", "07/15/1970"},
		{"Vital Status", "Alive"},
		{"Sex", "Female"},
		{"Race", "White"},
		{"Ethnicity", "Not Hispanic or Latino"},
		{"County", "Suffolk"},
		{"Country", "US"},
		{"Preferred Language", "Spanish\nGood"},
		{"Contact", "Home: 555-111-2222"},
		{"Patient IDs", "MRN-1234"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := findData(t, data, tt.title).Value; got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	contact := findData(t, data, "Emergency Contact").Value
	want := "Sister\nJane Doe\nMobile: 555-123-4567"
	if contact != want {
		t.Errorf("Expected emergency contact %q, got %q", want, contact)
	}
}

// TestEvaluateEncounterData tests encounter field extraction.
func TestEvaluateEncounterData(t *testing.T) {
	s, bundle := newFixture(t)
	data := s.EvaluateEncounterData(bundle)

	if got := findData(t, data, "Encounter Type").Value; got != "Emergency" {
		t.Errorf("Expected Emergency, got %q", got)
	}
	if got := findData(t, data, "Encounter ID").Value; got != "123456" {
		t.Errorf("Expected numeric encounter id 123456, got %q", got)
	}
	if got := findData(t, data, "Encounter Diagnosis").Value; got != "Pneumonia" {
		t.Errorf("Expected Pneumonia, got %q", got)
	}

	careTeam := findData(t, data, "Encounter Care Team").Table
	if careTeam == nil || len(careTeam.Rows) != 1 {
		t.Fatalf("Expected one care team row, got %+v", careTeam)
	}
	row := careTeam.Rows[0]
	if row["Name"].Value != "Dr. Jane Smith" {
		t.Errorf("Expected Dr. Jane Smith, got %q", row["Name"].Value)
	}
	if row["Role"].Value != "attender" {
		t.Errorf("Expected attender, got %q", row["Role"].Value)
	}
	if row["Dates"].Value != "Start: 10/11/2022\nEnd: 10/12/2022" {
		t.Errorf("Unexpected dates %q", row["Dates"].Value)
	}
}

// TestEvaluateFacilityData tests facility extraction including the id
// resolved through the encounter location.
func TestEvaluateFacilityData(t *testing.T) {
	s, bundle := newFixture(t)
	data := s.EvaluateFacilityData(bundle)

	if got := findData(t, data, "Facility Name").Value; got != "Evergreen Clinic" {
		t.Errorf("Expected Evergreen Clinic, got %q", got)
	}
	if got := findData(t, data, "Facility ID").Value; got != "FAC123" {
		t.Errorf("Expected FAC123, got %q", got)
	}
}

// TestEvaluateProviderData tests practitioner role resolution.
func TestEvaluateProviderData(t *testing.T) {
	s, bundle := newFixture(t)
	data := s.EvaluateProviderData(bundle)

	if got := findData(t, data, "Provider Name").Value; got != "Dr. Jane Smith" {
		t.Errorf("Expected Dr. Jane Smith, got %q", got)
	}
	if got := findData(t, data, "Provider Facility Name").Value; got != "Evergreen Medical" {
		t.Errorf("Expected Evergreen Medical, got %q", got)
	}
	if got := findData(t, data, "Provider ID").Value; got != "NPI-99" {
		t.Errorf("Expected NPI-99, got %q", got)
	}
}

// TestEvaluateSocialData tests social history extraction.
func TestEvaluateSocialData(t *testing.T) {
	s, bundle := newFixture(t)
	data := s.EvaluateSocialData(bundle)

	if got := findData(t, data, "Tobacco Use").Value; got != "Never smoker" {
		t.Errorf("Expected Never smoker, got %q", got)
	}

	want := "Use: Current drinker\nIntake (standard drinks/week): 2/wk\nComment: Patient reports weekend use"
	if got := findData(t, data, "Alcohol Use").Value; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	travel := findData(t, data, "Travel History").Table
	if travel == nil || len(travel.Rows) != 1 {
		t.Fatalf("Expected one travel row, got %+v", travel)
	}
	row := travel.Rows[0]
	if row["Location"].Value != "Brazil" {
		t.Errorf("Expected Brazil, got %q", row["Location"].Value)
	}
	if row["Start Date"].Value != "01/05/2023" {
		t.Errorf("Expected 01/05/2023, got %q", row["Start Date"].Value)
	}
	if row["Purpose"].Value != "Tourism" {
		t.Errorf("Expected Tourism, got %q", row["Purpose"].Value)
	}
}

// TestEvaluateEcrMetadata tests document details, reportability, and
// warnings.
func TestEvaluateEcrMetadata(t *testing.T) {
	s, bundle := newFixture(t)
	meta := s.EvaluateEcrMetadata(bundle)

	if got := findData(t, meta.EicrDetails, "eICR ID").Value; got != "comp1" {
		t.Errorf("Expected comp1, got %q", got)
	}
	if got := findData(t, meta.EicrDetails, "eICR Release Version").Value; got != "R1.1 (2016-12-01)" {
		t.Errorf("Expected R1.1 (2016-12-01), got %q", got)
	}
	if got := findData(t, meta.EcrCustodianDetails, "Custodian Name").Value; got != "Evergreen Hospital" {
		t.Errorf("Expected Evergreen Hospital, got %q", got)
	}

	triggers, ok := meta.RRDetails["COVID-19"]
	if !ok {
		t.Fatalf("Expected COVID-19 reportable condition, got %v", meta.RRDetails)
	}
	performers := triggers["Detection of SARS-CoV-2 nucleic acid in a clinical specimen"]
	if len(performers) != 1 || performers[0] != "Massachusetts Department of Public Health" {
		t.Errorf("Unexpected performers %v", performers)
	}

	if len(meta.ERSDWarnings) != 1 {
		t.Fatalf("Expected one eRSD warning, got %d", len(meta.ERSDWarnings))
	}
	if meta.ERSDWarnings[0].Warning != "Sending organization is using an outdated eRSD (RCTC) version" {
		t.Errorf("Unexpected warning %q", meta.ERSDWarnings[0].Warning)
	}

	if len(meta.EicrAuthorDetails) != 1 {
		t.Fatalf("Expected one author block, got %d", len(meta.EicrAuthorDetails))
	}
	if got := findData(t, meta.EicrAuthorDetails[0], "Author Name").Value; got != "Dr. Jane Smith" {
		t.Errorf("Expected Dr. Jane Smith, got %q", got)
	}
}

// TestEvaluateLabInfoData tests report grouping, the results table, and the
// identical-organization telecom merge.
func TestEvaluateLabInfoData(t *testing.T) {
	s, bundle := newFixture(t)
	groups := s.EvaluateLabInfoData(bundle)

	if len(groups) != 1 {
		t.Fatalf("Expected one organization group, got %d", len(groups))
	}
	group := groups[0]
	if group.OrganizationID != "org-lab" {
		t.Errorf("Expected org-lab, got %q", group.OrganizationID)
	}
	if got := findData(t, group.DisplayData, "Lab Performing Name").Value; got != "Acme Laboratory" {
		t.Errorf("Expected Acme Laboratory, got %q", got)
	}
	if got := findData(t, group.DisplayData, "Lab Contact").Value; got != "555-867-5309" {
		t.Errorf("Expected merged telecom 555-867-5309, got %q", got)
	}
	if got := findData(t, group.DisplayData, "Number of Results").Value; got != "1" {
		t.Errorf("Expected 1 result, got %q", got)
	}

	if len(group.Reports) != 1 {
		t.Fatalf("Expected one report, got %d", len(group.Reports))
	}
	report := group.Reports[0]
	if report.Title != "Abnormal COVID-19 Panel" {
		t.Errorf("Unexpected title %q", report.Title)
	}
	if !report.Abnormal {
		t.Error("Expected abnormal flag")
	}
	if report.ResultsTable == nil || len(report.ResultsTable.Rows) != 1 {
		t.Fatalf("Expected one results row, got %+v", report.ResultsTable)
	}
	row := report.ResultsTable.Rows[0]
	if row["Component"].Value != "SARS-CoV-2 RNA" {
		t.Errorf("Expected SARS-CoV-2 RNA, got %q", row["Component"].Value)
	}
	if row["Value"].Value != "Detected" {
		t.Errorf("Expected Detected, got %q", row["Value"].Value)
	}
	if row["Ref Range"].Value != "Not Detected" {
		t.Errorf("Expected Not Detected, got %q", row["Ref Range"].Value)
	}

	if got := findData(t, report.Details, "Specimen (Source)").Value; got != "Nasal swab" {
		t.Errorf("Expected Nasal swab, got %q", got)
	}
	if got := findData(t, report.Details, "Collection Time").Value; got != "10/11/2022 7:29 PM UTC" {
		t.Errorf("Unexpected collection time %q", got)
	}
}

// TestEvaluateClinicalData tests problems, medications, and immunizations.
func TestEvaluateClinicalData(t *testing.T) {
	s, bundle := newFixture(t)
	clinical := s.EvaluateClinicalData(bundle)

	if got := findData(t, clinical.ReasonForVisit, "Reason for Visit").Value; got != "Fever" {
		t.Errorf("Expected Fever, got %q", got)
	}

	problems := findData(t, clinical.ActiveProblems, "Problems List").Table
	if problems == nil || len(problems.Rows) != 1 {
		t.Fatalf("Expected one problem row, got %+v", problems)
	}
	if problems.Rows[0]["Active Problem"].Value != "Pneumonia" {
		t.Errorf("Expected Pneumonia, got %q", problems.Rows[0]["Active Problem"].Value)
	}
	if problems.Rows[0]["Onset Age"].Value != "51" {
		t.Errorf("Expected onset age 51, got %q", problems.Rows[0]["Onset Age"].Value)
	}

	meds := findData(t, clinical.Treatment, "Administered Medications").Table
	if meds == nil || len(meds.Rows) != 1 {
		t.Fatalf("Expected one medication row, got %+v", meds)
	}
	wantName := "Unknown medication name - http://www.nlm.nih.gov/research/umls/rxnorm code 435"
	if meds.Rows[0]["Medication Name"].Value != wantName {
		t.Errorf("Expected %q, got %q", wantName, meds.Rows[0]["Medication Name"].Value)
	}

	shots := findData(t, clinical.Immunizations, "Immunization History").Table
	if shots == nil || len(shots.Rows) != 1 {
		t.Fatalf("Expected one immunization row, got %+v", shots)
	}
	row := shots.Rows[0]
	if row["Name"].Value != "COVID-19 mRNA vaccine" {
		t.Errorf("Expected COVID-19 mRNA vaccine, got %q", row["Name"].Value)
	}
	if row["Administration Dates"].Value != "05/06/2021" {
		t.Errorf("Expected 05/06/2021, got %q", row["Administration Dates"].Value)
	}
	if row["Dose Number"].Value != "1" {
		t.Errorf("Expected dose 1, got %q", row["Dose Number"].Value)
	}
}

// TestFindCurrentAddress tests the address priority order.
func TestFindCurrentAddress(t *testing.T) {
	home := fhir.Address{Use: "home", Line: []string{"123 main st"}, City: "boston", State: "MA", Period: &fhir.Period{Start: "2020-01-01"}}
	work := fhir.Address{Use: "work", Line: []string{"1 office park"}, City: "richmond", State: "VA", Period: &fhir.Period{Start: "2015-01-01", End: "2020-01-01"}}

	got := FindCurrentAddress([]fhir.Address{work, home})
	if got != "123 Main St\nBoston, MA" {
		t.Errorf("Expected current home address, got %q", got)
	}

	if got := FindCurrentAddress(nil); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}

	// With no open-period or home address the first one wins.
	got = FindCurrentAddress([]fhir.Address{work})
	if got != "1 Office Park\nRichmond, VA" {
		t.Errorf("Expected first address, got %q", got)
	}
}

// TestEvaluateEcrSummaryConditionSummaries tests condition grouping and
// stamped-resource filtering.
func TestEvaluateEcrSummaryConditionSummaries(t *testing.T) {
	s, bundle := newFixture(t)
	summaries := s.EvaluateEcrSummaryConditionSummaries(bundle, "840539006")

	if len(summaries) != 1 {
		t.Fatalf("Expected one condition summary, got %d", len(summaries))
	}
	summary := summaries[0]
	if summary.Title != "COVID-19" {
		t.Errorf("Expected COVID-19, got %q", summary.Title)
	}
	if summary.Snomed != "840539006" {
		t.Errorf("Expected snomed 840539006, got %q", summary.Snomed)
	}

	rules := findData(t, summary.ConditionDetails, "RCKMS Rule Summary").Value
	if rules != "Detection of SARS-CoV-2 nucleic acid in a clinical specimen" {
		t.Errorf("Unexpected rule summary %q", rules)
	}

	clinical := findData(t, summary.ClinicalDetails, "Problems List")
	if clinical.Table == nil || len(clinical.Table.Rows) != 1 {
		t.Fatalf("Expected stamped problem row, got %+v", clinical.Table)
	}

	if len(summary.LabDetails) != 1 || summary.LabDetails[0].Title != "Abnormal COVID-19 Panel" {
		t.Errorf("Unexpected lab details %+v", summary.LabDetails)
	}
	if summary.ImmunizationTable == nil || len(summary.ImmunizationTable.Rows) != 1 {
		t.Errorf("Expected stamped immunization row, got %+v", summary.ImmunizationTable)
	}
}

// TestEvaluateEcrSummaryNoMatch tests the no-data sentinels for a SNOMED
// code with no stamped resources.
func TestEvaluateEcrSummaryNoMatch(t *testing.T) {
	s, bundle := newFixture(t)

	details := s.evaluateRelevantClinicalDetails(bundle, "00000")
	if len(details) != 1 || details[0].Value != noMatchingClinicalData {
		t.Errorf("Expected clinical no-data sentinel, got %+v", details)
	}

	labs := s.evaluateRelevantLabResults(bundle, "00000")
	if len(labs) != 1 || labs[0].Value != noMatchingLabResults {
		t.Errorf("Expected lab no-data sentinel, got %+v", labs)
	}
}

// TestEvaluateValueShapes tests display rendering of FHIR value shapes.
func TestEvaluateValueShapes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"String", "  plain  ", "plain"},
		{"Bool", true, "true"},
		{"Quantity with letter unit", map[string]any{"value": json.Number("98.6"), "unit": "degF"}, "98.6 degF"},
		{"Quantity with symbol unit", map[string]any{"value": json.Number("2"), "unit": "/wk"}, "2/wk"},
		{"CodeableConcept display", map[string]any{"coding": []any{map[string]any{"display": "Positive", "code": "10828004"}}}, "Positive"},
		{"CodeableConcept text fallback", map[string]any{"coding": []any{map[string]any{"code": "10828004"}}, "text": "Positive result"}, "Positive result"},
		{"CodeableConcept code fallback", map[string]any{"coding": []any{map[string]any{"code": "10828004"}}}, "10828004"},
		{"Coding", map[string]any{"code": "840539006", "display": "COVID-19"}, "COVID-19"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueToString(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
