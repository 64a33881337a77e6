// Package mappings holds the named path expressions that the extraction
// services evaluate against an eCR bundle. Keeping the paths in one table
// keeps the services free of raw FHIR structure knowledge and lets the
// whole table ship to the client alongside the bundle.
package mappings

// PathMappings maps a logical field name to the path expression that
// extracts it from a bundle.
type PathMappings map[string]string

// Load returns the path table for eCR bundles.
func Load() PathMappings {
	return defaultMappings
}

var defaultMappings = PathMappings{
	// Resolution of relative references such as "Patient/abc" against the
	// bundle, split into resource type and id by the caller.
	"resolve": "Bundle.entry.resource.where(resourceType = %resourceType).where(id = %id)",

	// Patient demographics.
	"patientNameList":          "Bundle.entry.resource.where(resourceType = 'Patient').name",
	"patientAddressList":       "Bundle.entry.resource.where(resourceType = 'Patient').address",
	"patientTelecom":           "Bundle.entry.resource.where(resourceType = 'Patient').telecom",
	"patientCounty":            "Bundle.entry.resource.where(resourceType = 'Patient').address.first().district",
	"patientCountry":           "Bundle.entry.resource.where(resourceType = 'Patient').address.first().country",
	"patientIds":               "Bundle.entry.resource.where(resourceType = 'Patient').identifier.value",
	"patientDOB":               "Bundle.entry.resource.where(resourceType = 'Patient').birthDate",
	"patientDOD":               "Bundle.entry.resource.where(resourceType = 'Patient').deceasedDateTime",
	"patientVitalStatus":       "Bundle.entry.resource.where(resourceType = 'Patient').deceasedBoolean",
	"patientGender":            "Bundle.entry.resource.where(resourceType = 'Patient').gender",
	"patientRace":              "Bundle.entry.resource.where(resourceType = 'Patient').extension.where(url = 'http://hl7.org/fhir/us/core/StructureDefinition/us-core-race').extension.where(url = 'ombCategory').value.display",
	"patientRaceDetailed":      "Bundle.entry.resource.where(resourceType = 'Patient').extension.where(url = 'http://hl7.org/fhir/us/core/StructureDefinition/us-core-race').extension.where(url = 'detailed').value.display",
	"patientEthnicity":         "Bundle.entry.resource.where(resourceType = 'Patient').extension.where(url = 'http://hl7.org/fhir/us/core/StructureDefinition/us-core-ethnicity').extension.where(url = 'ombCategory').value.display",
	"patientEthnicityDetailed": "Bundle.entry.resource.where(resourceType = 'Patient').extension.where(url = 'http://hl7.org/fhir/us/core/StructureDefinition/us-core-ethnicity').extension.where(url = 'detailed').value.display",
	"patientTribalAffiliation": "Bundle.entry.resource.where(resourceType = 'Patient').extension.where(url = 'http://hl7.org/fhir/us/ecr/StructureDefinition/us-ph-tribal-affiliation-extension').extension.where(url = 'TribeName').value",
	"patientCommunication":     "Bundle.entry.resource.where(resourceType = 'Patient').communication",
	"patientEmergencyContact":  "Bundle.entry.resource.where(resourceType = 'Patient').contact",
	"patientReligion":          "Bundle.entry.resource.where(resourceType = 'Patient').extension.where(url = 'http://hl7.org/fhir/StructureDefinition/patient-religion').value",
	"patientMaritalStatus":     "Bundle.entry.resource.where(resourceType = 'Patient').maritalStatus",

	// Social history.
	"patientTobaccoUse":        "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '72166-2').value",
	"patientHomelessStatus":    "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '75274-1').value",
	"patientPregnancyStatus":   "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '82810-3').value",
	"patientAlcoholUse":        "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '11331-6').value",
	"patientAlcoholIntake":     "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '74013-4').value",
	"patientAlcoholComment":    "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '11331-6').note.first().text",
	"patientSexualOrientation": "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '76690-7').value",
	"patientCurrentJobTitle":   "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '11341-5').value",
	"patientTravelHistory":     "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '420008001')",
	"travelHistoryStartDate":   "effectivePeriod.start",
	"travelHistoryEndDate":     "effectivePeriod.end",
	"travelHistoryLocation":    "component.where(code.coding.code = 'LOC').value",
	"travelHistoryPurpose":     "component.where(code.coding.code = '280147009').value",

	// Encounter and care team.
	"encounterStartDate":      "Bundle.entry.resource.where(resourceType = 'Encounter').period.start",
	"encounterEndDate":        "Bundle.entry.resource.where(resourceType = 'Encounter').period.end",
	"encounterType":           "Bundle.entry.resource.where(resourceType = 'Encounter').class.display",
	"encounterID":             "Bundle.entry.resource.where(resourceType = 'Encounter').identifier.value",
	"encounterDiagnosis":      "Bundle.entry.resource.where(resourceType = 'Encounter').diagnosis",
	"encounterParticipants":   "participant",
	"encounterIndividualRef":  "participant.where(type.coding.code = 'ATND').individual.reference",
	"compositionEncounterRef": "Bundle.entry.resource.where(resourceType = 'Composition').encounter.reference",

	// Facility.
	"facilityName":           "Bundle.entry.resource.where(resourceType = 'Encounter').location.first().location.display",
	"facilityAddress":        "Bundle.entry.resource.where(resourceType = 'Location').address",
	"facilityContact":        "Bundle.entry.resource.where(resourceType = 'Location').telecom.where(system = 'phone').first().value",
	"facilityContactAddress": "Bundle.entry.resource.where(resourceType = 'Encounter').serviceProvider.reference",
	"facilityType":           "Bundle.entry.resource.where(resourceType = 'Encounter').location.first().extension.where(url = 'http://build.fhir.org/ig/HL7/case-reporting/StructureDefinition-us-ph-location-definitions.html#Location.type').value",
	"facilityLocation":       "Bundle.entry.resource.where(resourceType = 'Encounter').location.first().location.reference",

	// eCR metadata.
	"rrDetails":             "Bundle.entry.resource.where(resourceType = 'Observation').where(meta.profile = 'http://hl7.org/fhir/us/ecr/StructureDefinition/rr-reportability-information-observation')",
	"eicrIdentifier":        "Bundle.entry.resource.where(resourceType = 'Composition').id",
	"eicrReleaseVersion":    "Bundle.entry.resource.where(resourceType = 'Composition').extension.where(url = 'https://www.hl7.org/implement/standards/product_brief.cfm?product_id=436').valueString",
	"eicrCustodianRef":      "Bundle.entry.resource.where(resourceType = 'Composition').custodian.reference",
	"eRSDwarnings":          "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = 'RRVS33').value.coding",
	"dateTimeEcrCreated":    "Bundle.entry.resource.where(resourceType = 'Composition').date",
	"ehrManufacturerModel":  "Bundle.entry.resource.where(resourceType = 'Device').where(property.type.coding.code = 'software').manufacturer",
	"ehrSoftware":           "Bundle.entry.resource.where(resourceType = 'Device').where(property.type.coding.code = 'software').version.first().value",
	"compositionAuthorRefs": "Bundle.entry.resource.where(resourceType = 'Composition').author",

	// Clinical info.
	"clinicalReasonForVisit":   "Bundle.entry.resource.where(resourceType = 'Encounter').reasonCode.first().text",
	"activeProblems":           "Bundle.entry.resource.where(resourceType = 'Condition').where(category.coding.code = 'problem-item-list')",
	"activeProblemsDisplay":    "code.coding.first().display",
	"activeProblemsOnsetDate":  "onsetDateTime",
	"activeProblemsOnsetAge":   "onsetAge.value",
	"activeProblemsComments":   "note.first().text",
	"adminMedicationsRefs":     "Bundle.entry.resource.where(resourceType = 'MedicationAdministration')",
	"immunizations":            "Bundle.entry.resource.where(resourceType = 'Immunization')",
	"immunizationsName":        "vaccineCode.coding.first().display",
	"immunizationsAdminDate":   "occurrenceDateTime",
	"immunizationsDoseNumber":  "protocolApplied.first().doseNumberPositiveInt",
	"immunizationsLotNumber":   "lotNumber",
	"patientHeight":            "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '8302-2').value.value",
	"patientHeightMeasurement": "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '8302-2').value.unit",
	"patientWeight":            "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '29463-7').value.value",
	"patientWeightMeasurement": "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '29463-7').value.unit",
	"patientBmi":               "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '39156-5').value.value",
	"patientBmiMeasurement":    "Bundle.entry.resource.where(resourceType = 'Observation').where(code.coding.code = '39156-5').value.unit",

	// Condition stamping applied by the conversion pipeline.
	"stampedImmunizations":     "Bundle.entry.resource.where(resourceType = 'Immunization').where(extension.value.code = %snomedCode)",
	"stampedConditions":        "Bundle.entry.resource.where(resourceType = 'Condition').where(extension.value.code = %snomedCode)",
	"stampedDiagnosticReports": "Bundle.entry.resource.where(resourceType = 'DiagnosticReport').where(extension.value.code = %snomedCode)",

	// Lab info.
	"diagnosticReports":          "Bundle.entry.resource.where(resourceType = 'DiagnosticReport')",
	"observations":               "Bundle.entry.resource.where(resourceType = 'Observation')",
	"organizations":              "Bundle.entry.resource.where(resourceType = 'Organization')",
	"observationComponent":       "code.coding.first().display",
	"observationValue":           "value",
	"observationReferenceRange":  "referenceRange.first().text",
	"observationReferenceValue":  "extension.where(url = 'http://hl7.org/fhir/R4/extension-observation-precondition.html').value.reference",
	"observationDeviceReference": "device.reference",
	"observationNote":            "note.first().text",
	"observationOrganism":        "component.where(code.coding.code = '41852-5').value",
	"observationAntibiotic":      "code.coding.first().display",
	"observationOrganismMethod":  "extension.where(url = 'methodCode originalText').valueString",
	"observationSusceptibility":  "value",
	"specimenSource":             "specimen.first().display",
	"specimenCollectionTime":     "effectiveDateTime",
	"specimenReceivedTime":       "issued",
}
