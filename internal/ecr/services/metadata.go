package services

import (
	"sort"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/display"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

const reportabilityRuleExtensionURL = "http://hl7.org/fhir/us/ecr/StructureDefinition/us-ph-determination-of-reportability-rule-extension"

// ReportableConditions maps a condition name to its triggering rules, and
// each rule to the organizations the condition is reportable to.
type ReportableConditions map[string]map[string][]string

// ERSDWarning describes a problem with the trigger code version the
// sending organization used.
type ERSDWarning struct {
	Warning           string `json:"warning"`
	VersionUsed       string `json:"versionUsed"`
	ExpectedVersion   string `json:"expectedVersion"`
	SuggestedSolution string `json:"suggestedSolution"`
}

// EcrMetadata carries the eCR metadata section groups.
type EcrMetadata struct {
	EicrDetails         []display.Data       `json:"eicrDetails"`
	EcrCustodianDetails []display.Data       `json:"ecrCustodianDetails"`
	RRDetails           ReportableConditions `json:"rrDetails"`
	ERSDWarnings        []ERSDWarning        `json:"eRSDWarnings"`
	EicrAuthorDetails   [][]display.Data     `json:"eicrAuthorDetails"`
}

// EvaluateEcrMetadata extracts the eICR document details, custodian,
// reportability determinations, trigger code warnings, and author blocks.
func (s *Service) EvaluateEcrMetadata(bundle fhir.Bundle) EcrMetadata {
	doc := map[string]any(bundle)

	return EcrMetadata{
		EicrDetails: []display.Data{
			{
				Title:   "eICR ID",
				Value:   s.evalString(doc, "eicrIdentifier"),
				ToolTip: "Unique document ID for the eICR that originates from the medical record. Different from the Document ID that NBS creates for all incoming records.",
			},
			{Title: "Date/Time eCR Created", Value: format.FormatDateTime(s.evalString(doc, "dateTimeEcrCreated"), s.loc)},
			{Title: "eICR Release Version", Value: s.evaluateReleaseVersion(doc)},
			{Title: "EHR Manufacturer Model Name", Value: s.evalString(doc, "ehrManufacturerModel")},
			{Title: "EHR Software Name", Value: s.evalString(doc, "ehrSoftware")},
		},
		EcrCustodianDetails: s.evaluateCustodianDetails(doc),
		RRDetails:           s.evaluateReportableConditions(doc),
		ERSDWarnings:        s.evaluateERSDWarnings(doc),
		EicrAuthorDetails:   s.evaluateAuthorDetails(doc),
	}
}

// evaluateReleaseVersion maps known eICR release dates to their named
// versions and passes anything else through.
func (s *Service) evaluateReleaseVersion(doc map[string]any) string {
	switch version := s.evalString(doc, "eicrReleaseVersion"); version {
	case "2016-12-01":
		return "R1.1 (2016-12-01)"
	case "2021-01-01":
		return "R3.1 (2021-01-01)"
	default:
		return version
	}
}

func (s *Service) evaluateCustodianDetails(doc map[string]any) []display.Data {
	custodianRef := s.evalString(doc, "eicrCustodianRef")
	custodian, _ := resolveAs[organizationResource](s, doc, custodianRef)

	id := ""
	if len(custodian.Identifier) > 0 {
		id = custodian.Identifier[0].Value
	}
	address := ""
	if len(custodian.Address) > 0 {
		address = format.FormatAddress(&custodian.Address[0], format.AddressOptions{})
	}

	return []display.Data{
		{Title: "Custodian ID", Value: id},
		{Title: "Custodian Name", Value: custodian.Name},
		{Title: "Custodian Address", Value: address},
		{Title: "Custodian Contact", Value: format.FormatContactPoint(custodian.Telecom)},
	}
}

// evaluateReportableConditions walks the reportability information
// observations. Each observation names one condition, the rules that
// triggered reporting, and the organizations performing the report.
func (s *Service) evaluateReportableConditions(doc map[string]any) ReportableConditions {
	conditions := make(ReportableConditions)

	for _, v := range s.evalAll(doc, "rrDetails") {
		obs, ok := v.(map[string]any)
		if !ok {
			continue
		}

		name := s.conditionDisplayName(obs)
		triggers := reportabilityTriggers(obs)
		if len(triggers) == 0 {
			continue
		}
		if conditions[name] == nil {
			conditions[name] = make(map[string][]string)
		}

		performers := performerDisplays(obs)
		for _, trigger := range triggers {
			conditions[name][trigger] = mergeSorted(conditions[name][trigger], performers)
		}
	}
	return conditions
}

func (s *Service) conditionDisplayName(obs map[string]any) string {
	concept, _ := obs["valueCodeableConcept"].(map[string]any)
	if text, _ := concept["text"].(string); text != "" {
		return text
	}
	if codings, ok := concept["coding"].([]any); ok {
		for _, c := range codings {
			coding, _ := c.(map[string]any)
			if display, _ := coding["display"].(string); display != "" {
				return display
			}
		}
	}
	return "Unknown Condition"
}

func reportabilityTriggers(obs map[string]any) []string {
	extensions, _ := obs["extension"].([]any)
	var triggers []string
	for _, e := range extensions {
		ext, _ := e.(map[string]any)
		if url, _ := ext["url"].(string); url != reportabilityRuleExtensionURL {
			continue
		}
		if rule, _ := ext["valueString"].(string); strings.TrimSpace(rule) != "" {
			triggers = append(triggers, strings.TrimSpace(rule))
		}
	}
	return triggers
}

func performerDisplays(obs map[string]any) []string {
	performers, _ := obs["performer"].([]any)
	var out []string
	for _, p := range performers {
		performer, _ := p.(map[string]any)
		if display, _ := performer["display"].(string); display != "" {
			out = append(out, display)
		}
	}
	return out
}

func mergeSorted(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	merged := existing
	for _, v := range incoming {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	sort.Strings(merged)
	return merged
}

const eRSDExpectedVersion = "Sending organization should be using one of the following: 2023-10-06, 1.2.2.0, 3.x.x.x."

// evaluateERSDWarnings translates trigger code version warning codes from
// the reportability response into reader-facing warnings.
func (s *Service) evaluateERSDWarnings(doc map[string]any) []ERSDWarning {
	var warnings []ERSDWarning
	for _, v := range s.evalAll(doc, "eRSDwarnings") {
		coding, ok := v.(map[string]any)
		if !ok {
			continue
		}
		switch code, _ := coding["code"].(string); code {
		case "RRVS34":
			warnings = append(warnings, ERSDWarning{
				Warning:           "Sending organization is using an malformed eRSD (RCTC) version",
				VersionUsed:       "2020-06-23",
				ExpectedVersion:   eRSDExpectedVersion,
				SuggestedSolution: "The trigger code version your organization is using could not be determined. The trigger codes may be out date. Please have your EHR administrators update the version format for complete eCR functioning.",
			})
		case "RRVS29":
			warnings = append(warnings, ERSDWarning{
				Warning:           "Sending organization is using an outdated eRSD (RCTC) version",
				VersionUsed:       "2020-06-23",
				ExpectedVersion:   eRSDExpectedVersion,
				SuggestedSolution: "The trigger code version your organization is using is out-of-date. Please have your EHR administration install the current version for complete eCR functioning.",
			})
		}
	}
	return warnings
}

// evaluateAuthorDetails resolves each PractitionerRole author on the
// composition into a block of author and facility fields. A document with
// no such authors yields a single empty block so the section still renders.
func (s *Service) evaluateAuthorDetails(doc map[string]any) [][]display.Data {
	refs := fhir.DecodeAll[fhir.Reference](s.evalAll(doc, "compositionAuthorRefs"))

	var blocks [][]display.Data
	for _, ref := range refs {
		if !strings.Contains(ref.Reference, "PractitionerRole/") {
			continue
		}
		practitioner, organization := s.resolvePractitionerRole(doc, ref.Reference)

		var name, address, contact string
		if practitioner != nil {
			if len(practitioner.Name) > 0 {
				name = format.FormatName(&practitioner.Name[0], false)
			}
			address = formatAddressList(practitioner.Address)
			contact = format.FormatContactPoint(practitioner.Telecom)
		}
		var orgName, orgAddress, orgContact string
		if organization != nil {
			orgName = organization.Name
			orgAddress = formatAddressList(organization.Address)
			orgContact = format.FormatContactPoint(organization.Telecom)
		}

		blocks = append(blocks, []display.Data{
			{Title: "Author Name", Value: name},
			{Title: "Author Address", Value: address},
			{Title: "Author Contact", Value: contact},
			{Title: "Author Facility Name", Value: orgName},
			{Title: "Author Facility Address", Value: orgAddress},
			{Title: "Author Facility Contact", Value: orgContact},
		})
	}

	if len(blocks) == 0 {
		blocks = append(blocks, []display.Data{
			{Title: "Author Name"},
			{Title: "Author Address"},
			{Title: "Author Contact"},
			{Title: "Author Facility Name"},
			{Title: "Author Facility Address"},
			{Title: "Author Facility Contact"},
		})
	}
	return blocks
}
