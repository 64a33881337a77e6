package services

import "github.com/dibbs-platform/ecr-viewer/internal/fhir"

// Typed views of the resources the extraction services rebind from the
// loosely typed bundle. Only the fields the formatters touch are declared.

type practitionerResource struct {
	Name       []fhir.HumanName    `json:"name,omitempty"`
	Address    []fhir.Address      `json:"address,omitempty"`
	Telecom    []fhir.ContactPoint `json:"telecom,omitempty"`
	Identifier []fhir.Identifier   `json:"identifier,omitempty"`
}

type organizationResource struct {
	ID         string              `json:"id,omitempty"`
	Name       string              `json:"name,omitempty"`
	Address    []fhir.Address      `json:"address,omitempty"`
	Telecom    []fhir.ContactPoint `json:"telecom,omitempty"`
	Identifier []fhir.Identifier   `json:"identifier,omitempty"`
}

type practitionerRoleResource struct {
	Practitioner *fhir.Reference `json:"practitioner,omitempty"`
	Organization *fhir.Reference `json:"organization,omitempty"`
}

type locationResource struct {
	Identifier []fhir.Identifier `json:"identifier,omitempty"`
	Address    *fhir.Address     `json:"address,omitempty"`
}
