package fhir

// Simplified FHIR R4 datatypes used by the display formatters. Resources
// themselves stay loosely typed (see Bundle) because field extraction runs
// path queries over the raw tree; these structs only shape the values the
// formatters consume.

// Period represents a FHIR Period
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Identifier represents a FHIR Identifier
type Identifier struct {
	Use    string           `json:"use,omitempty"` // usual, official, temp, secondary
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

// CodeableConcept represents a FHIR CodeableConcept
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Coding represents a FHIR Coding
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// HumanName represents a FHIR HumanName
type HumanName struct {
	Use    string   `json:"use,omitempty"` // usual, official, temp, nickname, anonymous, old, maiden
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

// ContactPoint represents a FHIR ContactPoint
type ContactPoint struct {
	System string `json:"system,omitempty"` // phone, fax, email, pager, url, sms, other
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"` // home, work, temp, old, mobile
	Rank   int    `json:"rank,omitempty"`
}

// Address represents a FHIR Address
type Address struct {
	Use        string   `json:"use,omitempty"` // home, work, temp, old, billing
	Type       string   `json:"type,omitempty"` // postal, physical, both
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
	Period     *Period  `json:"period,omitempty"`
}

// Quantity represents a FHIR Quantity
type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

// Reference represents a FHIR Reference
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Extension represents a FHIR Extension
type Extension struct {
	URL         string      `json:"url,omitempty"`
	ValueString string      `json:"valueString,omitempty"`
	ValueCode   string      `json:"valueCode,omitempty"`
	Extension   []Extension `json:"extension,omitempty"`
}

// PatientContact represents Patient.contact (emergency contacts and similar)
type PatientContact struct {
	Relationship []CodeableConcept `json:"relationship,omitempty"`
	Name         *HumanName        `json:"name,omitempty"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
	Address      *Address          `json:"address,omitempty"`
}

// PatientCommunication represents Patient.communication
type PatientCommunication struct {
	Language  CodeableConcept `json:"language"`
	Preferred bool            `json:"preferred,omitempty"`
}
