// Package format holds the pure string, name, address, and contact
// transforms used when rendering extracted clinical fields. Everything here
// degrades gracefully: malformed input comes back unchanged or empty, never
// as an error.
package format

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
)

var (
	kebabSpaces  = regexp.MustCompile(`\s+`)
	kebabInvalid = regexp.MustCompile(`[^a-z0-9\-]`)
	titleWord    = regexp.MustCompile(`\w\S*`)
)

// ToKebabCase lowercases the input, replaces runs of whitespace with
// hyphens, and strips everything that is not a letter, digit, or hyphen.
func ToKebabCase(input string) string {
	result := strings.ToLower(input)
	result = kebabSpaces.ReplaceAllString(result, "-")
	return kebabInvalid.ReplaceAllString(result, "")
}

// ToSentenceCase uppercases the first character and lowercases the rest.
// Empty input stays empty.
func ToSentenceCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(unicode.ToUpper(r[0])) + strings.ToLower(string(r[1:]))
}

// ToTitleCase uppercases the first character of each word and lowercases
// the rest of the word. Empty input stays empty.
func ToTitleCase(s string) string {
	if s == "" {
		return s
	}
	return titleWord.ReplaceAllStringFunc(s, func(word string) string {
		r := []rune(word)
		return string(unicode.ToUpper(r[0])) + strings.ToLower(string(r[1:]))
	})
}

// ExtractNumbersAndPeriods pulls the first run of digits and periods that
// is immediately followed by a letter out of each input, with leading and
// trailing periods trimmed. Inputs with no such run map to "".
// "#Result.1.2.840.114350.Comp2" yields "1.2.840.114350".
func ExtractNumbersAndPeriods(inputs []string) []string {
	out := make([]string, len(inputs))
	for i, value := range inputs {
		out[i] = numbersAndPeriods(value)
	}
	return out
}

func numbersAndPeriods(value string) string {
	runes := []rune(value)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && !unicode.IsDigit(runes[i]) {
			continue
		}
		j := i
		for j < len(runes) && (runes[j] == '.' || unicode.IsDigit(runes[j])) {
			j++
		}
		if j < len(runes) && unicode.IsLetter(runes[j]) {
			return strings.Trim(string(runes[i:j]), ".")
		}
		i = j
	}
	return ""
}

var phoneDigits = regexp.MustCompile(`\D`)

// FormatPhoneNumber normalizes a phone number to XXX-XXX-XXXX. Blank input
// yields "", anything that does not reduce to ten digits yields
// "Invalid Number".
func FormatPhoneNumber(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return ""
	}
	digits := phoneDigits.ReplaceAllString(strings.Replace(phone, "+1", "", 1), "")
	if len(digits) != 10 {
		return "Invalid Number"
	}
	return digits[0:3] + "-" + digits[3:6] + "-" + digits[6:10]
}

// FormatName renders a HumanName as "<Use:> <Prefix> <Given> <Family> <Suffix>".
// The use label is included only when withUse is set.
func FormatName(name *fhir.HumanName, withUse bool) string {
	if name == nil {
		return ""
	}

	var segments []string
	if withUse && name.Use != "" {
		segments = append(segments, ToSentenceCase(name.Use)+":")
	}
	for _, p := range name.Prefix {
		segments = append(segments, ToTitleCase(p))
	}
	for _, g := range name.Given {
		segments = append(segments, ToTitleCase(g))
	}
	segments = append(segments, ToTitleCase(name.Family))
	segments = append(segments, name.Suffix...)

	return strings.Join(compact(segments), " ")
}

// AddressOptions controls optional parts of FormatAddress output.
type AddressOptions struct {
	IncludeUse    bool
	IncludePeriod bool
}

// FormatAddress renders an address as newline-separated lines: optional use
// label, street lines, "City, ST", "Zip, Country", and an optional
// "Dates: start - end" line from the address period.
func FormatAddress(addr *fhir.Address, opts AddressOptions) string {
	if addr == nil {
		return ""
	}

	var lines []string
	if opts.IncludeUse && addr.Use != "" {
		lines = append(lines, ToSentenceCase(addr.Use)+":")
	}

	var street []string
	for _, l := range addr.Line {
		street = append(street, ToTitleCase(l))
	}
	lines = append(lines, strings.Join(compact(street), "\n"))
	lines = append(lines, strings.Join(compact([]string{ToTitleCase(addr.City), addr.State}), ", "))
	lines = append(lines, strings.Join(compact([]string{addr.PostalCode, addr.Country}), ", "))

	if opts.IncludePeriod && addr.Period != nil {
		start := FormatDate(addr.Period.Start)
		end := FormatDate(addr.Period.End)
		if start != "" || end != "" {
			if start == "" {
				start = "Unknown"
			}
			if end == "" {
				end = "Present"
			}
			lines = append(lines, "Dates: "+start+" - "+end)
		}
	}

	return strings.Join(compact(lines), "\n")
}

var contactSortOrder = []string{"phone", "fax", "sms", "pager", "url", "email", "other", ""}

func contactRank(system string) int {
	for i, s := range contactSortOrder {
		if s == system {
			return i
		}
	}
	return len(contactSortOrder)
}

// FormatContactPoint renders contact points in display order, one per line.
// Phone, fax, sms, and pager values are run through FormatPhoneNumber and
// emails are lowercased.
func FormatContactPoint(points []fhir.ContactPoint) string {
	if len(points) == 0 {
		return ""
	}

	sorted := make([]fhir.ContactPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return contactRank(sorted[i].System) < contactRank(sorted[j].System)
	})

	var out []string
	for _, cp := range sorted {
		if cp.Value == "" {
			continue
		}
		switch cp.System {
		case "phone":
			line := strings.Join(compact([]string{ToSentenceCase(cp.Use), FormatPhoneNumber(cp.Value)}), ": ")
			out = append(out, line)
		case "email":
			out = append(out, strings.ToLower(cp.Value))
		default:
			value := cp.Value
			switch cp.System {
			case "fax", "pager", "sms":
				value = FormatPhoneNumber(cp.Value)
			}
			line := strings.TrimSpace(strings.Join([]string{ToSentenceCase(cp.Use), ToSentenceCase(cp.System) + ":", value}, " "))
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Vitals is the rendered height/weight/BMI triple.
type Vitals struct {
	Height string
	Weight string
	BMI    string
}

// FormatVitals renders vital sign measurements with display units. UCUM
// bracket units are mapped to their customary abbreviations.
func FormatVitals(heightAmount, heightUnit, weightAmount, weightUnit, bmiAmount, bmiUnit string) Vitals {
	var v Vitals

	if heightAmount != "" && heightUnit != "" {
		unit := ""
		switch heightUnit {
		case "[in_i]":
			unit = "in"
		case "cm":
			unit = "cm"
		}
		v.Height = strings.TrimSpace(heightAmount + " " + unit)
	}

	if weightAmount != "" && weightUnit != "" {
		unit := ""
		switch weightUnit {
		case "[lb_av]":
			unit = "lb"
		case "kg":
			unit = "kg"
		}
		v.Weight = strings.TrimSpace(weightAmount + " " + unit)
	}

	if bmiAmount != "" && bmiUnit != "" {
		v.BMI = bmiAmount + " " + bmiUnit
	}

	return v
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
