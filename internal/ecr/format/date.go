package format

import (
	"regexp"
	"strings"
	"time"
)

// Layouts with an explicit zone are tried first so offset-carrying input is
// never parsed as wall-clock time.
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-0700",
	"01/02/2006 3:04 PM -07:00",
	"01/02/2006 3:04 PM MST",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 3:04 PM",
}

var (
	trailingZ      = regexp.MustCompile(`[0-9]Z$`)
	zoneAbbrev     = regexp.MustCompile(`^[A-Z]{3,}`)
	trailingOffset = regexp.MustCompile(`[+-]\d{1,2}:?\d{2}$`)
	numericStamp   = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})(\d{2})?(\d{2})?(\d{2})?([+-]\d{4})?$`)
)

// FormatDateTime renders a datetime string as "MM/DD/YYYY H:MM AM/PM ZZZ"
// in the given location. The zone abbreviation appears only when the input
// itself carried zone information; input without a time part renders as
// "MM/DD/YYYY". Compact numeric timestamps (YYYYMMDD[HHMMSS][+-ZZZZ]) are
// reformatted to ISO first. Unparseable input is returned unchanged and a
// blank input yields "".
func FormatDateTime(dateTime string, loc *time.Location) string {
	if dateTime == "" {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}

	t, ok := parseDateTime(dateTime, loc)
	if !ok {
		if iso := reformatNumericTimestamp(dateTime); iso != dateTime {
			return FormatDateTime(iso, loc)
		}
		return dateTime
	}

	if !strings.Contains(dateTime, ":") {
		if d := FormatDate(dateTime); d != "" {
			return d
		}
		return dateTime
	}

	formatted := t.In(loc).Format("01/02/2006 3:04 PM")
	if hasTimeZone(dateTime) {
		formatted += " " + t.In(loc).Format("MST")
	}
	return formatted
}

// FormatDate renders a date string as "MM/DD/YYYY". Rendering happens in
// UTC so a zoned timestamp keeps its calendar date. Blank or unparseable
// input yields "".
func FormatDate(date string) string {
	if date == "" {
		return ""
	}

	t, ok := parseDateTime(date, time.UTC)
	if !ok {
		if iso := reformatNumericTimestamp(date); iso != date {
			return FormatDate(iso)
		}
		return ""
	}
	return t.UTC().Format("01/02/2006")
}

// FormatStartEndDateTime renders a labeled "Start: .. / End: .." pair of
// datetimes, omitting either line when its input is blank or unparseable.
func FormatStartEndDateTime(start, end string, loc *time.Location) string {
	return formatStartEnd(start, end, func(s string) string {
		return FormatDateTime(s, loc)
	})
}

// FormatStartEndDate is FormatStartEndDateTime for bare dates.
func FormatStartEndDate(start, end string) string {
	return formatStartEnd(start, end, FormatDate)
}

func formatStartEnd(start, end string, fn func(string) string) string {
	var parts []string
	if s := fn(start); s != "" {
		parts = append(parts, "Start: "+s)
	}
	if e := fn(end); e != "" {
		parts = append(parts, "End: "+e)
	}
	return strings.Join(parts, "\n")
}

func parseDateTime(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// hasTimeZone reports whether the raw string carries zone information: a
// trailing Z, a trailing abbreviation like EDT or GMT-5, or a numeric
// offset suffix.
func hasTimeZone(s string) bool {
	if trailingZ.MatchString(s) {
		return true
	}
	fields := strings.Fields(s)
	if len(fields) > 0 && zoneAbbrev.MatchString(fields[len(fields)-1]) {
		return true
	}
	return trailingOffset.MatchString(s)
}

// reformatNumericTimestamp rewrites YYYYMMDD[HH][MM][SS][+-ZZZZ] into ISO
// form. Input that does not match comes back unchanged.
func reformatNumericTimestamp(s string) string {
	parts := numericStamp.FindStringSubmatch(s)
	if parts == nil {
		return s
	}

	out := parts[1] + "-" + parts[2] + "-" + parts[3]

	var timeParts []string
	for _, p := range parts[4:7] {
		if p != "" {
			timeParts = append(timeParts, p)
		}
	}
	if len(timeParts) > 0 {
		out += "T" + strings.Join(timeParts, ":")
	}
	if parts[7] != "" {
		out += parts[7]
	}
	return out
}
