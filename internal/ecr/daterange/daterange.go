// Package daterange converts the library view's date filter options into
// concrete time ranges for the list query.
package daterange

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/format"
)

// Option is one of the fixed relative date-range filters.
type Option string

const (
	Last24Hours Option = "last-24-hours"
	Last7Days   Option = "last-7-days"
	Last30Days  Option = "last-30-days"
	Last3Months Option = "last-3-months"
	Last6Months Option = "last-6-months"
	LastYear    Option = "last-year"
)

// Custom selects an explicit "YYYY-MM-DD|YYYY-MM-DD" range from the dates
// parameter instead of a relative option.
const Custom = "custom"

// Options lists the relative filters in display order.
var Options = []Option{Last24Hours, Last7Days, Last30Days, Last3Months, Last6Months, LastYear}

// ErrInvalidFilter rejects unrecognized date filter options.
var ErrInvalidFilter = errors.New("invalid filter option")

var customDatesPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\|\d{4}-\d{2}-\d{2}$`)

// Period is a closed time range used to filter by creation date.
type Period struct {
	Start time.Time
	End   time.Time
}

// Label renders an option for display, "last-7-days" as "Last 7 days".
func Label(o Option) string {
	return format.ToSentenceCase(strings.ReplaceAll(string(o), "-", " "))
}

// DefaultOption is the range applied when no filter is given: the last 24
// hours in production, the last year everywhere else.
func DefaultOption(env string) Option {
	if env == "production" {
		return Last24Hours
	}
	return LastYear
}

// FromOption computes the period ending at end for a relative option.
// Day-based ranges start at local midnight except the 24-hour window, which
// is a plain clock subtraction. Month-based ranges subtract calendar months
// with the day clamped to the target month's end, so a year before
// 2024-02-29 is 2023-02-28, not March 1st.
func FromOption(option string, end time.Time) (Period, error) {
	switch Option(option) {
	case Last24Hours:
		return Period{Start: end.AddDate(0, 0, -1), End: end}, nil
	case Last7Days:
		return Period{Start: startOfDay(end.AddDate(0, 0, -7)), End: end}, nil
	case Last30Days:
		return Period{Start: startOfDay(end.AddDate(0, 0, -30)), End: end}, nil
	case Last3Months:
		return Period{Start: monthsAgo(end, 3), End: end}, nil
	case Last6Months:
		return Period{Start: monthsAgo(end, 6), End: end}, nil
	case LastYear:
		return Period{Start: monthsAgo(end, 12), End: end}, nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidFilter, option)
	}
}

// ParseCustom parses a "YYYY-MM-DD|YYYY-MM-DD" pair into a period spanning
// the start of the first day through the end of the second, in loc.
func ParseCustom(dates string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.Local
	}
	if !customDatesPattern.MatchString(dates) {
		return Period{}, fmt.Errorf("%w: custom dates %q", ErrInvalidFilter, dates)
	}

	parts := strings.SplitN(dates, "|", 2)
	start, err := time.ParseInLocation("2006-01-02", parts[0], loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: custom dates %q", ErrInvalidFilter, dates)
	}
	end, err := time.ParseInLocation("2006-01-02", parts[1], loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: custom dates %q", ErrInvalidFilter, dates)
	}

	return Period{Start: start, End: endOfDay(end)}, nil
}

// IsValidParams reports whether the dateRange and dates parameters name a
// usable filter.
func IsValidParams(dateRange, dates string) bool {
	if dateRange == Custom {
		return customDatesPattern.MatchString(dates)
	}
	for _, o := range Options {
		if string(o) == dateRange {
			return true
		}
	}
	return false
}

// FromParams resolves request parameters to a period, falling back to the
// environment default when the parameters are missing or invalid.
func FromParams(dateRange, dates, env string, now time.Time, loc *time.Location) Period {
	fallback := DefaultOption(env)
	if dateRange == "" {
		dateRange = string(fallback)
	}

	if !IsValidParams(dateRange, dates) {
		p, _ := FromOption(string(fallback), now)
		return p
	}
	if dateRange == Custom {
		p, err := ParseCustom(dates, loc)
		if err == nil {
			return p
		}
		p, _ = FromOption(string(fallback), now)
		return p
	}

	p, _ := FromOption(dateRange, now)
	return p
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// monthsAgo subtracts calendar months at local midnight, clamping the day
// to the shorter target month instead of rolling into the next one.
func monthsAgo(ref time.Time, months int) time.Time {
	y, m, d := ref.Date()
	firstOfTarget := time.Date(y, m-time.Month(months), 1, 0, 0, 0, 0, ref.Location())

	lastDay := time.Date(firstOfTarget.Year(), firstOfTarget.Month()+1, 0, 0, 0, 0, 0, ref.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, ref.Location())
}
