package format

import (
	"testing"
	"time"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}
	return loc
}

// TestFormatDateTime tests datetime rendering across the supported input
// shapes.
func TestFormatDateTime(t *testing.T) {
	loc := newYork(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"UTC instant renders in local zone with abbreviation", "2022-10-11T19:29:00Z", "10/11/2022 3:29 PM EDT"},
		{"Offset input keeps abbreviation", "2022-10-11T19:29:00-04:00", "10/11/2022 7:29 PM EDT"},
		{"No zone renders without abbreviation", "2022-10-11T19:29:00", "10/11/2022 7:29 PM"},
		{"Bare date", "2022-10-11", "10/11/2022"},
		{"Compact numeric date", "20221011", "10/11/2022"},
		{"Compact numeric datetime with offset", "20221011192900-0400", "10/11/2022 7:29 PM EDT"},
		{"Unparseable returned unchanged", "not a date", "not a date"},
		{"Blank", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDateTime(tt.in, loc); got != tt.want {
				t.Errorf("FormatDateTime(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestFormatDate tests calendar-date rendering.
func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2022-10-11", "10/11/2022"},
		{"20221011", "10/11/2022"},
		{"2022-10-11T19:29:00Z", "10/11/2022"},
		{"garbage", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FormatDate(tt.in); got != tt.want {
			t.Errorf("FormatDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestFormatStartEndDateTime tests the labeled start/end pair.
func TestFormatStartEndDateTime(t *testing.T) {
	loc := newYork(t)

	got := FormatStartEndDateTime("2022-10-11T19:29:00Z", "2022-10-12T19:29:00Z", loc)
	want := "Start: 10/11/2022 3:29 PM EDT\nEnd: 10/12/2022 3:29 PM EDT"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	got = FormatStartEndDateTime("2022-10-11T19:29:00Z", "", loc)
	want = "Start: 10/11/2022 3:29 PM EDT"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if got := FormatStartEndDateTime("", "", loc); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}

// TestFormatStartEndDate tests the bare-date variant.
func TestFormatStartEndDate(t *testing.T) {
	got := FormatStartEndDate("2022-10-11", "2022-10-12")
	want := "Start: 10/11/2022\nEnd: 10/12/2022"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

// TestReformatNumericTimestamp tests ISO rewriting of compact stamps.
func TestReformatNumericTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20240101", "2024-01-01"},
		{"202401011234", "2024-01-01T12:34"},
		{"20240101123456", "2024-01-01T12:34:56"},
		{"20240101123456-0400", "2024-01-01T12:34:56-0400"},
		{"not numeric", "not numeric"},
	}

	for _, tt := range tests {
		if got := reformatNumericTimestamp(tt.in); got != tt.want {
			t.Errorf("reformatNumericTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
