package climate

import "testing"

const sampleReport = `
000
CDUS41 KOKX 182045
CLINYC

CLIMATE REPORT
NATIONAL WEATHER SERVICE NEW YORK, NY
345 PM EST WED FEB 18 2026

...................................

...THE CENTRAL PARK NY CLIMATE SUMMARY FOR FEBRUARY 18 2026...
CLIMATE NORMAL PERIOD 1991 TO 2020
CLIMATE RECORD PERIOD 1869 TO 2026

WEATHER ITEM   OBSERVED TIME   RECORD YEAR NORMAL DEPARTURE LAST
                      VALUE   (LST)  VALUE       VALUE  FROM      YEAR
                                                        NORMAL
...................................................................
TEMPERATURE (F)
 TODAY
  MAXIMUM         53   239 PM  68    2018  42     11       45
  MINIMUM         38   647 AM  2     1979  29      9       33
  AVERAGE         46                       36     10       39

PRECIPITATION (IN)
  TODAY            0.00          2.01 1881   0.09 -0.09     0.00
`

const yesterdayReport = `
CLIMATE REPORT
NATIONAL WEATHER SERVICE AUSTIN, TX

...THE AUSTIN BERGSTROM CLIMATE SUMMARY FOR FEBRUARY 17 2026...

TEMPERATURE (F)
 YESTERDAY
  MAXIMUM         71   312 PM  89    2017  64      7       68
  MINIMUM         44   710 AM  18    2021  41      3       50

PRECIPITATION (IN)
  YESTERDAY        0.00
`

func TestParseSummaryDate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"today report", sampleReport, "2026-02-18"},
		{"yesterday report", yesterdayReport, "2026-02-17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSummaryDate(tt.text)
			if err != nil {
				t.Fatalf("ParseSummaryDate failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseSummaryDate_Missing(t *testing.T) {
	if _, err := ParseSummaryDate("no header here"); err == nil {
		t.Error("Expected error for report without summary header")
	}
}

func TestParseMaxTemperature(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{"today report", sampleReport, 53},
		{"yesterday report", yesterdayReport, 71},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMaxTemperature(tt.text)
			if err != nil {
				t.Fatalf("ParseMaxTemperature failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %.0f, got %.0f", tt.expected, got)
			}
		})
	}
}

func TestParseMaxTemperature_IgnoresPrecipitationSection(t *testing.T) {
	// A report with no temperature maximum must not pick numbers out of
	// later sections.
	text := `
...THE CENTRAL PARK NY CLIMATE SUMMARY FOR FEBRUARY 18 2026...

TEMPERATURE (F)
 TODAY
  AVERAGE         46

PRECIPITATION (IN)
  MAXIMUM          0.50
`
	if _, err := ParseMaxTemperature(text); err == nil {
		t.Error("Expected error when temperature section has no maximum")
	}
}
