package climate

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSummaryDate extracts the calendar date a climate report covers
// from its "...CLIMATE SUMMARY FOR <MONTH> <DAY> <YEAR>..." header,
// formatted YYYY-MM-DD.
func ParseSummaryDate(text string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.ToUpper(scanner.Text())
		idx := strings.Index(line, "CLIMATE SUMMARY FOR")
		if idx < 0 {
			continue
		}
		rest := strings.Trim(line[idx+len("CLIMATE SUMMARY FOR"):], ". ")
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			continue
		}
		month := fields[0][:1] + strings.ToLower(fields[0][1:])
		raw := fmt.Sprintf("%s %s %s", month, fields[1], fields[2])
		t, err := time.Parse("January 2 2006", raw)
		if err != nil {
			continue
		}
		return t.Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("no climate summary date in report")
}

// ParseMaxTemperature extracts the official maximum from the
// TEMPERATURE (F) section. The first MAXIMUM row after the section
// header carries the observed value.
func ParseMaxTemperature(text string) (float64, error) {
	inTemperature := false
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.ToUpper(strings.TrimSpace(scanner.Text()))

		if strings.HasPrefix(line, "TEMPERATURE") {
			inTemperature = true
			continue
		}
		if !inTemperature {
			continue
		}
		// The next section (PRECIPITATION, SNOWFALL, ...) ends the search.
		if strings.HasPrefix(line, "PRECIPITATION") || strings.HasPrefix(line, "SNOWFALL") {
			break
		}
		if !strings.HasPrefix(line, "MAXIMUM") {
			continue
		}

		fields := strings.Fields(line)
		for _, field := range fields[1:] {
			if v, err := strconv.ParseFloat(field, 64); err == nil {
				return v, nil
			}
		}
		return 0, fmt.Errorf("maximum row has no numeric value: %q", line)
	}
	return 0, fmt.Errorf("no maximum temperature in report")
}
