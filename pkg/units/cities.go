package units

import (
	"fmt"
	"time"
)

// City identifies one of the settlement cities.
type City string

const (
	CityNYC     City = "nyc"
	CityAustin  City = "austin"
	CityChicago City = "chicago"
	CityMiami   City = "miami"
)

// AllCities lists every configured settlement city in a stable order.
func AllCities() []City {
	return []City{CityAustin, CityChicago, CityMiami, CityNYC}
}

// cityInfo carries the static facts that never change for a city: the
// observing station, the event-ticker series, the coordinates used for
// forecast grids, and the standard-time offset the settlement day uses.
type cityInfo struct {
	Name        string
	StationID   string
	CLISite     string
	EventSeries string
	Lat         float64
	Lon         float64
	StdZone     *time.Location
}

// The measurement window for settlement is local standard time year-round,
// so each city gets a fixed offset rather than an IANA zone that would
// shift with daylight saving.
var (
	easternStd = time.FixedZone("EST", -5*60*60)
	centralStd = time.FixedZone("CST", -6*60*60)
)

var cities = map[City]cityInfo{
	CityNYC: {
		Name:        "New York",
		StationID:   "KNYC",
		CLISite:     "NYC",
		EventSeries: "KXHIGHNY",
		Lat:         40.7794,
		Lon:         -73.9692,
		StdZone:     easternStd,
	},
	CityAustin: {
		Name:        "Austin",
		StationID:   "KAUS",
		CLISite:     "AUS",
		EventSeries: "KXHIGHAUS",
		Lat:         30.1945,
		Lon:         -97.6699,
		StdZone:     centralStd,
	},
	CityChicago: {
		Name:        "Chicago",
		StationID:   "KMDW",
		CLISite:     "MDW",
		EventSeries: "KXHIGHCHI",
		Lat:         41.7842,
		Lon:         -87.7553,
		StdZone:     centralStd,
	},
	CityMiami: {
		Name:        "Miami",
		StationID:   "KMIA",
		CLISite:     "MIA",
		EventSeries: "KXHIGHMIA",
		Lat:         25.7881,
		Lon:         -80.3169,
		StdZone:     easternStd,
	},
}

// IsValid reports whether c is a configured city.
func (c City) IsValid() bool {
	_, ok := cities[c]
	return ok
}

// DisplayName returns the human-readable city name.
func (c City) DisplayName() string {
	return cities[c].Name
}

// StationID returns the observing station identifier for the city.
func (c City) StationID() string {
	return cities[c].StationID
}

// CLISite returns the site code used in the daily climate report.
func (c City) CLISite() string {
	return cities[c].CLISite
}

// EventSeries returns the exchange event-ticker series for the city's
// daily-high market.
func (c City) EventSeries() string {
	return cities[c].EventSeries
}

// Coordinates returns the latitude and longitude used for forecast grids.
func (c City) Coordinates() (lat, lon float64) {
	info := cities[c]
	return info.Lat, info.Lon
}

// StandardZone returns the city's fixed standard-time zone.
func (c City) StandardZone() *time.Location {
	return cities[c].StdZone
}

// LocalDate returns the calendar date of t in the city's standard time,
// formatted YYYY-MM-DD. target_date values are always in this frame.
func (c City) LocalDate(t time.Time) string {
	return t.In(cities[c].StdZone).Format("2006-01-02")
}

// NextLocalDate returns the date one day after t in the city's standard time.
func (c City) NextLocalDate(t time.Time) string {
	return t.In(cities[c].StdZone).AddDate(0, 0, 1).Format("2006-01-02")
}

// PrevLocalDate returns the date one day before t in the city's standard time.
func (c City) PrevLocalDate(t time.Time) string {
	return t.In(cities[c].StdZone).AddDate(0, 0, -1).Format("2006-01-02")
}

// LocalMidnight returns the next standard-time midnight strictly after t.
// Daily loss limits release at this boundary.
func (c City) LocalMidnight(t time.Time) time.Time {
	local := t.In(cities[c].StdZone)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cities[c].StdZone)
	return next.AddDate(0, 0, 1)
}

// ExchangeZone returns the standard-time zone the exchange operates in.
// Daily risk windows (loss caps, exposure) reset at midnight in this zone.
func ExchangeZone() *time.Location {
	return easternStd
}

// ExchangeDayStart returns the most recent midnight in the exchange's
// standard zone at or before t.
func ExchangeDayStart(t time.Time) time.Time {
	local := t.In(easternStd)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, easternStd)
}

// ParseCity converts a string to a City, rejecting unknown values.
func ParseCity(s string) (City, error) {
	c := City(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown city %q", s)
	}
	return c, nil
}
