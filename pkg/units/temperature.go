// Package units holds temperature conversions and the city/timezone
// conventions the settlement markets are defined in.
package units

// CelsiusToFahrenheit converts a temperature in degrees Celsius to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// FahrenheitToCelsius converts a temperature in degrees Fahrenheit to Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}
