package domain

import "math"

// Variable is one hourly measurement column.
type Variable struct {
	Name    string
	Integer bool
}

// Fits reports whether x can be stored in the variable's column: any finite
// number for DOUBLE columns, a value that rounds into int32 for INTEGER ones.
func (v Variable) Fits(x float64) bool {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return false
	}
	if !v.Integer {
		return true
	}
	r := math.Round(x)
	return r >= math.MinInt32 && r <= math.MaxInt32
}

// Schema is the variable set of one kind. Primary must be non-null for a row
// to be accepted.
type Schema struct {
	Kind      Kind
	Primary   string
	Variables []Variable
}

var schemas = map[Kind]Schema{
	KindWeather: {
		Kind:    KindWeather,
		Primary: "temperature_2m",
		Variables: []Variable{
			{Name: "temperature_2m"},
			{Name: "relative_humidity_2m"},
			{Name: "precipitation"},
			{Name: "wind_speed_10m"},
			{Name: "wind_direction_10m"},
		},
	},
	KindAirQuality: {
		Kind:    KindAirQuality,
		Primary: "pm2_5",
		Variables: []Variable{
			{Name: "pm10"},
			{Name: "pm2_5"},
			{Name: "carbon_monoxide"},
			{Name: "nitrogen_dioxide"},
			{Name: "sulphur_dioxide"},
			{Name: "ozone"},
			{Name: "us_aqi", Integer: true},
			{Name: "european_aqi", Integer: true},
		},
	},
}

// SchemaFor returns the schema registered for kind.
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}
