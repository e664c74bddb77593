package warehouse

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Table is a staging table holding one kind's observations.
type Table struct {
	Schema string
	Name   string
	Kind   domain.Kind
}

var (
	WeatherHourly = Table{Schema: "staging", Name: "weather_hourly", Kind: domain.KindWeather}
	AQIHourly     = Table{Schema: "staging", Name: "aqi_hourly", Kind: domain.KindAirQuality}
)

// TableFor returns the staging table for kind.
func TableFor(kind domain.Kind) (Table, bool) {
	switch kind {
	case domain.KindWeather:
		return WeatherHourly, true
	case domain.KindAirQuality:
		return AQIHourly, true
	default:
		return Table{}, false
	}
}

// Tables lists every staging table.
func Tables() []Table {
	return []Table{WeatherHourly, AQIHourly}
}

func (t Table) String() string {
	return t.Schema + "." + t.Name
}

func (t Table) variables() []domain.Variable {
	s, _ := domain.SchemaFor(t.Kind)
	return s.Variables
}

func (t Table) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t)
	b.WriteString("  event_hour TIMESTAMP NOT NULL,\n")
	b.WriteString("  kind VARCHAR NOT NULL,\n")
	b.WriteString("  latitude DOUBLE NOT NULL,\n")
	b.WriteString("  longitude DOUBLE NOT NULL,\n")
	for _, v := range t.variables() {
		typ := "DOUBLE"
		if v.Integer {
			typ = "INTEGER"
		}
		fmt.Fprintf(&b, "  %s %s,\n", v.Name, typ)
	}
	b.WriteString("  source VARCHAR NOT NULL,\n")
	b.WriteString("  ingested_at TIMESTAMP NOT NULL\n")
	b.WriteString(")")
	return b.String()
}

func (t Table) columns() []string {
	cols := []string{"event_hour", "kind", "latitude", "longitude"}
	for _, v := range t.variables() {
		cols = append(cols, v.Name)
	}
	return append(cols, "source", "ingested_at")
}

func (t Table) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE event_hour = ? AND kind = ? AND latitude = ? AND longitude = ?", t)
}

func (t Table) insertSQL() string {
	cols := t.columns()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(cols, ", "), marks)
}

func (t Table) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY event_hour, latitude, longitude", strings.Join(t.columns(), ", "), t)
}
