// Package mockdata generates Open-Meteo-shaped hourly payloads and lands
// them in the raw partition layout. It backs the genmock command and the
// end-to-end tests.
package mockdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

const hoursPerDay = 24

// Options shape a generated payload. The zero value produces a clean
// Bangkok day in UTC.
type Options struct {
	Location  domain.Location
	TimeZone  *time.Location
	FetchedAt time.Time
	// NullPrimaryAt nulls the primary variable at that hour index. Negative
	// disables it.
	NullPrimaryAt int
	// Truncate drops the last value of the named variable so the payload is
	// misaligned.
	Truncate string
}

// DefaultOptions returns options with no defects.
func DefaultOptions() Options {
	return Options{
		Location:      domain.Location{City: "Bangkok", Latitude: 13.7563, Longitude: 100.5018},
		TimeZone:      time.UTC,
		NullPrimaryAt: -1,
	}
}

// Writer stores an object by name.
type Writer interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Payload returns a day of hourly readings for kind on date (YYYY-MM-DD),
// formatted the way the Open-Meteo forecast and air-quality APIs answer
// with a timezone parameter.
func Payload(kind domain.Kind, date string, opts Options) ([]byte, error) {
	schema, ok := domain.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	loc := opts.TimeZone
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	times := make([]string, hoursPerDay)
	for h := range times {
		times[h] = day.Add(time.Duration(h) * time.Hour).Format("2006-01-02T15:04")
	}
	hourly := map[string]any{"time": times}
	units := map[string]string{"time": "iso8601"}
	for _, v := range schema.Variables {
		values := make([]*float64, hoursPerDay)
		for h := range values {
			x := reading(v, h)
			values[h] = &x
		}
		if v.Name == schema.Primary && opts.NullPrimaryAt >= 0 && opts.NullPrimaryAt < hoursPerDay {
			values[opts.NullPrimaryAt] = nil
		}
		if v.Name == opts.Truncate {
			values = values[:len(values)-1]
		}
		hourly[v.Name] = values
		units[v.Name] = unitOf(v.Name)
	}

	_, offset := day.Zone()
	doc := map[string]any{
		"latitude":           opts.Location.Latitude,
		"longitude":          opts.Location.Longitude,
		"timezone":           loc.String(),
		"utc_offset_seconds": offset,
		"hourly_units":       units,
		"hourly":             hourly,
	}
	if !opts.FetchedAt.IsZero() {
		doc["_metadata"] = map[string]string{
			"fetched_at": opts.FetchedAt.UTC().Format(time.RFC3339),
			"data_type":  string(kind),
			"city":       opts.Location.City,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ArtifactName is the object name the ingestor would give a payload of kind
// fetched at fetchedAt for partition p.
func ArtifactName(p domain.PartitionKey, kind domain.Kind, fetchedAt time.Time) string {
	prefix := "weather"
	if kind == domain.KindAirQuality {
		prefix = "aqi"
	}
	return path.Join(p.String(), fmt.Sprintf("%s_%s.json", prefix, fetchedAt.UTC().Format("20060102T150405Z")))
}

// WritePartition lands one payload per kind under p and returns the object
// names in kind order.
func WritePartition(ctx context.Context, w Writer, p domain.PartitionKey, opts Options) ([]string, error) {
	fetchedAt := opts.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = p.Start(opts.TimeZone)
	}
	names := make([]string, 0, len(domain.Kinds()))
	for _, kind := range domain.Kinds() {
		data, err := Payload(kind, p.Date, opts)
		if err != nil {
			return nil, err
		}
		name := ArtifactName(p, kind, fetchedAt)
		if err := w.Put(ctx, name, data); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// reading is a smooth diurnal curve per variable, so that generated days
// look plausible on a chart and are identical between calls.
func reading(v domain.Variable, hour int) float64 {
	phase := math.Sin(2 * math.Pi * float64(hour-9) / hoursPerDay)
	var x float64
	switch v.Name {
	case "temperature_2m":
		x = 29 + 4*phase
	case "relative_humidity_2m":
		x = 70 - 15*phase
	case "precipitation":
		x = math.Max(0, 2*phase-1)
	case "wind_speed_10m":
		x = 8 + 3*phase
	case "wind_direction_10m":
		x = float64((180 + hour*7) % 360)
	case "pm10":
		x = 45 - 10*phase
	case "pm2_5":
		x = 28 - 8*phase
	case "carbon_monoxide":
		x = 400 - 80*phase
	case "nitrogen_dioxide":
		x = 22 - 6*phase
	case "sulphur_dioxide":
		x = 6 - phase
	case "ozone":
		x = 60 + 25*phase
	case "us_aqi":
		x = 85 - 20*phase
	case "european_aqi":
		x = 40 - 10*phase
	default:
		x = float64(hour)
	}
	if v.Integer {
		return math.Round(x)
	}
	return math.Round(x*10) / 10
}

func unitOf(name string) string {
	switch name {
	case "temperature_2m":
		return "°C"
	case "relative_humidity_2m":
		return "%"
	case "precipitation":
		return "mm"
	case "wind_speed_10m":
		return "km/h"
	case "wind_direction_10m":
		return "°"
	case "us_aqi":
		return "USAQI"
	case "european_aqi":
		return "EAQI"
	default:
		return "μg/m³"
	}
}
