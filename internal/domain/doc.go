// Package domain models hourly weather and air-quality observations from the
// Open-Meteo forecast and air-quality APIs.
//
// # Data Source
//
// An upstream ingestor service calls Open-Meteo once an hour and lands each
// response verbatim in the raw landing zone, one immutable JSON object per
// call. This package decodes those objects, decides whether a partition is
// fit to load, and converts payloads into warehouse rows.
//
// # Partition Layout
//
// Raw objects live under a Hive-style prefix keyed by local date and hour:
//
//	date=2025-10-05/hour=14/weather_20251005T140212Z.json
//	date=2025-10-05/hour=14/aqi_20251005T140213Z.json
//
// Dates and hours are wall-clock values in the pipeline's configured
// timezone (Asia/Bangkok by default), not UTC. Quarantined input is written
// under the same partition with a "bad/" suffix.
//
// # Payload Conventions
//
// Open-Meteo returns parallel arrays under "hourly":
//
//	{"latitude": 13.75, "longitude": 100.5,
//	 "hourly": {"time": ["2025-10-05T00:00", ...],
//	            "temperature_2m": [27.1, null, ...]},
//	 "_metadata": {"fetched_at": "2025-10-05T14:02:12Z"}}
//
// Times have minute precision and no offset; they are local to the requested
// timezone. Every variable array must have the same length as "time"; when
// one does not, no index can be trusted and the whole payload is
// quarantined. Null means the upstream model had no value for that hour.
//
// The ingestor adds "_metadata.fetched_at"; it becomes each row's
// ingested_at and decides which row wins when the same key is loaded twice.
//
// # Required Variables
//
// Each kind has one primary variable that must be present for a row to be
// useful downstream:
//
//	weather:     temperature_2m
//	air_quality: pm2_5
//
// Rows with a null primary are quarantined one by one; other nulls are kept.
// us_aqi and european_aqi are integer indices and are stored as integers.
//
// # Quality Gate
//
// A partition passes when it holds at least one object and every object is
// at least the configured minimum size (200 bytes by default). An error body
// from Open-Meteo is a few dozen bytes, so the floor rejects those without
// parsing them. See [EvaluateQuality].
package domain
