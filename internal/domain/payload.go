package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema describes the subset of an Open-Meteo hourly response the
// pipeline relies on. Unknown top-level members (units, elevation) pass.
const envelopeSchema = `{
  "type": "object",
  "required": ["latitude", "longitude", "hourly"],
  "properties": {
    "latitude": {"type": "number"},
    "longitude": {"type": "number"},
    "hourly": {
      "type": "object",
      "required": ["time"],
      "properties": {
        "time": {"type": "array", "items": {"type": "string"}}
      },
      "additionalProperties": {"type": "array", "items": {"type": ["number", "null"]}}
    },
    "_metadata": {
      "type": "object",
      "properties": {
        "fetched_at": {"type": "string"}
      }
    }
  }
}`

var compiledEnvelope = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
})

var validate = validator.New()

// timestampLayouts are tried in order. Open-Meteo emits local wall-clock
// minutes when a timezone is requested.
var timestampLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

type envelope struct {
	Latitude  *float64                   `json:"latitude" validate:"required,latitude"`
	Longitude *float64                   `json:"longitude" validate:"required,longitude"`
	Hourly    map[string]json.RawMessage `json:"hourly" validate:"required"`
	Metadata  *envelopeMetadata          `json:"_metadata"`
}

type envelopeMetadata struct {
	FetchedAt string `json:"fetched_at"`
	DataType  string `json:"data_type"`
}

// DecodePayload parses an Open-Meteo artifact of the given kind. Wall-clock
// timestamps without an offset are interpreted in loc. Any structural problem
// yields a *MalformedPayloadError; array alignment is left to the normalizer
// so that it can quarantine the payload with the right reason.
func DecodePayload(kind Kind, data []byte, loc *time.Location) (RawPayload, error) {
	if !kind.Valid() {
		return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: fmt.Errorf("unknown kind %q", kind)}
	}
	if loc == nil {
		loc = time.UTC
	}

	schema, err := compiledEnvelope()
	if err != nil {
		return RawPayload{}, fmt.Errorf("compile payload schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: errors.New(strings.Join(msgs, "; "))}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: err}
	}
	if err := validate.Struct(env); err != nil {
		return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: err}
	}

	var rawTimes []string
	if err := json.Unmarshal(env.Hourly["time"], &rawTimes); err != nil {
		return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: fmt.Errorf("decode time: %w", err)}
	}
	timestamps := make([]time.Time, len(rawTimes))
	for i, s := range rawTimes {
		ts, err := parseTimestamp(s, loc)
		if err != nil {
			return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: fmt.Errorf("time[%d]: %w", i, err)}
		}
		timestamps[i] = ts
	}

	variables := make(map[string][]*float64, len(env.Hourly)-1)
	for name, raw := range env.Hourly {
		if name == "time" {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: fmt.Errorf("decode %s: %w", name, err)}
		}
		variables[name] = values
	}

	payload := RawPayload{
		Kind:       kind,
		Latitude:   *env.Latitude,
		Longitude:  *env.Longitude,
		Timestamps: timestamps,
		Variables:  variables,
	}
	payload.FetchedAt = fetchClock.Now().UTC()
	if env.Metadata != nil && env.Metadata.FetchedAt != "" {
		fetched, err := time.Parse(time.RFC3339Nano, env.Metadata.FetchedAt)
		if err != nil {
			return RawPayload{}, &MalformedPayloadError{Kind: kind, Err: fmt.Errorf("decode fetched_at: %w", err)}
		}
		payload.FetchedAt = fetched.UTC()
	}
	return payload, nil
}

// CheckAligned returns an *ArrayLengthMismatchError for the first variable,
// in name order, whose length differs from the timestamps.
func (p RawPayload) CheckAligned() error {
	names := make([]string, 0, len(p.Variables))
	for name := range p.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if got := len(p.Variables[name]); got != len(p.Timestamps) {
			return &ArrayLengthMismatchError{Variable: name, Got: got, Want: len(p.Timestamps)}
		}
	}
	return nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
