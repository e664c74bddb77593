package domain

import (
	"encoding/json"
	"path"
	"strings"
	"time"
)

// Kind names a measurement family. Each kind has its own variable schema and
// warehouse table.
type Kind string

const (
	KindWeather    Kind = "weather"
	KindAirQuality Kind = "air_quality"
)

// Kinds returns every known kind in load order.
func Kinds() []Kind {
	return []Kind{KindWeather, KindAirQuality}
}

func (k Kind) Valid() bool {
	return k == KindWeather || k == KindAirQuality
}

// KindFromArtifactName infers the kind from an object's base name. The
// ingestor writes "weather_<ts>.json" and "aqi_<ts>.json"; older artifacts
// use "air_quality_<ts>.json".
func KindFromArtifactName(name string) (Kind, bool) {
	base := path.Base(name)
	switch {
	case strings.HasPrefix(base, "weather_"):
		return KindWeather, true
	case strings.HasPrefix(base, "aqi_"), strings.HasPrefix(base, "air_quality_"):
		return KindAirQuality, true
	default:
		return "", false
	}
}

// Location is the single configured point the pipeline ingests for.
type Location struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RawArtifactRef points at one immutable raw object in the landing zone.
type RawArtifactRef struct {
	Partition PartitionKey
	Name      string
	SizeBytes int64
	Kind      Kind
}

// RawPayload is a decoded Open-Meteo response. Timestamps and every variable
// sequence are index-aligned when the payload is well formed.
type RawPayload struct {
	Kind       Kind                  `json:"kind"`
	Latitude   float64               `json:"latitude"`
	Longitude  float64               `json:"longitude"`
	Timestamps []time.Time           `json:"time"`
	Variables  map[string][]*float64 `json:"variables"`
	FetchedAt  time.Time             `json:"fetched_at"`
}

// Observation is one normalized hourly row destined for the warehouse.
type Observation struct {
	EventHour  time.Time           `json:"event_hour"`
	Kind       Kind                `json:"kind"`
	Latitude   float64             `json:"latitude"`
	Longitude  float64             `json:"longitude"`
	Variables  map[string]*float64 `json:"variables"`
	Source     string              `json:"source"`
	IngestedAt time.Time           `json:"ingested_at"`
}

// ObservationKey is the warehouse merge key. EventHour is stored as Unix
// seconds so that equal instants in different zones compare equal.
type ObservationKey struct {
	EventHour int64
	Kind      Kind
	Latitude  float64
	Longitude float64
}

func (o Observation) Key() ObservationKey {
	return ObservationKey{
		EventHour: o.EventHour.Unix(),
		Kind:      o.Kind,
		Latitude:  o.Latitude,
		Longitude: o.Longitude,
	}
}

// QuarantineReason classifies why input was rejected.
type QuarantineReason string

const (
	ReasonArrayLengthMismatch  QuarantineReason = "array_length_mismatch"
	ReasonMissingRequiredField QuarantineReason = "missing_required_field"
	ReasonMalformedPayload     QuarantineReason = "malformed_payload"
	ReasonValueOutOfRange      QuarantineReason = "value_out_of_range"
)

// QuarantineRecord captures rejected input verbatim alongside the reason.
// DetectedAt is stamped by whoever persists the record.
type QuarantineRecord struct {
	Partition       PartitionKey     `json:"-"`
	PartitionName   string           `json:"partition"`
	Kind            Kind             `json:"kind"`
	Reason          QuarantineReason `json:"reason"`
	Detail          string           `json:"detail"`
	PayloadFragment json.RawMessage  `json:"payload_fragment"`
	DetectedAt      time.Time        `json:"detected_at"`
}

// NewQuarantineRecord builds a record for the given cause.
func NewQuarantineRecord(p PartitionKey, kind Kind, reason QuarantineReason, cause error, fragment json.RawMessage) QuarantineRecord {
	rec := QuarantineRecord{
		Partition:       p,
		PartitionName:   p.String(),
		Kind:            kind,
		Reason:          reason,
		PayloadFragment: fragment,
	}
	if cause != nil {
		rec.Detail = cause.Error()
	}
	return rec
}

// Fragment returns data as embeddable JSON. Invalid JSON is wrapped as a
// string so the enclosing record always marshals.
func Fragment(data []byte) json.RawMessage {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	b, _ := json.Marshal(string(data))
	return b
}

func marshalFragment(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(err.Error())
	}
	return b
}

// TriggerRequest asks the ingestor to fetch one hour of upstream data.
type TriggerRequest struct {
	Location   Location
	HourOffset int
}

// PartitionLoadedEvent is published after a partition is merged.
type PartitionLoadedEvent struct {
	RunID        string         `json:"run_id"`
	Partition    string         `json:"partition"`
	ArtifactRefs []string       `json:"artifact_refs"`
	RowsWritten  map[string]int `json:"rows_written"`
	IngestedAt   time.Time      `json:"ingested_at"`
}

// AlertSeverity distinguishes data gaps from pipeline faults.
type AlertSeverity string

const (
	SeverityWarning AlertSeverity = "warning"
	SeverityError   AlertSeverity = "error"
)

// Alert is an operator notification for a run that did not succeed.
type Alert struct {
	RunID     string
	Partition PartitionKey
	Severity  AlertSeverity
	Result    string
	ErrorKind string
	Message   string
}
