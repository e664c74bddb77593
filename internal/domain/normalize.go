package domain

import (
	"fmt"
	"time"
)

// SourceOpenMeteo tags every observation produced from an Open-Meteo payload.
const SourceOpenMeteo = "open-meteo"

// WindowScope selects how much of a payload a run keeps.
type WindowScope string

const (
	// ScopeHour keeps only rows whose event hour equals the partition hour.
	ScopeHour WindowScope = "hour"
	// ScopeDay keeps every row on the partition's local date. Open-Meteo
	// returns whole days, so this backfills sibling hours in one run.
	ScopeDay WindowScope = "day"
)

func ParseWindowScope(s string) (WindowScope, error) {
	switch WindowScope(s) {
	case ScopeHour, ScopeDay:
		return WindowScope(s), nil
	default:
		return "", fmt.Errorf("invalid window scope %q: must be hour or day", s)
	}
}

// Window bounds the event hours a normalization run accepts.
type Window struct {
	Partition PartitionKey
	Scope     WindowScope
	resolver  PartitionResolver
}

func HourWindow(target PartitionKey, loc *time.Location) Window {
	return Window{Partition: target, Scope: ScopeHour, resolver: NewPartitionResolver(loc)}
}

func DayWindow(target PartitionKey, loc *time.Location) Window {
	return Window{Partition: target, Scope: ScopeDay, resolver: NewPartitionResolver(loc)}
}

// NewWindow builds a window for scope; unknown scopes fall back to the hour.
func NewWindow(target PartitionKey, scope WindowScope, loc *time.Location) Window {
	if scope == ScopeDay {
		return DayWindow(target, loc)
	}
	return HourWindow(target, loc)
}

func (w Window) Location() *time.Location {
	return w.resolver.Location()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	k := w.resolver.Resolve(t)
	if w.Scope == ScopeDay {
		return k.Date == w.Partition.Date
	}
	return k == w.Partition
}

// Normalize converts payload into observations for the target partition hour.
func Normalize(payload RawPayload, target PartitionKey, loc *time.Location) ([]Observation, []QuarantineRecord) {
	return NormalizeWindow(payload, HourWindow(target, loc))
}

// NormalizeWindow converts payload into one observation per timestamp in the
// window. A misaligned payload is quarantined whole and yields no rows. Rows
// whose primary variable is null, or with a value its column cannot hold, are
// quarantined individually. The result
// depends only on the arguments.
func NormalizeWindow(payload RawPayload, w Window) ([]Observation, []QuarantineRecord) {
	schema, ok := SchemaFor(payload.Kind)
	if !ok {
		err := &MalformedPayloadError{Kind: payload.Kind, Err: fmt.Errorf("unknown kind %q", payload.Kind)}
		return nil, []QuarantineRecord{
			NewQuarantineRecord(w.Partition, payload.Kind, ReasonMalformedPayload, err, marshalFragment(payload)),
		}
	}
	if err := payload.CheckAligned(); err != nil {
		return nil, []QuarantineRecord{
			NewQuarantineRecord(w.Partition, payload.Kind, ReasonArrayLengthMismatch, err, marshalFragment(payload)),
		}
	}

	loc := w.Location()
	var (
		accepted []Observation
		rejected []QuarantineRecord
	)
	for i, ts := range payload.Timestamps {
		if !w.Contains(ts) {
			continue
		}
		obs := Observation{
			EventHour:  TruncateHour(ts, loc),
			Kind:       payload.Kind,
			Latitude:   payload.Latitude,
			Longitude:  payload.Longitude,
			Variables:  make(map[string]*float64, len(schema.Variables)),
			Source:     SourceOpenMeteo,
			IngestedAt: payload.FetchedAt,
		}
		for _, v := range schema.Variables {
			obs.Variables[v.Name] = valueAt(payload.Variables[v.Name], i)
		}
		if obs.Variables[schema.Primary] == nil {
			err := &MissingRequiredFieldError{Field: schema.Primary, Index: i, Timestamp: ts}
			rejected = append(rejected,
				NewQuarantineRecord(w.Partition, payload.Kind, ReasonMissingRequiredField, err, marshalFragment(obs)))
			continue
		}
		if err := checkRange(schema, obs, i, ts); err != nil {
			rejected = append(rejected,
				NewQuarantineRecord(w.Partition, payload.Kind, ReasonValueOutOfRange, err, marshalFragment(obs)))
			continue
		}
		accepted = append(accepted, obs)
	}
	return accepted, rejected
}

// checkRange returns the first variable of obs outside its column's range.
func checkRange(schema Schema, obs Observation, i int, ts time.Time) error {
	for _, v := range schema.Variables {
		if x := obs.Variables[v.Name]; x != nil && !v.Fits(*x) {
			return &OutOfRangeError{Field: v.Name, Index: i, Timestamp: ts, Value: *x}
		}
	}
	return nil
}

// valueAt copies the i-th value so observations never alias the payload.
// Variables absent from the payload read as null.
func valueAt(values []*float64, i int) *float64 {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}
