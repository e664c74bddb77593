package domain

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var partitionPattern = regexp.MustCompile(`date=(\d{4}-\d{2}-\d{2})/hour=(\d{2})`)

// PartitionKey identifies one local hour of data. Two keys are equal iff
// date and hour are equal, so the struct is safe to use as a map key.
type PartitionKey struct {
	Date string // YYYY-MM-DD in the pipeline's local timezone
	Hour int    // 0..23
}

// NewPartitionKey validates date and hour and returns the key.
func NewPartitionKey(date string, hour int) (PartitionKey, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return PartitionKey{}, fmt.Errorf("invalid partition date %q: %w", date, err)
	}
	if hour < 0 || hour > 23 {
		return PartitionKey{}, fmt.Errorf("invalid partition hour %d: must be 0..23", hour)
	}
	return PartitionKey{Date: date, Hour: hour}, nil
}

// ParsePartitionKey extracts a key from any string containing the canonical
// "date=YYYY-MM-DD/hour=HH" segment, such as an object name.
func ParsePartitionKey(s string) (PartitionKey, error) {
	m := partitionPattern.FindStringSubmatch(s)
	if m == nil {
		return PartitionKey{}, fmt.Errorf("no partition segment in %q", s)
	}
	hour, err := strconv.Atoi(m[2])
	if err != nil {
		return PartitionKey{}, fmt.Errorf("parse partition hour %q: %w", m[2], err)
	}
	return NewPartitionKey(m[1], hour)
}

// String renders the canonical form "date=YYYY-MM-DD/hour=HH".
func (k PartitionKey) String() string {
	return fmt.Sprintf("date=%s/hour=%02d", k.Date, k.Hour)
}

func (k PartitionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Prefix is the object-store prefix holding the partition's artifacts.
func (k PartitionKey) Prefix() string {
	return k.String() + "/"
}

// Compare orders keys by date then hour.
func (k PartitionKey) Compare(other PartitionKey) int {
	if c := strings.Compare(k.Date, other.Date); c != 0 {
		return c
	}
	return cmp.Compare(k.Hour, other.Hour)
}

func (k PartitionKey) Before(other PartitionKey) bool {
	return k.Compare(other) < 0
}

// Start returns the first instant of the partition hour in loc.
func (k PartitionKey) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, k.Date, loc)
	if err != nil {
		return time.Time{}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), k.Hour, 0, 0, 0, loc)
}

// PartitionResolver maps instants to partition keys in a fixed timezone.
// The zero value resolves in UTC.
type PartitionResolver struct {
	loc *time.Location
}

func NewPartitionResolver(loc *time.Location) PartitionResolver {
	return PartitionResolver{loc: loc}
}

func (r PartitionResolver) Location() *time.Location {
	if r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// Resolve returns the partition containing t, truncated to the local hour.
func (r PartitionResolver) Resolve(t time.Time) PartitionKey {
	lt := t.In(r.Location())
	return PartitionKey{Date: lt.Format(dateLayout), Hour: lt.Hour()}
}

// ResolveOffset resolves t shifted by hours, used for backfilling relative
// to the current hour.
func (r PartitionResolver) ResolveOffset(t time.Time, hours int) PartitionKey {
	return r.Resolve(t.Add(time.Duration(hours) * time.Hour))
}

// TruncateHour returns t at the start of its local hour in loc. It is used
// instead of time.Truncate, which rounds in absolute time and is wrong for
// zones with fractional-hour offsets.
func TruncateHour(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
}
