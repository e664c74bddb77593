package domain

import (
	"errors"
	"fmt"
	"time"
)

// NoDataError reports that a partition held no raw artifacts when the
// quality gate ran.
type NoDataError struct{}

func (e *NoDataError) Error() string {
	return "no raw artifacts in partition"
}

// UndersizedArtifactError reports the first artifact below the size floor.
type UndersizedArtifactError struct {
	Name         string
	SizeBytes    int64
	MinSizeBytes int64
}

func (e *UndersizedArtifactError) Error() string {
	return fmt.Sprintf("artifact %s is %d bytes, below minimum %d", e.Name, e.SizeBytes, e.MinSizeBytes)
}

// ArrayLengthMismatchError reports a variable sequence whose length differs
// from the timestamp sequence.
type ArrayLengthMismatchError struct {
	Variable string
	Got      int
	Want     int
}

func (e *ArrayLengthMismatchError) Error() string {
	return fmt.Sprintf("variable %s has %d values, want %d", e.Variable, e.Got, e.Want)
}

// MissingRequiredFieldError reports a row whose primary variable is null.
type MissingRequiredFieldError struct {
	Field     string
	Index     int
	Timestamp time.Time
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("required field %s is null at index %d (%s)", e.Field, e.Index, e.Timestamp.Format(time.RFC3339))
}

// OutOfRangeError reports a value its warehouse column cannot hold.
type OutOfRangeError struct {
	Field     string
	Index     int
	Timestamp time.Time
	Value     float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("field %s value %g out of range at index %d (%s)", e.Field, e.Value, e.Index, e.Timestamp.Format(time.RFC3339))
}

// MalformedPayloadError reports an artifact that could not be decoded.
type MalformedPayloadError struct {
	Kind Kind
	Err  error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Kind, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// Error kinds reported in alerts and metrics.
const (
	ErrorKindNoData              = "no_data"
	ErrorKindUndersized          = "undersized_artifact"
	ErrorKindArrayLengthMismatch = "array_length_mismatch"
	ErrorKindMissingField        = "missing_required_field"
	ErrorKindMalformedPayload    = "malformed_payload"
	ErrorKindOutOfRange          = "value_out_of_range"
	ErrorKindUnknown             = "unknown"
)

// ErrorKind classifies the domain errors in err's chain. Adapters that own
// their own error types classify those themselves and fall back to this.
func ErrorKind(err error) string {
	var (
		noData     *NoDataError
		undersized *UndersizedArtifactError
		mismatch   *ArrayLengthMismatchError
		missing    *MissingRequiredFieldError
		malformed  *MalformedPayloadError
		outOfRange *OutOfRangeError
	)
	switch {
	case errors.As(err, &noData):
		return ErrorKindNoData
	case errors.As(err, &undersized):
		return ErrorKindUndersized
	case errors.As(err, &mismatch):
		return ErrorKindArrayLengthMismatch
	case errors.As(err, &missing):
		return ErrorKindMissingField
	case errors.As(err, &malformed):
		return ErrorKindMalformedPayload
	case errors.As(err, &outOfRange):
		return ErrorKindOutOfRange
	default:
		return ErrorKindUnknown
	}
}
