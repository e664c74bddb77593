package domain

import "fmt"

// Outcome is the quality gate verdict.
type Outcome int

const (
	OutcomePass Outcome = iota + 1
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "PASS"
	case OutcomeFail:
		return "FAIL"
	default:
		return "UNDECIDED"
	}
}

// FailReason explains a failing Decision.
type FailReason string

const (
	FailNoData     FailReason = "no_data"
	FailUndersized FailReason = "undersized"
)

// Decision is the result of EvaluateQuality. Artifact is set only for
// FailUndersized.
type Decision struct {
	Outcome      Outcome
	Reason       FailReason
	Artifact     string
	SizeBytes    int64
	MinSizeBytes int64
}

func (d Decision) Passed() bool {
	return d.Outcome == OutcomePass
}

func (d Decision) String() string {
	switch {
	case d.Outcome == OutcomePass:
		return "PASS"
	case d.Reason == FailUndersized:
		return fmt.Sprintf("FAIL(undersized: %s)", d.Artifact)
	case d.Outcome == OutcomeFail:
		return fmt.Sprintf("FAIL(%s)", d.Reason)
	default:
		return d.Outcome.String()
	}
}

// Err returns the typed error behind a failing decision, or nil.
func (d Decision) Err() error {
	if d.Outcome != OutcomeFail {
		return nil
	}
	switch d.Reason {
	case FailNoData:
		return &NoDataError{}
	case FailUndersized:
		return &UndersizedArtifactError{Name: d.Artifact, SizeBytes: d.SizeBytes, MinSizeBytes: d.MinSizeBytes}
	default:
		return fmt.Errorf("quality gate failed: %s", d.Reason)
	}
}

// EvaluateQuality passes iff there is at least one artifact and every
// artifact is at least minSizeBytes. The first undersized artifact in input
// order is reported.
func EvaluateQuality(artifacts []RawArtifactRef, minSizeBytes int64) Decision {
	if len(artifacts) == 0 {
		return Decision{Outcome: OutcomeFail, Reason: FailNoData, MinSizeBytes: minSizeBytes}
	}
	for _, a := range artifacts {
		if a.SizeBytes < minSizeBytes {
			return Decision{
				Outcome:      OutcomeFail,
				Reason:       FailUndersized,
				Artifact:     a.Name,
				SizeBytes:    a.SizeBytes,
				MinSizeBytes: minSizeBytes,
			}
		}
	}
	return Decision{Outcome: OutcomePass, MinSizeBytes: minSizeBytes}
}
