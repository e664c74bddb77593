package pipeline

import (
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// State is a step of a partition run.
type State int

const (
	StateTriggered State = iota + 1
	StateAwaitingData
	StateQualityGated
	StateNormalizing
	StateLoading
	StateNotified
)

var stateNames = map[State]string{
	StateTriggered:    "TRIGGERED",
	StateAwaitingData: "AWAITING_DATA",
	StateQualityGated: "QUALITY_GATED",
	StateNormalizing:  "NORMALIZING",
	StateLoading:      "LOADING",
	StateNotified:     "NOTIFIED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the terminal outcome of a run. It stays ResultPending until the
// run reaches StateNotified.
type Result int

const (
	ResultPending Result = iota
	ResultSuccess
	ResultQualityFailed
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultQualityFailed:
		return "QUALITY_FAILED"
	case ResultError:
		return "ERROR"
	default:
		return "PENDING"
	}
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// event drives a transition out of the current state.
type event int

const (
	evTriggered event = iota + 1
	evDataCollected
	evGatePassed
	evGateFailed
	evNormalized
	evLoaded
	evStageFailed
)

type transitionKey struct {
	from State
	on   event
}

type transitionTarget struct {
	to     State
	result Result
}

var transitions = map[transitionKey]transitionTarget{
	{StateTriggered, evTriggered}:        {StateAwaitingData, ResultPending},
	{StateTriggered, evStageFailed}:      {StateNotified, ResultError},
	{StateAwaitingData, evDataCollected}: {StateQualityGated, ResultPending},
	{StateAwaitingData, evStageFailed}:   {StateNotified, ResultError},
	{StateQualityGated, evGatePassed}:    {StateNormalizing, ResultPending},
	{StateQualityGated, evGateFailed}:    {StateNotified, ResultQualityFailed},
	{StateNormalizing, evNormalized}:     {StateLoading, ResultPending},
	{StateNormalizing, evStageFailed}:    {StateNotified, ResultError},
	{StateLoading, evLoaded}:             {StateNotified, ResultSuccess},
	{StateLoading, evStageFailed}:        {StateNotified, ResultError},
}

// InvalidTransitionError reports an event the current state does not accept.
type InvalidTransitionError struct {
	From  State
	Event int
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("no transition from %s on event %d", e.From, e.Event)
}

// Run is the record of one partition run. The orchestrator owns the live
// value; callers only ever see copies.
type Run struct {
	ID          string                  `json:"run_id"`
	Partition   domain.PartitionKey     `json:"partition"`
	State       State                   `json:"state"`
	Result      Result                  `json:"result"`
	Path        []State                 `json:"path"`
	Gate        string                  `json:"gate,omitempty"`
	Artifacts   []domain.RawArtifactRef `json:"-"`
	Accepted    map[domain.Kind]int     `json:"accepted,omitempty"`
	Quarantined int                     `json:"quarantined"`
	RowsWritten map[string]int          `json:"rows_written,omitempty"`
	ErrorKind   string                  `json:"error_kind,omitempty"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at,omitzero"`
	err         error
}

func newRun(id string, p domain.PartitionKey, now time.Time) *Run {
	return &Run{
		ID:        id,
		Partition: p,
		State:     StateTriggered,
		Result:    ResultPending,
		Path:      []State{StateTriggered},
		StartedAt: now,
	}
}

// Err returns the error that ended the run, if any.
func (r Run) Err() error { return r.err }

// Done reports whether the run reached its terminal state.
func (r Run) Done() bool { return r.State == StateNotified }

func (r *Run) fire(e event) error {
	target, ok := transitions[transitionKey{r.State, e}]
	if !ok {
		return &InvalidTransitionError{From: r.State, Event: int(e)}
	}
	r.State = target.to
	r.Result = target.result
	r.Path = append(r.Path, target.to)
	return nil
}

// fail records err and moves the run to NOTIFIED(ERROR).
func (r *Run) fail(err error) error {
	r.err = err
	r.Error = err.Error()
	r.ErrorKind = ErrorKind(err)
	return r.fire(evStageFailed)
}

// snapshot copies the run so the copy shares no mutable state with r.
func (r *Run) snapshot() Run {
	c := *r
	c.Path = append([]State(nil), r.Path...)
	c.Artifacts = append([]domain.RawArtifactRef(nil), r.Artifacts...)
	if r.Accepted != nil {
		c.Accepted = make(map[domain.Kind]int, len(r.Accepted))
		for k, v := range r.Accepted {
			c.Accepted[k] = v
		}
	}
	if r.RowsWritten != nil {
		c.RowsWritten = make(map[string]int, len(r.RowsWritten))
		for k, v := range r.RowsWritten {
			c.RowsWritten[k] = v
		}
	}
	return c
}
