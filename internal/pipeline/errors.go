package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/warehouse"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("orchestrator closed")

// TimeoutError reports that the artifact poll gave up before enough
// artifacts landed. It is logged, never returned from a run: the gate then
// sees whatever was listed last.
type TimeoutError struct {
	Partition domain.PartitionKey
	Timeout   time.Duration
	Seen      int
	Want      int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("partition %s: %d of %d artifacts after %s", e.Partition, e.Seen, e.Want, e.Timeout)
}

// ArtifactReadError wraps a failed fetch of one raw artifact.
type ArtifactReadError struct {
	Name string
	Err  error
}

func (e *ArtifactReadError) Error() string {
	return fmt.Sprintf("read artifact %s: %v", e.Name, e.Err)
}

func (e *ArtifactReadError) Unwrap() error { return e.Err }

// Error kinds owned by the orchestrator and its collaborators.
const (
	ErrorKindPollTimeout    = "poll_timeout"
	ErrorKindArtifactRead   = "artifact_read"
	ErrorKindWarehouseWrite = "warehouse_write"
	ErrorKindCanceled       = "canceled"
)

// ErrorKind labels err for alerts and metrics.
func ErrorKind(err error) string {
	var (
		timeout *TimeoutError
		read    *ArtifactReadError
		write   *warehouse.WriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	case errors.As(err, &timeout):
		return ErrorKindPollTimeout
	case errors.As(err, &read):
		return ErrorKindArtifactRead
	case errors.As(err, &write):
		return ErrorKindWarehouseWrite
	default:
		return domain.ErrorKind(err)
	}
}
