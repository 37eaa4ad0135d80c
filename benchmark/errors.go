package benchmark

import (
	"errors"
	"fmt"
)

// ErrInvalidJob is returned before any network call when a transfer job can
// never succeed.
var ErrInvalidJob = errors.New("invalid transfer job")

// Transfer phases reported in TransferError.
const (
	PhaseCreate   = "create"
	PhasePart     = "part"
	PhaseComplete = "complete"
	PhaseDownload = "download"
)

// TransferError names the phase, object and (for part uploads) the part that
// failed.
type TransferError struct {
	Phase string
	Key   string
	Part  int // 0 when the failure is not tied to a part
	Err   error
}

func (e *TransferError) Error() string {
	if e.Part > 0 {
		return fmt.Sprintf("%s %s part %d: %v", e.Phase, e.Key, e.Part, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func invalidJob(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, args...))
}
