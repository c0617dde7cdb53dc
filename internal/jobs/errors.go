package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition marks a programming error: a transition the state
	// machine does not allow, including any transition out of a terminal state.
	ErrIllegalTransition = errors.New("jobs: illegal status transition")
	// ErrAlreadyPolling is returned when a job already has an active poller in this process.
	ErrAlreadyPolling = errors.New("jobs: job is already being polled")
	// ErrStatusConflict is returned by stores when the row no longer has the expected status.
	ErrStatusConflict = errors.New("jobs: status changed concurrently")
	// ErrUnknownProvider is returned when a request names a provider that was never registered.
	ErrUnknownProvider = errors.New("jobs: unknown provider")
	// ErrInvalidConfig is returned for poll configurations that would not terminate.
	ErrInvalidConfig = errors.New("jobs: invalid poll config")

	ErrProviderFailed = errors.New("jobs: provider reported failure")
	ErrTimedOut       = errors.New("jobs: polling budget exhausted")
	ErrCancelled      = errors.New("jobs: cancelled")
)

// SubmissionError wraps a transport, auth or provider failure while creating
// the external job. Submissions are never retried by this package.
type SubmissionError struct {
	Provider string
	JobID    string
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("jobs: submit to %s failed: %v", e.Provider, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ErrorKind classifies a failed job outcome.
type ErrorKind string

const (
	ErrorProviderFailed ErrorKind = "provider_failed"
	ErrorTimedOut       ErrorKind = "timed_out"
	ErrorCancelled      ErrorKind = "cancelled"
)

// JobError is the non-success outcome of AwaitCompletion.
type JobError struct {
	Kind     ErrorKind
	JobID    string
	Message  string
	Attempts int
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("jobs: job %s %s after %d checks", e.JobID, e.Kind, e.Attempts)
	}
	return fmt.Sprintf("jobs: job %s %s after %d checks: %s", e.JobID, e.Kind, e.Attempts, e.Message)
}

// Is lets callers match with errors.Is(err, ErrTimedOut) and friends.
func (e *JobError) Is(target error) bool {
	switch target {
	case ErrProviderFailed:
		return e.Kind == ErrorProviderFailed
	case ErrTimedOut:
		return e.Kind == ErrorTimedOut
	case ErrCancelled:
		return e.Kind == ErrorCancelled
	}
	return false
}
