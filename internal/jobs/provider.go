package jobs

import (
	"context"
	"time"
)

// Request describes a job to submit to an external provider.
type Request struct {
	OwnerID  string
	Kind     Kind
	Provider string
	// Model is the provider's version or model identifier.
	Model string
	Input map[string]any
}

// Handle identifies a job on the provider side.
type Handle struct {
	ExternalID string
	StatusURL  string
}

// Observation is one answer from the provider's status endpoint.
type Observation struct {
	Status string
	Output string
	Error  string
}

// Provider is an external service that accepts jobs and reports their status.
type Provider interface {
	Submit(ctx context.Context, req Request) (Handle, error)
	Check(ctx context.Context, h Handle) (Observation, error)
}

// Canceller is implemented by providers that support provider-side cancellation.
type Canceller interface {
	CancelExternal(ctx context.Context, h Handle) error
}

// Store persists jobs. UpdateStatus is a compare-and-set on the previous status
// and returns ErrStatusConflict when the row moved on.
type Store interface {
	Insert(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id string, from Status, u Update) error
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

func (j *Job) handle() Handle {
	return Handle{ExternalID: j.ExternalJobID, StatusURL: j.StatusURL}
}

// stale reports whether nobody has touched the job for longer than after.
func (j *Job) stale(now time.Time, after time.Duration) bool {
	if after <= 0 {
		return false
	}
	last := j.UpdatedAt
	if last.IsZero() {
		last = j.SubmittedAt
	}
	return now.Sub(last) > after
}
