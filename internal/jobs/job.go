// Package jobs drives long-running external generation jobs from submission to
// a single terminal outcome.
package jobs

import (
	"fmt"
	"time"
)

// Kind enumerates supported generation job categories.
type Kind string

const (
	KindTextToImage       Kind = "text-to-image"
	KindUpscale           Kind = "upscale"
	KindBackgroundRemoval Kind = "background-removal"
)

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTextToImage, KindUpscale, KindBackgroundRemoval:
		return true
	}
	return false
}

// Status enumerates job lifecycle states.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPolling   Status = "polling"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timedOut"
)

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// ReasonCancelled is stored in LastError when a job was cancelled by a caller.
const ReasonCancelled = "cancelled"

// Job is one request to an external AI service tracked to a terminal outcome.
type Job struct {
	ID              string
	OwnerID         string
	Kind            Kind
	Provider        string
	Model           string
	Input           map[string]any
	SubmittedAt     time.Time
	ExternalJobID   string
	StatusURL       string
	Status          Status
	ResultReference string
	LastError       string
	Attempts        int
	CancelRequested bool
	UpdatedAt       time.Time
}

// Update carries the fields written alongside a status transition.
type Update struct {
	Status          Status
	ResultReference string
	LastError       string
	Attempts        int
}

var transitions = map[Status][]Status{
	StatusSubmitted: {StatusPolling, StatusFailed},
	StatusPolling:   {StatusSucceeded, StatusFailed, StatusTimedOut},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// apply validates u against the job's current status and mutates the job.
func (j *Job) apply(u Update, now time.Time) error {
	if !CanTransition(j.Status, u.Status) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrIllegalTransition, j.Status, u.Status, j.ID)
	}
	if (u.Status == StatusSucceeded) != (u.ResultReference != "") {
		return fmt.Errorf("%w: result reference must be set iff succeeded (job %s)", ErrIllegalTransition, j.ID)
	}
	j.Status = u.Status
	j.ResultReference = u.ResultReference
	if u.LastError != "" {
		j.LastError = u.LastError
	}
	if u.Attempts > j.Attempts {
		j.Attempts = u.Attempts
	}
	j.UpdatedAt = now
	return nil
}

// outcome converts a terminal job into the value AwaitCompletion returns.
func (j *Job) outcome() (string, error) {
	switch j.Status {
	case StatusSucceeded:
		return j.ResultReference, nil
	case StatusTimedOut:
		return "", &JobError{Kind: ErrorTimedOut, JobID: j.ID, Message: j.LastError, Attempts: j.Attempts}
	case StatusFailed:
		if j.LastError == ReasonCancelled {
			return "", &JobError{Kind: ErrorCancelled, JobID: j.ID, Message: ReasonCancelled, Attempts: j.Attempts}
		}
		return "", &JobError{Kind: ErrorProviderFailed, JobID: j.ID, Message: j.LastError, Attempts: j.Attempts}
	}
	return "", fmt.Errorf("jobs: job %s is not terminal (%s)", j.ID, j.Status)
}
