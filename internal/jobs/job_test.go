package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusSubmitted, StatusPolling, true},
		{StatusSubmitted, StatusFailed, true},
		{StatusSubmitted, StatusSucceeded, false},
		{StatusPolling, StatusSucceeded, true},
		{StatusPolling, StatusTimedOut, true},
		{StatusPolling, StatusSubmitted, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusFailed, StatusPolling, false},
		{StatusTimedOut, StatusSucceeded, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestApplyRejectsTerminalExit(t *testing.T) {
	job := &Job{ID: "j1", Status: StatusSucceeded, ResultReference: "https://x/y.png"}
	err := job.apply(Update{Status: StatusFailed, LastError: "late"}, time.Now())
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if job.Status != StatusSucceeded || job.ResultReference != "https://x/y.png" {
		t.Fatalf("job mutated by rejected transition: %+v", job)
	}
}

func TestApplyRequiresResultOnlyOnSuccess(t *testing.T) {
	job := &Job{ID: "j1", Status: StatusPolling}
	if err := job.apply(Update{Status: StatusSucceeded}, time.Now()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("success without result: expected ErrIllegalTransition, got %v", err)
	}
	if err := job.apply(Update{Status: StatusFailed, ResultReference: "x"}, time.Now()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("failure with result: expected ErrIllegalTransition, got %v", err)
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := job.apply(Update{Status: StatusSucceeded, ResultReference: "x", Attempts: 3}, now); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if job.Attempts != 3 || !job.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected job after apply: %+v", job)
	}
}

func TestOutcome(t *testing.T) {
	res, err := (&Job{Status: StatusSucceeded, ResultReference: "r"}).outcome()
	if err != nil || res != "r" {
		t.Fatalf("succeeded outcome = %q, %v", res, err)
	}
	_, err = (&Job{ID: "a", Status: StatusFailed, LastError: ReasonCancelled}).outcome()
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	_, err = (&Job{ID: "b", Status: StatusFailed, LastError: "nsfw"}).outcome()
	if !errors.Is(err, ErrProviderFailed) || errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrProviderFailed, got %v", err)
	}
	var jobErr *JobError
	if !errors.As(err, &jobErr) || jobErr.Message != "nsfw" {
		t.Fatalf("expected JobError carrying message, got %v", err)
	}
	_, err = (&Job{ID: "c", Status: StatusTimedOut}).outcome()
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if _, err := (&Job{ID: "d", Status: StatusPolling}).outcome(); err == nil {
		t.Fatal("expected error for non-terminal job")
	}
}

func TestStale(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{UpdatedAt: now.Add(-11 * time.Minute)}
	if !job.stale(now, 10*time.Minute) {
		t.Fatal("expected stale job")
	}
	if job.stale(now, 0) {
		t.Fatal("zero threshold must never report stale")
	}
	fresh := &Job{SubmittedAt: now.Add(-time.Minute)}
	if fresh.stale(now, 10*time.Minute) {
		t.Fatal("fresh job reported stale")
	}
}
