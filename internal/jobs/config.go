package jobs

import (
	"fmt"
	"strings"
	"time"
)

// PollConfig bounds a single AwaitCompletion call.
type PollConfig struct {
	Interval          time.Duration
	MaxAttempts       int
	BackoffMultiplier float64
	MaxInterval       time.Duration
	// MaxDuration is the wall-clock ceiling; zero disables it.
	MaxDuration time.Duration
}

// Validate rejects configurations that could poll forever or spin.
func (c PollConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("%w: max duration must not be negative", ErrInvalidConfig)
	}
	if c.MaxInterval != 0 && c.MaxInterval < c.Interval {
		return fmt.Errorf("%w: max interval is below interval", ErrInvalidConfig)
	}
	return nil
}

// next returns the wait that follows current.
func (c PollConfig) next(current time.Duration) time.Duration {
	if c.BackoffMultiplier <= 1 {
		return current
	}
	next := time.Duration(float64(current) * c.BackoffMultiplier)
	if c.MaxInterval > 0 && next > c.MaxInterval {
		next = c.MaxInterval
	}
	return next
}

// Outcome is what a provider status string means to the poller.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timedOut"
)

// StatusMapping translates provider status vocabularies into outcomes. Keys are
// matched case-insensitively; unknown statuses are pending.
type StatusMapping map[string]Outcome

// ParseStatusMapping parses "status=outcome" pairs separated by commas, e.g.
// "succeeded=succeeded,canceled=failed,processing=pending".
func ParseStatusMapping(raw string) (StatusMapping, error) {
	mapping := StatusMapping{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("status mapping: %q is not status=outcome", pair)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("status mapping: empty provider status in %q", pair)
		}
		outcome := Outcome(strings.TrimSpace(value))
		switch outcome {
		case OutcomePending, OutcomeSucceeded, OutcomeFailed, OutcomeTimedOut:
		default:
			return nil, fmt.Errorf("status mapping: unknown outcome %q for %q", value, key)
		}
		mapping[key] = outcome
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("status mapping: no entries")
	}
	var hasSuccess bool
	for _, outcome := range mapping {
		if outcome == OutcomeSucceeded {
			hasSuccess = true
			break
		}
	}
	if !hasSuccess {
		return nil, fmt.Errorf("status mapping: no status maps to %s", OutcomeSucceeded)
	}
	return mapping, nil
}

// Resolve maps a raw provider status.
func (m StatusMapping) Resolve(status string) (Outcome, bool) {
	outcome, ok := m[strings.ToLower(strings.TrimSpace(status))]
	if !ok {
		return OutcomePending, false
	}
	return outcome, true
}
