// Package jobs defines the scrape job state machine.
//
// Valid status graph:
//
//	QUEUED ──► RUNNING ──► COMPLETED
//	   │           │
//	   │           └──────► FAILED
//	   └──► CANCELLED
//
// COMPLETED, FAILED and CANCELLED are terminal states.
package jobs

import "fmt"

// Status values stored in scrape_jobs.status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// QueuedMessage is the progress message every new job starts with.
const QueuedMessage = "Job queued, waiting to start..."

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed},
	// completed, failed and cancelled are terminal
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidateProgress checks a progress update against the current counter.
// Progress only moves forward while a job is running.
func ValidateProgress(status Status, current, next, total int) error {
	if status != StatusRunning {
		return fmt.Errorf("progress update on %s job", status)
	}
	if next < current {
		return fmt.Errorf("progress moved backwards from %d to %d", current, next)
	}
	if total < 0 || next < 0 {
		return fmt.Errorf("negative progress %d/%d", next, total)
	}
	return nil
}
