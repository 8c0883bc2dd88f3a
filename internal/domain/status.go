package domain

import "fmt"

// RunStatus is the lifecycle state of a ValidationRequest.
//
// Transitions:
//
//	pending -> processing -> {completed | partial | failed}
//	pending -> failed
//	pending -> processing -> delegated
//
// Terminal states are sticky within a run.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusPartial    RunStatus = "partial"
	StatusFailed     RunStatus = "failed"

	// StatusDelegated is reported in a RunSummary when an external workflow
	// engine took over sequencing. The stored request stays in processing.
	StatusDelegated RunStatus = "delegated"
)

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

var transitions = map[RunStatus][]RunStatus{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusPartial, StatusFailed, StatusDelegated},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunState tracks the status of a single run and enforces the state machine.
// It is not safe for concurrent use; one run owns one RunState.
type RunState struct {
	status RunStatus
}

// NewRunState starts a run in the pending state.
func NewRunState() *RunState { return &RunState{status: StatusPending} }

// Status returns the current status.
func (r *RunState) Status() RunStatus { return r.status }

// Transition moves the run to next or returns ErrInvalidTransition.
func (r *RunState) Transition(next RunStatus) error {
	if !r.status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, next)
	}
	r.status = next
	return nil
}

// Outcome picks the terminal status for a finished requirement loop.
// Zero successes with at least one requirement is a failed run.
func Outcome(succeeded, failed int) RunStatus {
	switch {
	case failed == 0 && succeeded > 0:
		return StatusCompleted
	case succeeded > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Percentage computes progress as a value in [0, 100].
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	if count > total {
		count = total
	}
	return float64(count) * 100 / float64(total)
}
