package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEntitled is returned by Start when the subscription gate is
	// closed. No network call is made and the state is unchanged.
	ErrNotEntitled = errors.New("not entitled")
	// ErrSearchInProgress is returned by Start while a search is active.
	ErrSearchInProgress = errors.New("search in progress")
	// ErrNoSearch is returned by Wait before the first Start.
	ErrNoSearch = errors.New("no search started")

	ErrSubmissionFailed = errors.New("submission failed")
	ErrPollFailed       = errors.New("poll failed")
	ErrPollTimeout      = errors.New("poll timeout")
	ErrEnginesFailed    = errors.New("engines failed")
	ErrCancelled        = errors.New("search cancelled")
)

// FailureReason classifies a failed search.
type FailureReason string

const (
	ReasonSubmissionFailed FailureReason = "submission_failed"
	ReasonPollFailed       FailureReason = "poll_failed"
	ReasonPollTimeout      FailureReason = "poll_timeout"
	ReasonEnginesFailed    FailureReason = "engines_failed"
	ReasonCancelled        FailureReason = "cancelled"
)

func (r FailureReason) sentinel() error {
	switch r {
	case ReasonSubmissionFailed:
		return ErrSubmissionFailed
	case ReasonPollFailed:
		return ErrPollFailed
	case ReasonPollTimeout:
		return ErrPollTimeout
	case ReasonEnginesFailed:
		return ErrEnginesFailed
	case ReasonCancelled:
		return ErrCancelled
	}
	return nil
}

// TaskError is the terminal error of a failed search. It matches the
// sentinel of its Reason and the underlying cause.
type TaskError struct {
	Reason FailureReason
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	msg := string(e.Reason)
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task %s)", msg, e.TaskID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TaskError) Unwrap() []error {
	var errs []error
	if s := e.Reason.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
