package orchestrator

import "fmt"

// State is the lifecycle stage of the current search.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Active reports whether a search is in flight.
func (s State) Active() bool {
	return s == StateSubmitting || s == StatePolling
}

// Terminal reports whether the search has finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle, StateSucceeded, StateFailed:
		return to == StateSubmitting
	case StateSubmitting:
		return to == StatePolling || to == StateFailed
	case StatePolling:
		return to == StateSucceeded || to == StateFailed
	}
	return false
}

// transition validates from -> to against the lifecycle table.
func transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	return nil
}
