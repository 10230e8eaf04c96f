package orchestrator

import "github.com/dmitrijs2005/revsearch/internal/client/models"

// EventKind distinguishes state changes from progress updates.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventProgress     EventKind = "progress"
)

// Event is delivered to observers. Task is a snapshot and may be nil
// before a task id is known.
type Event struct {
	Kind     EventKind
	State    State
	Reason   FailureReason
	Progress float64
	Task     *models.SearchTask
}

// Observer receives events one at a time, in transition order, on the
// orchestrator's goroutines. Delivery may trail the state: Wait can return
// before the terminal event reaches every observer. Observers must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
