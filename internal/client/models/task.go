// Package models defines the data types shared by the client packages:
// search tasks and engine statuses, history records, identity and offers.
package models

import (
	"maps"
	"time"
)

// EngineStatus is the state of one search engine inside a task.
type EngineStatus string

const (
	StatusPending   EngineStatus = "pending"
	StatusCompleted EngineStatus = "completed"
	StatusFailed    EngineStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s EngineStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the engine will not change any more.
func (s EngineStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultEngines are the engines the backend aggregates.
var DefaultEngines = []string{"google", "yandex", "bing"}

// StatusReport is one response of the status endpoint.
type StatusReport struct {
	TaskID string                  `json:"task_id" validate:"required"`
	Status map[string]EngineStatus `json:"status" validate:"required,dive,keys,required,endkeys,oneof=pending completed failed"`
	Links  map[string]string       `json:"links,omitempty"`
}

// SearchTask is the evolving state of one submitted search. The submitted
// image is not part of it.
type SearchTask struct {
	ID        string
	Engines   map[string]EngineStatus
	Links     map[string]string
	CreatedAt time.Time
	Attempts  int
}

// NewSearchTask returns a task with every engine pending.
func NewSearchTask(id string, engines []string, createdAt time.Time) *SearchTask {
	t := &SearchTask{
		ID:        id,
		Engines:   make(map[string]EngineStatus, len(engines)),
		Links:     map[string]string{},
		CreatedAt: createdAt,
	}
	for _, e := range engines {
		t.Engines[e] = StatusPending
	}
	return t
}

// Merge folds a status report into the task. Only configured engines are
// tracked. A completed engine stays completed whatever later reports say,
// and a terminal engine never goes back to pending.
func (t *SearchTask) Merge(r *StatusReport) {
	if r == nil {
		return
	}
	for engine, st := range r.Status {
		cur, tracked := t.Engines[engine]
		if !tracked || !st.Valid() {
			continue
		}
		switch {
		case cur == StatusCompleted:
		case st == StatusPending && cur.Terminal():
		default:
			t.Engines[engine] = st
		}
	}
	for engine, link := range r.Links {
		if _, tracked := t.Engines[engine]; tracked && link != "" {
			t.Links[engine] = link
		}
	}
}

// Completed returns how many engines have completed.
func (t *SearchTask) Completed() int {
	n := 0
	for _, st := range t.Engines {
		if st == StatusCompleted {
			n++
		}
	}
	return n
}

// Progress is the completed share of engines in [0, 1].
func (t *SearchTask) Progress() float64 {
	if len(t.Engines) == 0 {
		return 0
	}
	return float64(t.Completed()) / float64(len(t.Engines))
}

// AllCompleted reports whether every engine has completed.
func (t *SearchTask) AllCompleted() bool {
	return len(t.Engines) > 0 && t.Completed() == len(t.Engines)
}

// AllTerminal reports whether no engine is pending any more.
func (t *SearchTask) AllTerminal() bool {
	for _, st := range t.Engines {
		if !st.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *SearchTask) Clone() *SearchTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Engines = maps.Clone(t.Engines)
	c.Links = maps.Clone(t.Links)
	return &c
}

// Result builds the persisted result payload of a finished task.
func (t *SearchTask) Result(completedAt time.Time) *SearchResult {
	return &SearchResult{
		TaskID:      t.ID,
		Engines:     maps.Clone(t.Engines),
		Links:       maps.Clone(t.Links),
		CompletedAt: completedAt,
	}
}

// SearchResult is the outcome of a succeeded task as stored in history.
type SearchResult struct {
	TaskID      string                  `json:"task_id"`
	Engines     map[string]EngineStatus `json:"engines"`
	Links       map[string]string       `json:"links,omitempty"`
	CompletedAt time.Time               `json:"completed_at"`
}
