// Package orchestrator runs one reverse image search at a time: it submits
// the image, polls the aggregate status until every engine completes or
// the search fails, saves the result to history and notifies observers.
//
// State changes are serialized by a single mutex. Network calls and the
// history write run outside of it; their results are applied only if the
// search they belong to is still the current one. At most one poll timer
// exists per orchestrator and it is re-armed after each response.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 120
	DefaultPollTimeout     = 3 * time.Minute
)

// Searcher is the part of the backend client the orchestrator needs.
type Searcher interface {
	CreateSearchTask(ctx context.Context, image []byte) (string, error)
	GetSearchStatus(ctx context.Context, taskID string) (*models.StatusReport, error)
}

// Gate decides whether a new search may start. It must not block.
type Gate interface {
	IsEntitled() bool
}

// Recorder persists completed searches.
type Recorder interface {
	Save(ctx context.Context, image []byte, result *models.SearchResult) (models.HistoryRecord, error)
}

// Config tunes polling. Zero values take the package defaults.
type Config struct {
	Engines         []string
	PollInterval    time.Duration
	MaxPollAttempts int
	PollTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Engines) == 0 {
		c.Engines = models.DefaultEngines
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	return c
}

// Result is the outcome of the last search.
type Result struct {
	State  State
	Task   *models.SearchTask
	Record *models.HistoryRecord
	// Err is a *TaskError when State is StateFailed.
	Err error
	// SaveErr is set when the search succeeded but could not be saved.
	// The task result is still available in Task.
	SaveErr error
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	api     Searcher
	gate    Gate
	history Recorder
	cfg     Config
	log     logging.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     State
	gen       uint64
	task      *models.SearchTask
	image     []byte
	deadline  time.Time
	finishing bool
	timer     *time.Timer
	cancelRun context.CancelFunc
	stopWatch func() bool
	done      chan struct{}
	result    Result
	observers []Observer
	pending   []Event

	// held by the goroutine currently delivering pending events
	emitMu sync.Mutex
}

// New wires an orchestrator. history may be nil, in which case results are
// not persisted.
func New(api Searcher, gate Gate, history Recorder, cfg Config, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{
		api:     api,
		gate:    gate,
		history: history,
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "orchestrator"),
		now:     time.Now,
		state:   StateIdle,
	}
}

// Subscribe registers an observer for all later events.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Task returns a snapshot of the current task, nil before submission
// succeeds.
func (o *Orchestrator) Task() *models.SearchTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.task.Clone()
}

// Result returns the outcome of the last finished search.
func (o *Orchestrator) Result() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Start begins a new search for image. It returns ErrNotEntitled without
// any network call when the gate is closed, and ErrSearchInProgress while
// another search is active. Cancelling ctx cancels the search.
func (o *Orchestrator) Start(ctx context.Context, image []byte) error {
	o.mu.Lock()

	if o.state.Active() {
		o.mu.Unlock()
		return ErrSearchInProgress
	}
	if !o.gate.IsEntitled() {
		o.mu.Unlock()
		o.log.Info(ctx, "search refused, not entitled")
		return ErrNotEntitled
	}
	if err := transition(o.state, StateSubmitting); err != nil {
		o.mu.Unlock()
		return err
	}

	o.gen++
	gen := o.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancelRun = cancel
	o.stopWatch = context.AfterFunc(ctx, func() { o.cancel(gen) })
	o.state = StateSubmitting
	o.task = nil
	o.image = image
	o.finishing = false
	o.done = make(chan struct{})
	o.result = Result{}
	o.enqueueLocked(Event{Kind: EventStateChanged, State: StateSubmitting})
	o.mu.Unlock()

	o.drain()

	go o.submit(runCtx, gen, image)
	return nil
}

// Cancel stops the active search, which ends in StateFailed with
// ReasonCancelled. It is a no-op when nothing is active and may be called
// any number of times.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()
	o.cancel(gen)
}

// Wait blocks until the current search finishes or ctx is done. For a
// failed search the returned error is the *TaskError.
func (o *Orchestrator) Wait(ctx context.Context) (Result, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done == nil {
		return Result{State: StateIdle}, ErrNoSearch
	}

	select {
	case <-done:
		r := o.Result()
		return r, r.Err
	case <-ctx.Done():
		return Result{State: o.State()}, ctx.Err()
	}
}

func (o *Orchestrator) cancel(gen uint64) {
	o.mu.Lock()
	if gen != o.gen || !o.state.Active() || o.finishing {
		o.mu.Unlock()
		return
	}
	o.log.Info(context.Background(), "search cancelled", "state", o.state)
	o.failLocked(ReasonCancelled, nil)
	o.mu.Unlock()
	o.drain()
}

func (o *Orchestrator) submit(ctx context.Context, gen uint64, image []byte) {
	taskID, err := o.api.CreateSearchTask(ctx, image)

	o.mu.Lock()
	if gen != o.gen || o.state != StateSubmitting {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.log.Warn(ctx, "search submission failed", "error", err)
		o.failLocked(ReasonSubmissionFailed, err)
		o.mu.Unlock()
		o.drain()
		return
	}

	if err := transition(o.state, StatePolling); err != nil {
		o.log.Error(ctx, "unexpected state", "error", err)
	}
	o.task = models.NewSearchTask(taskID, o.cfg.Engines, o.now())
	o.deadline = o.task.CreatedAt.Add(o.cfg.PollTimeout)
	o.state = StatePolling
	o.log.Info(ctx, "search submitted", "task_id", taskID)

	o.armLocked(ctx, gen)
	o.enqueueLocked(Event{Kind: EventStateChanged, State: StatePolling, Task: o.task.Clone()})
	o.mu.Unlock()
	o.drain()
}

// armLocked replaces the poll timer.
func (o *Orchestrator) armLocked(ctx context.Context, gen uint64) {
	o.stopTimerLocked()
	o.timer = time.AfterFunc(o.cfg.PollInterval, func() { o.poll(ctx, gen) })
}

func (o *Orchestrator) poll(ctx context.Context, gen uint64) {
	o.mu.Lock()
	if gen != o.gen || o.state != StatePolling || o.finishing {
		o.mu.Unlock()
		return
	}
	if o.ceilingReachedLocked() {
		o.log.Warn(ctx, "polling ceiling reached", "task_id", o.task.ID, "attempts", o.task.Attempts)
		o.failLocked(ReasonPollTimeout, nil)
		o.mu.Unlock()
		o.drain()
		return
	}
	o.timer = nil
	o.task.Attempts++
	taskID := o.task.ID
	attempt := o.task.Attempts
	o.mu.Unlock()

	report, err := o.api.GetSearchStatus(ctx, taskID)

	o.mu.Lock()
	if gen != o.gen || o.state != StatePolling || o.finishing {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.log.Warn(ctx, "status poll failed", "task_id", taskID, "attempt", attempt, "error", err)
		o.failLocked(ReasonPollFailed, err)
		o.mu.Unlock()
		o.drain()
		return
	}

	o.task.Merge(report)
	o.log.Debug(ctx, "status polled", "task_id", taskID, "attempt", attempt, "completed", o.task.Completed())
	o.enqueueLocked(Event{Kind: EventProgress, State: StatePolling, Progress: o.task.Progress(), Task: o.task.Clone()})

	switch {
	case o.task.AllCompleted():
		o.finishing = true
		task := o.task.Clone()
		image := o.image
		o.mu.Unlock()
		o.drain()
		o.succeed(ctx, gen, task, image)
		return
	case o.task.AllTerminal():
		o.failLocked(ReasonEnginesFailed, nil)
	case o.ceilingReachedLocked():
		o.failLocked(ReasonPollTimeout, nil)
	default:
		o.armLocked(ctx, gen)
	}
	o.mu.Unlock()
	o.drain()
}

func (o *Orchestrator) ceilingReachedLocked() bool {
	return o.task.Attempts >= o.cfg.MaxPollAttempts || !o.now().Before(o.deadline)
}

// succeed saves the finished task and only then publishes the terminal
// event, so observers that reload history see the new record. A failed
// save is reported on the result; the search still succeeds.
func (o *Orchestrator) succeed(ctx context.Context, gen uint64, task *models.SearchTask, image []byte) {
	result := task.Result(o.now())
	var (
		record  *models.HistoryRecord
		saveErr error
	)
	if o.history != nil {
		rec, err := o.history.Save(ctx, image, result)
		if err != nil {
			o.log.Error(ctx, "failed to save search to history", "task_id", task.ID, "error", err)
			saveErr = err
		} else {
			record = &rec
		}
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	if err := transition(o.state, StateSucceeded); err != nil {
		o.log.Error(ctx, "unexpected state", "error", err)
	}
	o.state = StateSucceeded
	o.result = Result{State: StateSucceeded, Task: task, Record: record, SaveErr: saveErr}
	o.log.Info(ctx, "search succeeded", "task_id", task.ID)
	o.closeRunLocked()
	o.enqueueLocked(Event{Kind: EventStateChanged, State: StateSucceeded, Progress: 1, Task: task.Clone()})
	o.mu.Unlock()
	o.drain()
}

func (o *Orchestrator) failLocked(reason FailureReason, cause error) {
	if err := transition(o.state, StateFailed); err != nil {
		o.log.Error(context.Background(), "unexpected state", "error", err)
	}
	o.stopTimerLocked()

	taskID := ""
	var progress float64
	if o.task != nil {
		taskID = o.task.ID
		progress = o.task.Progress()
	}
	task := o.task.Clone()

	o.state = StateFailed
	o.result = Result{
		State: StateFailed,
		Task:  task,
		Err:   &TaskError{Reason: reason, TaskID: taskID, Err: cause},
	}
	o.closeRunLocked()
	o.enqueueLocked(Event{Kind: EventStateChanged, State: StateFailed, Reason: reason, Progress: progress, Task: task.Clone()})
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) closeRunLocked() {
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	if o.stopWatch != nil {
		o.stopWatch()
		o.stopWatch = nil
	}
	o.image = nil
	o.finishing = false
	close(o.done)
}

func (o *Orchestrator) enqueueLocked(ev Event) {
	if len(o.observers) == 0 {
		return
	}
	o.pending = append(o.pending, ev)
}

// drain delivers queued events in order without holding o.mu, so observers
// may read State or Task. If another goroutine is already delivering, it
// picks up our events too.
func (o *Orchestrator) drain() {
	for {
		if !o.emitMu.TryLock() {
			return
		}
		for {
			o.mu.Lock()
			if len(o.pending) == 0 {
				o.mu.Unlock()
				break
			}
			ev := o.pending[0]
			o.pending = o.pending[1:]
			observers := append([]Observer(nil), o.observers...)
			o.mu.Unlock()

			for _, obs := range observers {
				obs.OnEvent(ev)
			}
		}
		o.emitMu.Unlock()

		// an event may have been queued after the last check but before
		// the unlock, when the enqueuer's TryLock failed
		o.mu.Lock()
		empty := len(o.pending) == 0
		o.mu.Unlock()
		if empty {
			return
		}
	}
}
