package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

type step struct {
	status map[string]models.EngineStatus
	err    error
}

// fakeSearcher answers status polls from a script; the last step repeats.
type fakeSearcher struct {
	mu sync.Mutex

	taskID    string
	createErr error
	// blockCreate makes CreateSearchTask wait for ctx cancellation
	blockCreate bool
	createCalls int
	images      [][]byte

	steps      []step
	pollCalls  int
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	pollDelay  time.Duration
	blockPolls bool
}

func (f *fakeSearcher) CreateSearchTask(ctx context.Context, image []byte) (string, error) {
	f.mu.Lock()
	f.createCalls++
	f.images = append(f.images, image)
	block, err, id := f.blockCreate, f.createErr, f.taskID
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if id == "" {
		id = "task-1"
	}
	return id, err
}

func (f *fakeSearcher) GetSearchStatus(ctx context.Context, taskID string) (*models.StatusReport, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	i := f.pollCalls
	f.pollCalls++
	block, delay := f.blockPolls, f.pollDelay
	var s step
	if len(f.steps) > 0 {
		s = f.steps[min(i, len(f.steps)-1)]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.StatusReport{TaskID: taskID, Status: s.status}, nil
}

func (f *fakeSearcher) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func (f *fakeSearcher) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

type fakeGate struct{ open atomic.Bool }

func openGate() *fakeGate {
	g := &fakeGate{}
	g.open.Store(true)
	return g
}

func (g *fakeGate) IsEntitled() bool { return g.open.Load() }

type savedSearch struct {
	image  []byte
	result *models.SearchResult
}

type fakeRecorder struct {
	mu      sync.Mutex
	saved   []savedSearch
	saveErr error
}

func (r *fakeRecorder) Save(_ context.Context, image []byte, result *models.SearchResult) (models.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return models.HistoryRecord{}, r.saveErr
	}
	// newest first, like the history listing
	r.saved = append([]savedSearch{{image: image, result: result}}, r.saved...)
	return models.HistoryRecord{ID: "rec-" + result.TaskID, ArtifactKey: "k", Result: result}, nil
}

func (r *fakeRecorder) all() []savedSearch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]savedSearch(nil), r.saved...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, e := range l.events {
		if e.Kind == EventStateChanged {
			out = append(out, e.State)
		}
	}
	return out
}

func (l *eventLog) progress() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []float64
	for _, e := range l.events {
		if e.Kind == EventProgress {
			out = append(out, e.Progress)
		}
	}
	return out
}

var (
	allPending = map[string]models.EngineStatus{"google": "pending", "yandex": "pending", "bing": "pending"}
	allDone    = map[string]models.EngineStatus{"google": "completed", "yandex": "completed", "bing": "completed"}
)

func fastConfig() Config {
	return Config{PollInterval: time.Millisecond, MaxPollAttempts: 50, PollTimeout: 5 * time.Second}
}
