package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/revsearch/internal/client/orchestrator"
)

const maxShownMatches = 20

// ProgressIndicator renders a one-line spinner while a search runs. The
// match counter is cosmetic: it ticks up to 20 regardless of the backend.
// Engine progress comes from orchestrator events.
type ProgressIndicator struct {
	w          io.Writer
	countEvery time.Duration
	dotEvery   time.Duration

	mu       sync.Mutex
	matches  int
	dots     int
	progress float64
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

func NewProgressIndicator(w io.Writer) *ProgressIndicator {
	return &ProgressIndicator{
		w:          w,
		countEvery: 600 * time.Millisecond,
		dotEvery:   300 * time.Millisecond,
	}
}

// OnEvent implements orchestrator.Observer.
func (p *ProgressIndicator) OnEvent(e orchestrator.Event) {
	switch {
	case e.Kind == orchestrator.EventStateChanged && e.State == orchestrator.StateSubmitting:
		p.start()
	case e.Kind == orchestrator.EventProgress:
		p.mu.Lock()
		p.progress = e.Progress
		p.renderLocked()
		p.mu.Unlock()
	case e.State.Terminal():
		p.Stop()
	}
}

func (p *ProgressIndicator) start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.matches, p.dots, p.progress = 0, 0, 0
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.renderLocked()
	p.mu.Unlock()

	go p.loop(stop, done)
}

func (p *ProgressIndicator) loop(stop, done chan struct{}) {
	defer close(done)
	count := time.NewTicker(p.countEvery)
	defer count.Stop()
	dots := time.NewTicker(p.dotEvery)
	defer dots.Stop()

	for {
		select {
		case <-count.C:
			p.mu.Lock()
			if p.matches < maxShownMatches {
				p.matches++
			}
			p.renderLocked()
			p.mu.Unlock()
		case <-dots.C:
			p.mu.Lock()
			p.dots = (p.dots + 1) % 3
			p.renderLocked()
			p.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Stop ends rendering and waits for the ticker goroutine. It may be called
// more than once.
func (p *ProgressIndicator) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	done := p.done
	fmt.Fprintln(p.w)
	p.mu.Unlock()
	<-done
}

// Matches returns the cosmetic counter.
func (p *ProgressIndicator) Matches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matches
}

func (p *ProgressIndicator) renderLocked() {
	if !p.running {
		return
	}
	dots := strings.Repeat(".", p.dots+1) + strings.Repeat(" ", 2-p.dots)
	fmt.Fprintf(p.w, "\rSearching%s %2d matches found  [%3.0f%%]", dots, p.matches, p.progress*100)
}
