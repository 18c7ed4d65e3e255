package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/huettenzauber/internal/effect"
	"github.com/nerrad567/huettenzauber/internal/scene"
)

// handle tracks one running effect goroutine.
type handle struct {
	effect string
	steps  scene.Steps
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// session is the state of one Run. It is created and discarded by Run.
type session struct {
	runID   string
	scene   scene.Descriptor
	source  string
	started time.Time

	mu      sync.Mutex
	handles []*handle
}

// spawn starts task in its own goroutine under a child of ctx.
func (s *session) spawn(ctx context.Context, task *effect.Task) {
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{
		effect: task.Name,
		steps:  task.Steps,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	go func() {
		defer close(h.done)
		h.err = task.Run(ctx)
	}()
}

// shutdown cancels every handle, then joins every handle, and clears the set.
func (s *session) shutdown() error {
	s.mu.Lock()
	handles := s.handles
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	var errs []error
	for _, h := range handles {
		<-h.done
		if h.err != nil {
			errs = append(errs, &EffectFailure{Effect: h.effect, Err: h.err})
		}
	}

	s.mu.Lock()
	s.handles = nil
	s.mu.Unlock()

	return errors.Join(errs...)
}

// active returns the effects whose goroutine has not finished.
func (s *session) active() []EffectStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EffectStatus, 0, len(s.handles))
	for _, h := range s.handles {
		select {
		case <-h.done:
			continue
		default:
		}
		out = append(out, EffectStatus{Name: h.effect, Steps: h.steps.String()})
	}
	return out
}

func (s *session) effectNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.handles))
	for i, h := range s.handles {
		names[i] = h.effect
	}
	return names
}
