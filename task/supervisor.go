package task

import (
	"context"
	"sync"

	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/schema"
)

// worker is the Supervisor's bookkeeping for one live DeployTask: its
// cancel func and a channel closed when Run returns.
type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor holds per-deployment progress and admits at most one live
// DeployTask per name, per spec.md §4.4. It implements ProgressSink so a
// DeployTask publishes directly into it.
type Supervisor struct {
	mu       sync.RWMutex
	progress map[string]schema.DeployProgress
	workers  map[string]*worker
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		progress: make(map[string]schema.DeployProgress),
		workers:  make(map[string]*worker),
	}
}

// Progress returns the last published record for name, and whether one
// exists.
func (s *Supervisor) Progress(name string) (schema.DeployProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[name]
	return p, ok
}

// Underway reports whether a worker is currently live for name.
func (s *Supervisor) Underway(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workers[name]
	return ok
}

// Start admits a new DeployTask for d.Name, refusing with Conflict if one
// is already underway, per spec.md §4.4's single-flight admission rule.
// The task runs on its own goroutine and is dropped from the worker map
// (but its last progress record retained) once it reaches a terminal
// state.
func (s *Supervisor) Start(d schema.Deployment, deps Dependencies) error {
	s.mu.Lock()
	if _, underway := s.workers[d.Name]; underway {
		s.mu.Unlock()
		return deployerr.Newf(deployerr.Conflict, nil, "Another deployment of %s is already underway", d.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{cancel: cancel, done: make(chan struct{})}
	s.workers[d.Name] = w
	s.progress[d.Name] = schema.DeployProgress{State: schema.StateStarting, Message: "Deployment started"}
	s.mu.Unlock()

	t := New(d, deps, s)
	go func() {
		defer close(w.done)
		t.Run(ctx)
		s.clearIfTerminal(d.Name)
	}()
	return nil
}

// Publish implements ProgressSink by recording p as name's last progress
// record. It does not touch the worker handle: Start's goroutine drops
// that once Run returns after a terminal publish, so a later Start can
// admit again, and the last record is retained.
func (s *Supervisor) Publish(name string, p schema.DeployProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[name] = p
}

func (s *Supervisor) clearIfTerminal(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.progress[name]; ok && p.State.Terminal() {
		delete(s.workers, name)
	}
}

// Shutdown implements the `stop`/`graceful` lifecycle handling of
// spec.md §4.4: it signals every live worker to stop, joins each, then
// clears the progress map entirely.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		w.cancel()
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}

	s.mu.Lock()
	s.progress = make(map[string]schema.DeployProgress)
	s.workers = make(map[string]*worker)
	s.mu.Unlock()
}
