package scheme

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/loop"
)

// Task is one in-flight scheme request from a renderer. Respond is called at
// most once, on the renderer loop, and only while the task is active.
type Task struct {
	Scheme  string
	Path    string
	Respond func(*Response)
}

// Scheduler serves tasks for one renderer. Files are read on worker
// goroutines and responses are delivered on the renderer loop.
type Scheduler struct {
	router *Router
	loop   *loop.Loop

	mu     sync.Mutex
	active map[*Task]context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler binds router to a renderer loop.
func (r *Router) NewScheduler(l *loop.Loop) *Scheduler {
	return &Scheduler{
		router: r,
		loop:   l,
		active: make(map[*Task]context.CancelFunc),
	}
}

// Start begins serving task. Unresolved requests complete without a
// response.
func (s *Scheduler) Start(ctx context.Context, task *Task) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if _, running := s.active[task]; running {
		s.mu.Unlock()
		cancel()
		return
	}
	s.active[task] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		resp, err := s.router.Serve(ctx, task.Scheme, task.Path)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.router.logger.Debug("Scheme request unresolved",
					zap.String("scheme", task.Scheme), zap.String("path", task.Path), zap.Error(err))
			}
			s.finish(task)
			return
		}

		posted := s.loop.Post(func() {
			// Stop may have run between the read and this delivery.
			if s.finish(task) && task.Respond != nil {
				task.Respond(resp)
			}
		})
		if !posted {
			s.finish(task)
		}
	}()
}

// Stop cancels task. Called on the renderer loop, it guarantees no later
// response for task.
func (s *Scheduler) Stop(task *Task) {
	s.mu.Lock()
	cancel, ok := s.active[task]
	delete(s.active, task)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every active task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	active := s.active
	s.active = make(map[*Task]context.CancelFunc)
	s.mu.Unlock()
	for _, cancel := range active {
		cancel()
	}
}

// Active returns the number of tasks not yet completed or stopped.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Wait blocks until all worker goroutines have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// finish removes task and reports whether it was still active.
func (s *Scheduler) finish(task *Task) bool {
	s.mu.Lock()
	cancel, ok := s.active[task]
	delete(s.active, task)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
