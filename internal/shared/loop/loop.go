// Package loop provides the single logical thread that drives a renderer.
//
// Work produced on background goroutines (disk reads, permission prompts,
// capability calls) is posted to a Loop and executed strictly in post order
// on one goroutine. Once the owning view goes away the loop is closed and any
// later post becomes a no-op, so late callbacks never reach a dead renderer.
//
// Example Usage:
//
//	l := loop.New(256)
//	go l.Run()
//	defer l.Close()
//	l.Post(func() { renderer.EvaluateJavaScript(script) })
package loop

import (
	"sync"
)

// Loop is a serial executor. The zero value is not usable; call New.
type Loop struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// New creates a loop with the given queue depth.
func New(depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	return &Loop{
		tasks: make(chan func(), depth),
		done:  make(chan struct{}),
	}
}

// Run executes posted tasks until Close is called. It must be called once.
func (l *Loop) Run() {
	for {
		select {
		case fn := <-l.tasks:
			if l.Closed() {
				return
			}
			fn()
		case <-l.done:
			return
		}
	}
}

// Post queues fn for execution on the loop goroutine. It returns false when
// the loop is closed and fn was dropped. Post blocks while the queue is full.
func (l *Loop) Post(fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Close stops the loop. Tasks still queued are dropped.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
	})
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done is closed when the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
