package webview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Renderer is a headless web view backed by goja.
type Renderer struct {
	cfg    Config
	logger *zap.Logger

	// mu serializes access to the VM.
	mu sync.Mutex
	vm *goja.Runtime

	state     sync.Mutex
	console   []LogEntry
	outcomes  []Outcome
	settled   chan struct{}
	onMessage func([]byte)
}

// New creates a renderer with the bridge shim loaded.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	r := &Renderer{
		cfg:     cfg,
		logger:  logger.Named("webview"),
		vm:      goja.New(),
		settled: make(chan struct{}),
	}
	if cfg.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}
	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	if _, err := r.vm.RunString(shim); err != nil {
		return nil, fmt.Errorf("failed to load bridge shim: %w", err)
	}
	return r, nil
}

// OnMessage registers the receiver of bridge messages posted by the page.
func (r *Renderer) OnMessage(fn func([]byte)) {
	r.state.Lock()
	r.onMessage = fn
	r.state.Unlock()
}

func (r *Renderer) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	r.vm.Set("setTimeout", noop)
	r.vm.Set("setInterval", noop)

	if r.cfg.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error"} {
			console.Set(level, r.consoleFunc(level))
		}
		r.vm.Set("console", console)
	}

	r.vm.Set("__hostPost", func(call goja.FunctionCall) goja.Value {
		raw := call.Argument(0).String()
		r.state.Lock()
		fn := r.onMessage
		r.state.Unlock()
		if fn == nil {
			r.logger.Debug("No bridge receiver, dropping message")
			return goja.Undefined()
		}
		fn([]byte(raw))
		return goja.Undefined()
	})
	r.vm.Set("__hostSettle", func(id string, ok bool, value string) {
		r.state.Lock()
		r.outcomes = append(r.outcomes, Outcome{ID: id, OK: ok, Value: value})
		close(r.settled)
		r.settled = make(chan struct{})
		r.state.Unlock()
	})
	return nil
}

func (r *Renderer) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		r.state.Lock()
		r.console = append(r.console, LogEntry{Level: level, Message: strings.Join(parts, " "), Time: time.Now()})
		r.state.Unlock()
		return goja.Undefined()
	}
}

// Run evaluates script and exports its completion value.
func (r *Renderer) Run(ctx context.Context, script string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vm == nil {
		return nil, ErrClosed
	}

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()
	finished := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-timer.C:
			r.vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-finished:
		}
	}()

	val, err := r.vm.RunString(script)
	close(finished)
	<-watcher
	r.vm.ClearInterrupt()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
		}
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// EvaluateJavaScript runs an outbound bridge script.
func (r *Renderer) EvaluateJavaScript(script string) error {
	_, err := r.Run(context.Background(), script)
	return err
}

// Console returns the captured console output.
func (r *Renderer) Console() []LogEntry {
	r.state.Lock()
	defer r.state.Unlock()
	return append([]LogEntry(nil), r.console...)
}

// Outcomes returns every settlement seen so far, in order.
func (r *Renderer) Outcomes() []Outcome {
	r.state.Lock()
	defer r.state.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

// WaitOutcome blocks until the call with id settles.
func (r *Renderer) WaitOutcome(ctx context.Context, id string) (Outcome, error) {
	for {
		r.state.Lock()
		for _, o := range r.outcomes {
			if o.ID == id {
				r.state.Unlock()
				return o, nil
			}
		}
		settled := r.settled
		r.state.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

// Close releases the VM. Later scripts fail with ErrClosed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vm = nil
	return nil
}
