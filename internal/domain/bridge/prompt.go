package bridge

import (
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// fifo admits one holder at a time in arrival order.
type fifo struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

func (q *fifo) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		if i := slices.Index(q.waiters, ch); i >= 0 {
			q.waiters = slices.Delete(q.waiters, i, i+1)
			q.mu.Unlock()
			return ctx.Err()
		}
		q.mu.Unlock()
		// Ownership was handed over while we gave up; pass it on.
		q.release()
		return ctx.Err()
	}
}

func (q *fifo) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		q.busy = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// prompts serializes and coalesces the permission prompts of one mini-app
// instance. The prompt itself runs under the instance context, so a caller
// that gives up does not dismiss a dialog others are waiting on.
type prompts struct {
	base     context.Context
	appID    string
	prompter Prompter
	recorder Recorder
	group    singleflight.Group
	queue    fifo
}

func deviceKey(p types.DevicePermissionType) string {
	return "device:" + string(p)
}

func customKey(decls []types.PermissionDeclaration) string {
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = string(d.Type)
	}
	slices.Sort(names)
	return "custom:" + strings.Join(names, ",")
}

func (p *prompts) device(ctx context.Context, permission types.DevicePermissionType) (Decision, error) {
	return p.ask(ctx, "device", deviceKey(permission), func(ctx context.Context) (Decision, error) {
		return p.prompter.RequestDevicePermission(ctx, p.appID, permission)
	})
}

func (p *prompts) custom(ctx context.Context, decls []types.PermissionDeclaration) (Decision, error) {
	return p.ask(ctx, "custom", customKey(decls), func(ctx context.Context) (Decision, error) {
		return p.prompter.RequestCustomPermissions(ctx, p.appID, decls)
	})
}

func (p *prompts) ask(ctx context.Context, kind, key string, show func(context.Context) (Decision, error)) (Decision, error) {
	if p.prompter == nil {
		return DecisionDeny, errNotDetermined()
	}

	ch := p.group.DoChan(key, func() (any, error) {
		if err := p.queue.acquire(p.base); err != nil {
			return DecisionDeny, err
		}
		defer p.queue.release()

		decision, err := show(p.base)
		if p.recorder != nil {
			outcome := decision.String()
			if err != nil {
				outcome = "error"
			}
			p.recorder.RecordPrompt(kind, outcome)
		}
		return decision, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return DecisionDeny, res.Err
		}
		return res.Val.(Decision), nil
	case <-ctx.Done():
		return DecisionDeny, ctx.Err()
	}
}
