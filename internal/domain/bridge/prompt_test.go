package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

func newPrompts(p *fakePrompter) (*prompts, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	return &prompts{base: ctx, appID: "app-a", prompter: p}, cancel
}

func TestIdenticalPromptsCoalesce(t *testing.T) {
	fp := &fakePrompter{decision: DecisionAllow, gate: make(chan struct{}), entered: make(chan string, 4)}
	p, cancel := newPrompts(fp)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]Decision, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := p.device(context.Background(), types.DevicePermissionLocation)
			assert.NoError(t, err)
			results[i] = d
		}(i)
		if i == 0 {
			<-fp.entered
		}
	}
	// Give the followers time to join the pending prompt.
	time.Sleep(50 * time.Millisecond)
	close(fp.gate)
	wg.Wait()

	assert.Equal(t, int32(1), fp.calls.Load())
	for _, d := range results {
		assert.Equal(t, DecisionAllow, d)
	}
}

func TestDifferentPromptsQueue(t *testing.T) {
	fp := &fakePrompter{decision: DecisionAllow, gate: make(chan struct{}), entered: make(chan string, 4)}
	p, cancel := newPrompts(fp)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := p.device(context.Background(), types.DevicePermissionLocation)
		assert.NoError(t, err)
	}()
	first := <-fp.entered

	go func() {
		defer wg.Done()
		_, err := p.custom(context.Background(), []types.PermissionDeclaration{{Type: types.PermissionUserName}})
		assert.NoError(t, err)
	}()

	select {
	case key := <-fp.entered:
		t.Fatalf("second prompt %q shown while %q pending", key, first)
	case <-time.After(50 * time.Millisecond):
	}

	fp.gate <- struct{}{}
	second := <-fp.entered
	assert.NotEqual(t, first, second)
	fp.gate <- struct{}{}
	wg.Wait()

	assert.Equal(t, int32(2), fp.calls.Load())
	assert.Equal(t, int32(1), fp.maxSeen.Load())
}

func TestCallerCancelDoesNotDismissSharedPrompt(t *testing.T) {
	fp := &fakePrompter{decision: DecisionAllow, gate: make(chan struct{}), entered: make(chan string, 1)}
	p, cancel := newPrompts(fp)
	defer cancel()

	ctx, give := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := p.device(ctx, types.DevicePermissionLocation)
		errs <- err
	}()
	<-fp.entered

	done := make(chan Decision, 1)
	go func() {
		d, _ := p.device(context.Background(), types.DevicePermissionLocation)
		done <- d
	}()
	time.Sleep(20 * time.Millisecond)

	give()
	require.ErrorIs(t, <-errs, context.Canceled)

	close(fp.gate)
	assert.Equal(t, DecisionAllow, <-done)
}

func TestFIFOHandsOverOnCancel(t *testing.T) {
	var q fifo
	require.NoError(t, q.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.acquire(ctx), context.Canceled)

	acquired := make(chan struct{})
	go func() {
		assert.NoError(t, q.acquire(context.Background()))
		close(acquired)
	}()
	time.Sleep(10 * time.Millisecond)
	q.release()
	<-acquired
	q.release()

	assert.False(t, q.busy)
	assert.Empty(t, q.waiters)
}

func TestNoPrompterMeansNotDetermined(t *testing.T) {
	p := &prompts{base: context.Background(), appID: "app-a"}
	_, err := p.device(context.Background(), types.DevicePermissionLocation)
	var enc *EncodedError
	require.ErrorAs(t, err, &enc)
	assert.Equal(t, ErrNamePermissionNotDetermined, enc.Name)
}
