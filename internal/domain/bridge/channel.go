package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/loop"
)

// Channel connects a dispatcher to a renderer. Responses are evaluated on
// the renderer loop; once the loop is closed they are dropped.
type Channel struct {
	dispatcher *Dispatcher
	loop       *loop.Loop
	renderer   Renderer
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewChannel binds d to renderer through l.
func NewChannel(d *Dispatcher, l *loop.Loop, renderer Renderer) *Channel {
	return &Channel{
		dispatcher: d,
		loop:       l,
		renderer:   renderer,
		logger:     d.logger,
	}
}

// Receive dispatches raw and schedules its completion on the renderer.
func (c *Channel) Receive(ctx context.Context, raw []byte) {
	responses := c.dispatcher.Dispatch(ctx, raw)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		resp, ok := <-responses
		if !ok {
			return
		}
		c.Deliver(resp)
	}()
}

// Deliver evaluates resp on the renderer loop.
func (c *Channel) Deliver(resp Response) bool {
	script := resp.Script()
	posted := c.loop.Post(func() {
		if err := c.renderer.EvaluateJavaScript(script); err != nil {
			c.logger.Warn("Renderer rejected bridge script",
				zap.String("message_id", resp.ID), zap.Error(err))
		}
	})
	if !posted {
		c.logger.Debug("Renderer gone, dropping bridge response", zap.String("message_id", resp.ID))
	}
	return posted
}

// Wait blocks until every received message has been delivered or dropped.
func (c *Channel) Wait() {
	c.wg.Wait()
}
