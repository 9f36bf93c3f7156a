package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/id"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

var errSessionClosed = errors.New("renderer session closed")

const writeTimeout = 10 * time.Second

// conn is the websocket side of a session. Writes are serialized; gorilla
// allows one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	metrics Metrics
	mu      sync.Mutex
}

// send writes v and counts it under msgType.
func (c *conn) send(msgType string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", msgType)
	}
	return nil
}

// renderer forwards scripts to the remote web view.
type renderer struct {
	conn *conn
}

func (r *renderer) EvaluateJavaScript(script string) error {
	return r.conn.send(TypeScript, Script{Type: TypeScript, Script: script})
}

// prompter forwards permission prompts to the remote UI and waits for the
// matching decision.
type prompter struct {
	conn   *conn
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]chan bool
	closed  chan struct{}
	once    sync.Once
}

func newPrompter(c *conn, logger *zap.Logger) *prompter {
	return &prompter{
		conn:    c,
		logger:  logger,
		pending: make(map[string]chan bool),
		closed:  make(chan struct{}),
	}
}

func (p *prompter) RequestDevicePermission(ctx context.Context, appID string, permission types.DevicePermissionType) (bridge.Decision, error) {
	return p.ask(ctx, Prompt{Type: TypePrompt, Kind: PromptDevice, Permission: permission})
}

func (p *prompter) RequestCustomPermissions(ctx context.Context, appID string, permissions []types.PermissionDeclaration) (bridge.Decision, error) {
	return p.ask(ctx, Prompt{Type: TypePrompt, Kind: PromptCustom, Permissions: permissions})
}

func (p *prompter) ask(ctx context.Context, prompt Prompt) (bridge.Decision, error) {
	prompt.PromptID = id.NewPromptID().String()
	answer := make(chan bool, 1)

	p.mu.Lock()
	p.pending[prompt.PromptID] = answer
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, prompt.PromptID)
		p.mu.Unlock()
	}()

	if err := p.conn.send(TypePrompt, prompt); err != nil {
		return bridge.DecisionDeny, err
	}
	select {
	case allow := <-answer:
		if allow {
			return bridge.DecisionAllow, nil
		}
		return bridge.DecisionDeny, nil
	case <-ctx.Done():
		return bridge.DecisionDeny, ctx.Err()
	case <-p.closed:
		return bridge.DecisionDeny, errSessionClosed
	}
}

// decide delivers a decision. Unknown or stale prompt ids are ignored.
func (p *prompter) decide(promptID string, allow bool) bool {
	p.mu.Lock()
	answer, ok := p.pending[promptID]
	p.mu.Unlock()
	if !ok {
		p.logger.Debug("Decision for unknown prompt", zap.String("prompt_id", promptID))
		return false
	}
	select {
	case answer <- allow:
		return true
	default:
		return false
	}
}

func (p *prompter) close() {
	p.once.Do(func() { close(p.closed) })
}
