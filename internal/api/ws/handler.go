package ws

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/scheme"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/id"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/loop"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// Metrics is the recorder a session reports to.
type Metrics interface {
	bridge.Recorder
	RecordWSMessage(direction, msgType string)
	IncSessions()
	DecSessions()
}

// Deps are the shared services every session is built from.
type Deps struct {
	Host           bridge.Host
	Ads            bridge.Ads
	Permissions    bridge.PermissionStore
	Manifests      bridge.ManifestSource
	Devices        bridge.DeviceAuthorizations
	Router         *scheme.Router
	Metrics        Metrics
	AllowedOrigins []string
}

// Handler manages renderer WebSocket connections.
type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{deps: deps, logger: logger.Named("ws")}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.deps.AllowedOrigins) == 0 || slices.Contains(h.deps.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.deps.AllowedOrigins, origin)
}

// HandleConnection upgrades the request and runs one mini-app instance
// until the renderer disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	appID := c.Param("appId")
	if err := types.ValidateKey(appID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer wsConn.Close()
	h.serve(c.Request.Context(), wsConn, appID)
}

func (h *Handler) serve(ctx context.Context, wsConn *websocket.Conn, appID string) {
	logger := h.logger.With(
		zap.String("app_id", appID),
		zap.String("session_id", id.NewSessionID().String()),
	)
	c := &conn{ws: wsConn, metrics: h.deps.Metrics}

	l := loop.New(256)
	go l.Run()

	prompter := newPrompter(c, logger)
	cfg := bridge.Config{
		AppID:       appID,
		Host:        h.deps.Host,
		Ads:         h.deps.Ads,
		Prompter:    prompter,
		Permissions: h.deps.Permissions,
		Manifests:   h.deps.Manifests,
		Devices:     h.deps.Devices,
		Logger:      logger,
	}
	if h.deps.Metrics != nil {
		cfg.Recorder = h.deps.Metrics
	}
	dispatcher, err := bridge.New(cfg)
	if err != nil {
		l.Close()
		c.send(TypeError, Notice{Type: TypeError, Message: err.Error()})
		return
	}
	channel := bridge.NewChannel(dispatcher, l, &renderer{conn: c})
	scheduler := h.deps.Router.NewScheduler(l)
	assets := &assetTasks{tasks: make(map[string]*scheme.Task)}

	if h.deps.Metrics != nil {
		h.deps.Metrics.IncSessions()
		defer h.deps.Metrics.DecSessions()
	}
	defer func() {
		// Once the loop is closed no response reaches the renderer.
		l.Close()
		prompter.close()
		dispatcher.Close()
		scheduler.StopAll()
		channel.Wait()
		scheduler.Wait()
		logger.Info("Renderer session closed")
	}()

	logger.Info("Renderer session opened", zap.String("instance_id", dispatcher.Instance().String()))
	if err := c.send(TypeReady, Ready{
		Type:       TypeReady,
		AppID:      appID,
		Scheme:     h.deps.Router.SchemeFor(appID),
		InstanceID: dispatcher.Instance().String(),
	}); err != nil {
		return
	}

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var in Inbound
		if err := sonic.Unmarshal(data, &in); err != nil {
			c.send(TypeError, Notice{Type: TypeError, Message: "invalid message"})
			continue
		}
		if h.deps.Metrics != nil {
			h.deps.Metrics.RecordWSMessage("in", in.Type)
		}

		switch in.Type {
		case TypeBridge:
			channel.Receive(ctx, bridgePayload(in.Message))
		case TypeDecision:
			prompter.decide(in.PromptID, in.Allow)
		case TypeAsset:
			task := assets.start(in.RequestID, h.deps.Router.SchemeFor(appID), in.Path, c)
			if task == nil {
				c.send(TypeError, Notice{Type: TypeError, Message: "duplicate or missing request id"})
				continue
			}
			scheduler.Start(ctx, task)
		case TypeCancelAsset:
			if task := assets.take(in.RequestID); task != nil {
				l.Post(func() { scheduler.Stop(task) })
			}
		case TypePing:
			c.send(TypePong, Notice{Type: TypePong})
		default:
			c.send(TypeError, Notice{Type: TypeError, Message: "unknown message type"})
		}
	}
}

// bridgePayload accepts a bridge message sent either as a JSON object or as
// a JSON string holding one.
func bridgePayload(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := sonic.Unmarshal(trimmed, &s); err == nil {
			return []byte(s)
		}
	}
	return trimmed
}

// assetTasks tracks in-flight scheme requests by request id.
type assetTasks struct {
	mu    sync.Mutex
	tasks map[string]*scheme.Task
}

func (a *assetTasks) start(requestID, schemeName, path string, c *conn) *scheme.Task {
	if requestID == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.tasks[requestID]; exists {
		return nil
	}
	task := &scheme.Task{Scheme: schemeName, Path: path}
	task.Respond = func(resp *scheme.Response) {
		a.take(requestID)
		c.send(TypeAsset, Asset{
			Type:      TypeAsset,
			RequestID: requestID,
			Path:      resp.Path,
			MIMEType:  resp.MIMEType,
			Length:    resp.Length(),
			Data:      resp.Data,
		})
	}
	a.tasks[requestID] = task
	return task
}

func (a *assetTasks) take(requestID string) *scheme.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	task := a.tasks[requestID]
	delete(a.tasks, requestID)
	return task
}
