package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/assets"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/manifest"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/scheme"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/kv"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/securestore"
	"github.com/GriffinCanCode/miniapp-host/internal/providers/profile"
)

type staticID string

func (s staticID) UniqueID(context.Context) (string, error) { return string(s), nil }

type frame map[string]any

type wsMetrics struct {
	mu  sync.Mutex
	out []string
}

func (m *wsMetrics) RecordBridgeCommand(action, outcome string) {}
func (m *wsMetrics) RecordPrompt(kind, decision string)         {}
func (m *wsMetrics) IncSessions()                               {}
func (m *wsMetrics) DecSessions()                               {}

func (m *wsMetrics) RecordWSMessage(direction, msgType string) {
	if direction != "out" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, msgType)
}

func (m *wsMetrics) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.out...)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newMeteredServer(t, nil)
}

func newMeteredServer(t *testing.T, metrics Metrics) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store, err := assets.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "app1", "v1", "index.html", []byte("<html>hi</html>")))
	require.NoError(t, store.Promote(ctx, "app1", "v1"))

	h := NewHandler(Deps{
		Host:        profile.NewHost(profile.Default(), staticID("ABC"), nil),
		Permissions: permission.NewStore(securestore.NewMemory(), "test", nil),
		Manifests:   manifest.NewCache(kv.NewMemory(), nil),
		Router:      scheme.NewRouter(store, scheme.Config{}, nil),
		Metrics:     metrics,
	}, nil)

	r := gin.New()
	r.GET("/stream/:appId", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, appID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream/" + appID
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := sonic.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func next(t *testing.T, c *websocket.Conn, msgType string) frame {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, sonic.Unmarshal(data, &f))
		if f["type"] == msgType {
			return f
		}
	}
}

func TestSessionReady(t *testing.T) {
	c := dial(t, newTestServer(t), "app1")
	ready := next(t, c, TypeReady)
	assert.Equal(t, "app1", ready["appId"])
	assert.Equal(t, "mscheme.app1", ready["scheme"])
	assert.NotEmpty(t, ready["instanceId"])
}

func TestSessionBridgeRoundTrip(t *testing.T) {
	c := dial(t, newTestServer(t), "app1")
	next(t, c, TypeReady)

	send(t, c, frame{"type": TypeBridge, "message": frame{"id": "1", "action": "getUniqueId"}})
	script := next(t, c, TypeScript)
	assert.Equal(t, `MiniAppBridge.execSuccessCallback("1", "ABC")`, script["script"])

	// The SDK may post the message as a JSON string.
	send(t, c, frame{"type": TypeBridge, "message": `{"id":"2","action":"getUniqueId"}`})
	script = next(t, c, TypeScript)
	assert.Equal(t, `MiniAppBridge.execSuccessCallback("2", "ABC")`, script["script"])

	send(t, c, frame{"type": TypeBridge, "message": frame{"id": "3", "action": "nope"}})
	script = next(t, c, TypeScript)
	assert.Contains(t, script["script"], `execErrorCallback("3"`)
}

func TestSessionPromptDecision(t *testing.T) {
	c := dial(t, newTestServer(t), "app1")
	next(t, c, TypeReady)

	send(t, c, frame{"type": TypeBridge, "message": frame{
		"id": "6", "action": "requestCustomPermissions",
		"param": frame{"permissions": []frame{{"name": "rakuten.miniapp.device.LOCATION"}}},
	}})
	prompt := next(t, c, TypePrompt)
	assert.Equal(t, PromptCustom, prompt["kind"])
	send(t, c, frame{"type": TypeDecision, "promptId": prompt["promptId"], "allow": true})
	script := next(t, c, TypeScript)
	assert.Contains(t, script["script"], `execSuccessCallback("6"`)

	send(t, c, frame{"type": TypeBridge, "message": frame{"id": "7", "action": "requestPermission", "param": frame{"permission": "location"}}})
	prompt = next(t, c, TypePrompt)
	assert.Equal(t, PromptDevice, prompt["kind"])
	assert.Equal(t, "location", prompt["permission"])

	send(t, c, frame{"type": TypeDecision, "promptId": prompt["promptId"], "allow": true})
	script = next(t, c, TypeScript)
	assert.Equal(t, `MiniAppBridge.execSuccessCallback("7", "ALLOWED")`, script["script"])
}

func TestSessionAsset(t *testing.T) {
	c := dial(t, newTestServer(t), "app1")
	next(t, c, TypeReady)

	send(t, c, frame{"type": TypeAsset, "requestId": "r1", "path": ""})
	asset := next(t, c, TypeAsset)
	assert.Equal(t, "r1", asset["requestId"])
	assert.Equal(t, "index.html", asset["path"])
	assert.Contains(t, asset["mimeType"], "text/html")
	assert.EqualValues(t, len("<html>hi</html>"), asset["length"])
}

func TestSessionPingAndUnknown(t *testing.T) {
	c := dial(t, newTestServer(t), "app1")
	next(t, c, TypeReady)

	send(t, c, frame{"type": TypePing})
	next(t, c, TypePong)

	send(t, c, frame{"type": "bogus"})
	notice := next(t, c, TypeError)
	assert.Equal(t, "unknown message type", notice["message"])
}

func TestBridgePayload(t *testing.T) {
	assert.Equal(t, `{"id":"1"}`, string(bridgePayload([]byte(`"{\"id\":\"1\"}"`))))
	assert.Equal(t, `{"id":"1"}`, string(bridgePayload([]byte(` {"id":"1"} `))))
}

func TestSessionCountsOutboundTypes(t *testing.T) {
	metrics := &wsMetrics{}
	c := dial(t, newMeteredServer(t, metrics), "app1")
	next(t, c, TypeReady)

	send(t, c, frame{"type": TypeBridge, "message": frame{"id": "1", "action": "getUniqueId"}})
	next(t, c, TypeScript)
	send(t, c, frame{"type": TypeAsset, "requestId": "r1", "path": ""})
	next(t, c, TypeAsset)
	send(t, c, frame{"type": TypePing})
	next(t, c, TypePong)

	assert.Eventually(t, func() bool { return len(metrics.sent()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{TypeReady, TypeScript, TypeAsset, TypePong}, metrics.sent())
}
