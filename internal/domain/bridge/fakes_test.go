package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/manifest"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/kv"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/securestore"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

type fakeHost struct {
	positionCalls atomic.Int32
	userNameCalls atomic.Int32
	shared        []string
	mu            sync.Mutex
	panicOnName   bool
}

func (h *fakeHost) UniqueID(ctx context.Context) (string, error) { return "device-123", nil }

func (h *fakeHost) CurrentPosition(ctx context.Context) (types.Position, error) {
	h.positionCalls.Add(1)
	return types.Position{Latitude: 35.6, Longitude: 139.7, Accuracy: 5}, nil
}

func (h *fakeHost) Share(ctx context.Context, info types.ShareInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shared = append(h.shared, info.Content)
	return nil
}

func (h *fakeHost) UserName(ctx context.Context) (string, error) {
	h.userNameCalls.Add(1)
	if h.panicOnName {
		panic("boom")
	}
	return "Jane", nil
}

func (h *fakeHost) ProfilePhoto(ctx context.Context) (string, error) {
	return "", errors.New("camera roll unavailable")
}

func (h *fakeHost) Contacts(ctx context.Context) ([]types.Contact, error) {
	return []types.Contact{{ID: "c1", Name: "Ann", Email: "ann@example.com"}}, nil
}

func (h *fakeHost) AccessToken(ctx context.Context, appID string, scopes types.ScopeDeclaration) (types.AccessToken, error) {
	return types.AccessToken{Token: "tok-" + appID, Scopes: scopes}, nil
}

// fakePrompter answers with a fixed decision. When gate is set, each prompt
// blocks until a value arrives on it.
type fakePrompter struct {
	decision Decision
	gate     chan struct{}
	entered  chan string

	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	mu      sync.Mutex
	asked   [][]types.PermissionDeclaration
}

func (p *fakePrompter) wait(ctx context.Context, key string) (Decision, error) {
	p.calls.Add(1)
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if p.entered != nil {
		p.entered <- key
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return DecisionDeny, ctx.Err()
		}
	}
	return p.decision, nil
}

func (p *fakePrompter) RequestDevicePermission(ctx context.Context, appID string, permission types.DevicePermissionType) (Decision, error) {
	return p.wait(ctx, deviceKey(permission))
}

func (p *fakePrompter) RequestCustomPermissions(ctx context.Context, appID string, permissions []types.PermissionDeclaration) (Decision, error) {
	p.mu.Lock()
	p.asked = append(p.asked, permissions)
	p.mu.Unlock()
	return p.wait(ctx, customKey(permissions))
}

type fixture struct {
	d         *Dispatcher
	host      *fakeHost
	prompter  *fakePrompter
	perms     *permission.Store
	manifests *manifest.Cache
	devices   *memoryDevices
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		host:      &fakeHost{},
		prompter:  &fakePrompter{decision: DecisionAllow},
		perms:     permission.NewStore(securestore.NewMemory(), "test", nil),
		manifests: manifest.NewCache(kv.NewMemory(), nil),
		devices:   &memoryDevices{},
	}
	d, err := New(Config{
		AppID:       "app-a",
		Host:        f.host,
		Prompter:    f.prompter,
		Permissions: f.perms,
		Manifests:   f.manifests,
		Devices:     f.devices,
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	f.d = d
	return f
}

func (f *fixture) setStatus(t *testing.T, pt types.PermissionType, status types.GrantStatus) {
	t.Helper()
	ctx := context.Background()
	_, err := f.perms.Get(ctx, "app-a")
	require.NoError(t, err)
	_, err = f.perms.Set(ctx, "app-a", []types.PermissionRecord{{Type: pt, Status: status}})
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T, pt types.PermissionType) types.GrantStatus {
	t.Helper()
	s, err := f.perms.Status(context.Background(), "app-a", pt)
	require.NoError(t, err)
	return s
}

func (f *fixture) setDevice(t *testing.T, status types.GrantStatus) {
	t.Helper()
	require.NoError(t, f.devices.SetDeviceStatus(context.Background(), types.DevicePermissionLocation, status))
}

func (f *fixture) device(t *testing.T) types.GrantStatus {
	t.Helper()
	s, err := f.devices.DeviceStatus(context.Background(), types.DevicePermissionLocation)
	require.NoError(t, err)
	return s
}

func (f *fixture) declare(t *testing.T, pts ...types.PermissionType) {
	t.Helper()
	m := &types.Manifest{
		VersionID:         "v1",
		AccessTokenScopes: []types.ScopeDeclaration{{Audience: "rae", Scopes: []string{"idinfo_read_openid", "memberinfo"}}},
	}
	for _, pt := range pts {
		m.OptionalPermissions = append(m.OptionalPermissions, types.PermissionDeclaration{Type: pt, Description: "needed"})
	}
	require.NoError(t, f.manifests.Put(context.Background(), "app-a", m))
}

// call dispatches raw and returns its single response, failing if a second
// one arrives.
func (f *fixture) call(t *testing.T, raw string) Response {
	t.Helper()
	ch := f.d.Dispatch(context.Background(), []byte(raw))
	resp, ok := <-ch
	require.True(t, ok, "no response for %s", raw)
	_, more := <-ch
	require.False(t, more, "second response for %s", raw)
	return resp
}
