package bridge

import (
	"context"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

func TestGetUniqueIDRespondsOnce(t *testing.T) {
	f := newFixture(t)
	resp := f.call(t, `{"id":"1","action":"getUniqueId"}`)
	assert.True(t, resp.OK())
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, "device-123", resp.Value)
}

func TestNumericIDIsAccepted(t *testing.T) {
	f := newFixture(t)
	resp := f.call(t, `{"id":42,"action":"getUniqueId"}`)
	assert.Equal(t, "42", resp.ID)
}

func TestMalformedMessages(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		raw  string
		id   string
	}{
		{"unknown action", `{"id":"a","action":"launchMissiles"}`, "a"},
		{"missing action", `{"id":"b"}`, "b"},
		{"truncated", `{"id":"c","action":"getUni`, "c"},
		{"bad param", `{"id":"d","action":"requestPermission","param":"location"}`, "d"},
		{"missing param", `{"id":"e","action":"shareInfo"}`, "e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.call(t, tt.raw)
			require.False(t, resp.OK())
			assert.Equal(t, tt.id, resp.ID)
			assert.Equal(t, ErrNameUnexpectedMessageFormat, resp.Err.Name)
		})
	}
}

func TestMessageWithoutIDIsDropped(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{`{"action":"getUniqueId"}`, `not json`, `[1,2]`, `{"id":{"x":1}}`} {
		_, ok := <-f.d.Dispatch(context.Background(), []byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestDeniedLocationNeverInvokesCapability(t *testing.T) {
	f := newFixture(t)

	resp := f.call(t, `{"id":"1","action":"getCurrentPosition"}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNamePermissionDenied, resp.Err.Name)
	assert.Equal(t, int32(0), f.host.positionCalls.Load())
	assert.Equal(t, int32(0), f.prompter.calls.Load())

	f.setDevice(t, types.StatusAllowed)
	resp = f.call(t, `{"id":"2","action":"requestPermission","param":{"permission":"location"}}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNamePermissionDenied, resp.Err.Name, "OS grant does not override the record")
	assert.Equal(t, int32(0), f.prompter.calls.Load())
}

func TestAllowedLocationInvokesCapability(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, types.PermissionDeviceLocation, types.StatusAllowed)
	f.setDevice(t, types.StatusAllowed)

	resp := f.call(t, `{"id":"1","action":"getCurrentPosition"}`)
	require.True(t, resp.OK(), "%v", resp.Err)
	assert.Equal(t, int32(1), f.host.positionCalls.Load())
	assert.Equal(t, int32(0), f.prompter.calls.Load())

	var pos types.Position
	require.NoError(t, sonic.UnmarshalString(resp.Value, &pos))
	assert.InDelta(t, 35.6, pos.Latitude, 0.001)
}

func TestRestrictedLocation(t *testing.T) {
	t.Run("record", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.PermissionDeviceLocation, types.StatusRestricted)
		f.setDevice(t, types.StatusAllowed)

		resp := f.call(t, `{"id":"1","action":"requestPermission","param":{"permission":"location"}}`)
		require.False(t, resp.OK())
		assert.Equal(t, ErrNamePermissionRestricted, resp.Err.Name)
		assert.Equal(t, int32(0), f.prompter.calls.Load())
	})

	t.Run("os", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.PermissionDeviceLocation, types.StatusAllowed)
		f.setDevice(t, types.StatusRestricted)

		resp := f.call(t, `{"id":"1","action":"getCurrentPosition"}`)
		require.False(t, resp.OK())
		assert.Equal(t, ErrNamePermissionRestricted, resp.Err.Name)
		assert.Equal(t, int32(0), f.prompter.calls.Load())
		assert.Equal(t, int32(0), f.host.positionCalls.Load())
	})
}

func TestNotDeterminedPromptsAndPersists(t *testing.T) {
	t.Run("allow", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.PermissionDeviceLocation, types.StatusNotDetermined)
		f.setDevice(t, types.StatusAllowed)

		resp := f.call(t, `{"id":"1","action":"getCurrentPosition"}`)
		require.True(t, resp.OK(), "%v", resp.Err)
		assert.Equal(t, int32(1), f.prompter.calls.Load())
		assert.Equal(t, int32(1), f.host.positionCalls.Load())
		assert.Equal(t, types.StatusAllowed, f.status(t, types.PermissionDeviceLocation))

		f.call(t, `{"id":"2","action":"getCurrentPosition"}`)
		assert.Equal(t, int32(1), f.prompter.calls.Load(), "decision is remembered")
	})

	t.Run("deny", func(t *testing.T) {
		f := newFixture(t)
		f.prompter.decision = DecisionDeny
		f.setStatus(t, types.PermissionDeviceLocation, types.StatusAllowed)

		resp := f.call(t, `{"id":"1","action":"requestPermission","param":{"permission":"location"}}`)
		require.False(t, resp.OK())
		assert.Equal(t, ErrNamePermissionDenied, resp.Err.Name)
		assert.Equal(t, int32(1), f.prompter.calls.Load())
		assert.Equal(t, types.StatusDenied, f.device(t))
		assert.Equal(t, types.StatusAllowed, f.status(t, types.PermissionDeviceLocation))
	})
}

func TestRequestPermission(t *testing.T) {
	f := newFixture(t)

	resp := f.call(t, `{"id":"1","action":"requestPermission","param":{"permission":"camera"}}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNameInvalidPermissionType, resp.Err.Name)

	f.setStatus(t, types.PermissionDeviceLocation, types.StatusAllowed)
	f.setDevice(t, types.StatusAllowed)
	resp = f.call(t, `{"id":"2","action":"requestPermission","param":{"permission":"location"}}`)
	require.True(t, resp.OK())
	assert.Equal(t, "ALLOWED", resp.Value)
}

func TestRequestPermissionAsksOSAfterCustomGrant(t *testing.T) {
	f := newFixture(t)

	resp := f.call(t, `{"id":"1","action":"requestCustomPermissions","param":{"permissions":[{"name":"rakuten.miniapp.device.LOCATION"}]}}`)
	require.True(t, resp.OK(), "%v", resp.Err)
	assert.Equal(t, int32(1), f.prompter.calls.Load())
	assert.Equal(t, types.StatusNotDetermined, f.device(t), "custom grant leaves the OS status alone")

	resp = f.call(t, `{"id":"2","action":"requestPermission","param":{"permission":"location"}}`)
	require.True(t, resp.OK(), "%v", resp.Err)
	assert.Equal(t, "ALLOWED", resp.Value)
	assert.Equal(t, int32(2), f.prompter.calls.Load())
	assert.Equal(t, types.StatusAllowed, f.device(t))

	resp = f.call(t, `{"id":"3","action":"requestPermission","param":{"permission":"location"}}`)
	require.True(t, resp.OK())
	assert.Equal(t, int32(2), f.prompter.calls.Load())
}

func TestCurrentPositionNeedsBothGrants(t *testing.T) {
	f := newFixture(t)
	f.prompter.decision = DecisionDeny
	f.setStatus(t, types.PermissionDeviceLocation, types.StatusAllowed)

	resp := f.call(t, `{"id":"1","action":"getCurrentPosition"}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNamePermissionDenied, resp.Err.Name)
	assert.Equal(t, int32(1), f.prompter.calls.Load(), "OS prompt after the custom grant")
	assert.Equal(t, types.StatusDenied, f.device(t))
	assert.Equal(t, int32(0), f.host.positionCalls.Load())

	f.setDevice(t, types.StatusAllowed)
	resp = f.call(t, `{"id":"2","action":"getCurrentPosition"}`)
	require.True(t, resp.OK(), "%v", resp.Err)
	assert.Equal(t, int32(1), f.host.positionCalls.Load())
}

func TestGatedUserData(t *testing.T) {
	f := newFixture(t)

	resp := f.call(t, `{"id":"1","action":"getUserName"}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNamePermissionDenied, resp.Err.Name)
	assert.Equal(t, int32(0), f.host.userNameCalls.Load())

	f.setStatus(t, types.PermissionUserName, types.StatusAllowed)
	resp = f.call(t, `{"id":"2","action":"getUserName"}`)
	require.True(t, resp.OK())
	assert.Equal(t, "Jane", resp.Value)

	f.setStatus(t, types.PermissionContactsList, types.StatusAllowed)
	resp = f.call(t, `{"id":"3","action":"getContacts"}`)
	require.True(t, resp.OK())
	assert.JSONEq(t, `[{"id":"c1","name":"Ann","email":"ann@example.com"}]`, resp.Value)

	f.setStatus(t, types.PermissionProfilePhoto, types.StatusAllowed)
	resp = f.call(t, `{"id":"4","action":"getProfilePhoto"}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNameInternal, resp.Err.Name, "host errors stay native")
}

func TestCapabilityPanicBecomesInternalError(t *testing.T) {
	f := newFixture(t)
	f.host.panicOnName = true
	f.setStatus(t, types.PermissionUserName, types.StatusAllowed)

	resp := f.call(t, `{"id":"1","action":"getUserName"}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNameInternal, resp.Err.Name)
}

func TestShareInfo(t *testing.T) {
	f := newFixture(t)
	resp := f.call(t, `{"id":"1","action":"shareInfo","param":{"shareInfo":{"content":"hello"}}}`)
	require.True(t, resp.OK())
	assert.Equal(t, []string{"hello"}, f.host.shared)

	resp = f.call(t, `{"id":"2","action":"shareInfo","param":{"shareInfo":{"content":""}}}`)
	assert.Equal(t, ErrNameUnexpectedMessageFormat, resp.Err.Name)
}

func TestAccessTokenScopes(t *testing.T) {
	f := newFixture(t)

	resp := f.call(t, `{"id":"1","action":"getAccessToken","param":{"audience":"rae","scopes":["memberinfo"]}}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNameScopesNotSupported, resp.Err.Name, "no manifest cached")

	f.declare(t)
	resp = f.call(t, `{"id":"2","action":"getAccessToken","param":{"audience":"rae","scopes":["memberinfo"]}}`)
	require.True(t, resp.OK(), "%v", resp.Err)
	var token types.AccessToken
	require.NoError(t, sonic.UnmarshalString(resp.Value, &token))
	assert.Equal(t, "tok-app-a", token.Token)

	resp = f.call(t, `{"id":"3","action":"getAccessToken","param":{"audience":"rae","scopes":["admin"]}}`)
	assert.Equal(t, ErrNameScopesNotSupported, resp.Err.Name)
}

func TestAdsWithoutProvider(t *testing.T) {
	f := newFixture(t)
	resp := f.call(t, `{"id":"1","action":"loadRewardedAd","param":{"adUnitId":"unit-1"}}`)
	require.False(t, resp.OK())
	assert.Equal(t, ErrNameHostApp, resp.Err.Name)
}

func TestCloseCompletesPendingPrompt(t *testing.T) {
	f := newFixture(t)
	f.prompter.gate = make(chan struct{})
	f.prompter.entered = make(chan string, 1)
	f.setStatus(t, types.PermissionDeviceLocation, types.StatusNotDetermined)

	ch := f.d.Dispatch(context.Background(), []byte(`{"id":"1","action":"getCurrentPosition"}`))
	<-f.prompter.entered
	f.d.Close()

	resp := <-ch
	require.False(t, resp.OK())
	assert.Equal(t, ErrNamePermissionNotDetermined, resp.Err.Name)
	assert.Equal(t, types.StatusNotDetermined, f.status(t, types.PermissionDeviceLocation))
	assert.Equal(t, int32(0), f.host.positionCalls.Load())
}
