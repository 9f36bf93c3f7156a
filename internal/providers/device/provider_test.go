package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/securestore"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

func TestUniqueIDIsStable(t *testing.T) {
	secure := securestore.NewMemory()
	ctx := context.Background()

	first, err := NewProvider(secure, "test", nil).UniqueID(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	again, err := NewProvider(secure, "test", nil).UniqueID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestUniqueIDPerScope(t *testing.T) {
	secure := securestore.NewMemory()
	a, err := NewProvider(secure, "a", nil).UniqueID(context.Background())
	require.NoError(t, err)
	b, err := NewProvider(secure, "b", nil).UniqueID(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestUniqueIDConcurrent(t *testing.T) {
	p := NewProvider(securestore.NewMemory(), "test", nil)
	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.UniqueID(context.Background())
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUniqueIDReplacesMalformed(t *testing.T) {
	secure := securestore.NewMemory()
	require.NoError(t, secure.Write(context.Background(), "test.miniapp.device", account, []byte("nope")))

	id, err := NewProvider(secure, "test", nil).UniqueID(context.Background())
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}

type brokenStore struct{}

func (brokenStore) Read(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("keychain locked")
}

func (brokenStore) Write(context.Context, string, string, []byte) error {
	return errors.New("keychain locked")
}

func TestUniqueIDReadFailure(t *testing.T) {
	_, err := NewProvider(brokenStore{}, "test", nil).UniqueID(context.Background())
	assert.Error(t, err)
}

func TestDeviceStatus(t *testing.T) {
	secure := securestore.NewMemory()
	ctx := context.Background()
	p := NewProvider(secure, "test", nil)

	status, err := p.DeviceStatus(ctx, types.DevicePermissionLocation)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotDetermined, status)

	require.NoError(t, p.SetDeviceStatus(ctx, types.DevicePermissionLocation, types.StatusAllowed))
	status, err = NewProvider(secure, "test", nil).DeviceStatus(ctx, types.DevicePermissionLocation)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAllowed, status)

	status, err = NewProvider(secure, "other", nil).DeviceStatus(ctx, types.DevicePermissionLocation)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotDetermined, status, "a new scope starts undetermined")

	assert.Error(t, p.SetDeviceStatus(ctx, types.DevicePermissionLocation, "MAYBE"))
}

func TestDeviceStatusIgnoresGarbage(t *testing.T) {
	secure := securestore.NewMemory()
	require.NoError(t, secure.Write(context.Background(), "test.miniapp.device", "permission.location", []byte("???")))

	status, err := NewProvider(secure, "test", nil).DeviceStatus(context.Background(), types.DevicePermissionLocation)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotDetermined, status)

	_, err = NewProvider(brokenStore{}, "test", nil).DeviceStatus(context.Background(), types.DevicePermissionLocation)
	assert.Error(t, err)
}
