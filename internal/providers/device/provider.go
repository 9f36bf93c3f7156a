// Package device provides the host's stable unique id and the OS-level
// status of device permissions.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/securestore"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

const account = "uniqueId"

// Provider issues one unique id per host install scope. The id is created
// on first use and persisted in the secure store.
type Provider struct {
	secure  securestore.Store
	service string
	logger  *zap.Logger

	mu sync.Mutex
	id string
}

// NewProvider creates a device provider for scope.
func NewProvider(secure securestore.Store, scope string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		secure:  secure,
		service: scope + ".miniapp.device",
		logger:  logger.Named("device"),
	}
}

// UniqueID returns the persisted id, creating it if needed.
func (p *Provider) UniqueID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id != "" {
		return p.id, nil
	}

	data, err := p.secure.Read(ctx, p.service, account)
	switch {
	case err == nil:
		if id, perr := uuid.ParseBytes(data); perr == nil {
			p.id = id.String()
			return p.id, nil
		}
		p.logger.Warn("Stored unique id is malformed, replacing")
	case errors.Is(err, securestore.ErrNotFound), errors.Is(err, securestore.ErrTampered):
	default:
		return "", fmt.Errorf("failed to read unique id: %w", err)
	}

	id := strings.ToUpper(uuid.NewString())
	if err := p.secure.Write(ctx, p.service, account, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to persist unique id: %w", err)
	}
	p.logger.Info("Created unique id")
	p.id = id
	return id, nil
}

// DeviceStatus returns the host-wide status of permission. A permission the
// user was never asked about is NOT_DETERMINED.
func (p *Provider) DeviceStatus(ctx context.Context, permission types.DevicePermissionType) (types.GrantStatus, error) {
	data, err := p.secure.Read(ctx, p.service, permissionAccount(permission))
	switch {
	case err == nil:
	case errors.Is(err, securestore.ErrNotFound):
		return types.StatusNotDetermined, nil
	case errors.Is(err, securestore.ErrTampered):
		p.logger.Warn("Stored device permission is unreadable, asking again",
			zap.String("permission", string(permission)))
		return types.StatusNotDetermined, nil
	default:
		return "", fmt.Errorf("failed to read device permission: %w", err)
	}
	status := types.GrantStatus(data)
	if !status.Valid() {
		return types.StatusNotDetermined, nil
	}
	return status, nil
}

// SetDeviceStatus records the user's answer for permission.
func (p *Provider) SetDeviceStatus(ctx context.Context, permission types.DevicePermissionType, status types.GrantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid permission status %q", status)
	}
	if err := p.secure.Write(ctx, p.service, permissionAccount(permission), []byte(status)); err != nil {
		return fmt.Errorf("failed to persist device permission: %w", err)
	}
	p.logger.Info("Recorded device permission",
		zap.String("permission", string(permission)), zap.String("status", string(status)))
	return nil
}

func permissionAccount(permission types.DevicePermissionType) string {
	return "permission." + string(permission)
}
