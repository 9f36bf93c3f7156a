package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// gateDevice resolves a device permission in two steps: the mini-app's
// custom record for it, then the host-wide OS-level status. Each step
// prompts on its own when not determined.
func (d *Dispatcher) gateDevice(ctx context.Context, permission types.DevicePermissionType) error {
	if err := d.gateCustom(ctx, permission.PermissionType()); err != nil {
		return err
	}
	status, err := d.devices.DeviceStatus(ctx, permission)
	if err != nil {
		d.logger.Warn("Failed to read device permission", zap.String("permission", string(permission)), zap.Error(err))
		return errInternal()
	}
	return d.resolve(ctx, string(permission), status,
		func(ctx context.Context) (Decision, error) {
			return d.prompts.device(ctx, permission)
		},
		func(ctx context.Context, status types.GrantStatus) error {
			return d.devices.SetDeviceStatus(ctx, permission, status)
		})
}

// gateCustom resolves the grant of a custom permission, prompting for that
// type alone when it is not determined.
func (d *Dispatcher) gateCustom(ctx context.Context, t types.PermissionType) error {
	return d.gate(ctx, t, func(ctx context.Context) (Decision, error) {
		decl := describe(d.manifest(ctx), types.PermissionDeclaration{Type: t})
		return d.prompts.custom(ctx, []types.PermissionDeclaration{decl})
	})
}

// describe fills the prompt reason and required flag of decl from m.
// A reason sent by the mini-app wins over the manifest's.
func describe(m *types.Manifest, decl types.PermissionDeclaration) types.PermissionDeclaration {
	if m == nil {
		return decl
	}
	for _, declared := range m.Permissions() {
		if declared.Type != decl.Type {
			continue
		}
		if decl.Description == "" {
			decl.Description = declared.Description
		}
		decl.Required = m.IsRequired(decl.Type)
	}
	return decl
}

func (d *Dispatcher) gate(ctx context.Context, t types.PermissionType, prompt func(context.Context) (Decision, error)) error {
	records, err := d.permissions.Get(ctx, d.appID)
	if records == nil {
		d.logger.Warn("Failed to read permissions", zap.Error(err))
		return errInternal()
	}
	if err != nil {
		d.logger.Warn("Permission store degraded", zap.Error(err))
	}

	record, ok := types.FindRecord(records, t)
	if !ok {
		return errDenied()
	}
	return d.resolve(ctx, string(t), record.Status, prompt, func(ctx context.Context, status types.GrantStatus) error {
		_, err := d.permissions.Set(ctx, d.appID, []types.PermissionRecord{{Type: t, Status: status}})
		return err
	})
}

// resolve turns a stored status into a verdict, prompting and persisting
// the answer when the status is not determined.
func (d *Dispatcher) resolve(ctx context.Context, name string, status types.GrantStatus,
	prompt func(context.Context) (Decision, error),
	persist func(context.Context, types.GrantStatus) error,
) error {
	switch status {
	case types.StatusAllowed:
		return nil
	case types.StatusRestricted:
		return errRestricted()
	case types.StatusNotDetermined:
	default:
		return errDenied()
	}

	decision, err := prompt(ctx)
	if err != nil {
		d.logger.Info("Permission prompt ended without a decision",
			zap.String("permission", name), zap.Error(err))
		return errNotDetermined()
	}

	status = types.StatusDenied
	if decision == DecisionAllow {
		status = types.StatusAllowed
	}
	if err := persist(ctx, status); err != nil {
		d.logger.Warn("Failed to persist permission decision",
			zap.String("permission", name), zap.Error(err))
	}
	if decision != DecisionAllow {
		return errDenied()
	}
	return nil
}

// memoryDevices keeps device statuses for the life of one dispatcher.
type memoryDevices struct {
	mu       sync.Mutex
	statuses map[types.DevicePermissionType]types.GrantStatus
}

func (m *memoryDevices) DeviceStatus(ctx context.Context, permission types.DevicePermissionType) (types.GrantStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.statuses[permission]; ok {
		return s, nil
	}
	return types.StatusNotDetermined, nil
}

func (m *memoryDevices) SetDeviceStatus(ctx context.Context, permission types.DevicePermissionType, status types.GrantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[types.DevicePermissionType]types.GrantStatus)
	}
	m.statuses[permission] = status
	return nil
}
