package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

type customPermissionResult struct {
	Name   types.PermissionType `json:"name"`
	Status types.GrantStatus    `json:"status"`
}

// requestCustomPermissions asks for several custom permissions with one
// allow or don't-allow decision. Types the cached manifest does not declare
// are reported denied and never prompted for. Types already allowed are not
// asked again.
func (d *Dispatcher) requestCustomPermissions(ctx context.Context, msg *Message) (string, error) {
	var p customPermissionParam
	if err := msg.decodeParam(&p); err != nil || len(p.Permissions) == 0 {
		return "", errUnexpectedFormat()
	}

	var requested []types.PermissionDeclaration
	seen := make(map[types.PermissionType]bool)
	for _, entry := range p.Permissions {
		t, ok := types.ParsePermissionType(entry.Name)
		if !ok {
			return "", errInvalidPermissionType()
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		requested = append(requested, types.PermissionDeclaration{Type: t, Description: entry.Description})
	}

	records, err := d.permissions.Get(ctx, d.appID)
	if records == nil {
		d.logger.Warn("Failed to read permissions", zap.Error(err))
		return "", errInternal()
	}

	manifest := d.manifest(ctx)
	result := make(map[types.PermissionType]types.GrantStatus, len(requested))
	var pending []types.PermissionDeclaration
	for _, req := range requested {
		if manifest != nil && !manifest.Declares(req.Type) {
			result[req.Type] = types.StatusDenied
			continue
		}
		record, _ := types.FindRecord(records, req.Type)
		switch record.Status {
		case types.StatusAllowed, types.StatusRestricted:
			result[req.Type] = record.Status
		default:
			pending = append(pending, describe(manifest, req))
		}
	}

	if len(pending) > 0 {
		decision, err := d.prompts.custom(ctx, pending)
		if err != nil {
			d.logger.Info("Custom permission prompt ended without a decision", zap.Error(err))
			return "", errNotDetermined()
		}
		if decision != DecisionAllow {
			return "", errCustomDenied()
		}

		updates := make([]types.PermissionRecord, len(pending))
		for i, req := range pending {
			updates[i] = types.PermissionRecord{Type: req.Type, Status: types.StatusAllowed}
			result[req.Type] = types.StatusAllowed
		}
		if _, err := d.permissions.Set(ctx, d.appID, updates); err != nil {
			d.logger.Warn("Failed to persist custom permissions", zap.Error(err))
		}
	}

	out := struct {
		Permissions []customPermissionResult `json:"permissions"`
	}{Permissions: make([]customPermissionResult, len(requested))}
	for i, req := range requested {
		out.Permissions[i] = customPermissionResult{Name: req.Type, Status: result[req.Type]}
	}
	return encode(out)
}
