package bridge

import (
	"context"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// Host is the set of native capabilities a mini-app can reach. Methods may
// return an *EncodedError to control what the mini-app sees; any other
// error is reported as internalError.
type Host interface {
	UniqueID(ctx context.Context) (string, error)
	CurrentPosition(ctx context.Context) (types.Position, error)
	Share(ctx context.Context, info types.ShareInfo) error
	UserName(ctx context.Context) (string, error)
	ProfilePhoto(ctx context.Context) (string, error)
	Contacts(ctx context.Context) ([]types.Contact, error)
	AccessToken(ctx context.Context, appID string, scopes types.ScopeDeclaration) (types.AccessToken, error)
}

// Ads is the optional advertising capability.
type Ads interface {
	LoadInterstitial(ctx context.Context, adUnitID string) error
	ShowInterstitial(ctx context.Context, adUnitID string) error
	LoadRewarded(ctx context.Context, adUnitID string) error
	ShowRewarded(ctx context.Context, adUnitID string) (types.Reward, error)
}

// Decision is the user's answer to a permission prompt.
type Decision int

const (
	DecisionDeny Decision = iota
	DecisionAllow
)

func (d Decision) String() string {
	if d == DecisionAllow {
		return "allow"
	}
	return "deny"
}

// Prompter asks the user about permissions. A returned error means no
// decision was made.
type Prompter interface {
	RequestDevicePermission(ctx context.Context, appID string, permission types.DevicePermissionType) (Decision, error)
	RequestCustomPermissions(ctx context.Context, appID string, permissions []types.PermissionDeclaration) (Decision, error)
}

// PermissionStore is the grant storage consulted before gated commands.
type PermissionStore interface {
	Get(ctx context.Context, appID string) ([]types.PermissionRecord, error)
	Set(ctx context.Context, appID string, updates []types.PermissionRecord) ([]types.PermissionRecord, error)
}

// DeviceAuthorizations holds the host-wide status of OS-level permissions.
// A permission never asked about is NOT_DETERMINED.
type DeviceAuthorizations interface {
	DeviceStatus(ctx context.Context, permission types.DevicePermissionType) (types.GrantStatus, error)
	SetDeviceStatus(ctx context.Context, permission types.DevicePermissionType, status types.GrantStatus) error
}

// ManifestSource returns the cached manifest of a mini-app.
type ManifestSource interface {
	Get(ctx context.Context, appID string) (*types.Manifest, error)
}

// Renderer evaluates scripts in the mini-app's web view.
type Renderer interface {
	EvaluateJavaScript(script string) error
}

// Recorder receives dispatch and prompt outcomes.
type Recorder interface {
	RecordBridgeCommand(action, outcome string)
	RecordPrompt(kind, decision string)
}
