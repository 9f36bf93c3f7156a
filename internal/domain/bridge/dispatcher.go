package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/id"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// Config wires a dispatcher to one mini-app instance.
type Config struct {
	AppID       string
	Host        Host
	Ads         Ads
	Prompter    Prompter
	Permissions PermissionStore
	Manifests   ManifestSource
	// Devices holds OS-level permission statuses. When nil, statuses live
	// only as long as the dispatcher.
	Devices  DeviceAuthorizations
	Recorder Recorder
	Logger   *zap.Logger
}

// Dispatcher handles the bridge messages of one mini-app instance.
type Dispatcher struct {
	appID       string
	instance    id.InstanceID
	host        Host
	ads         Ads
	permissions PermissionStore
	manifests   ManifestSource
	devices     DeviceAuthorizations
	recorder    Recorder
	prompts     *prompts
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a dispatcher. Close releases pending prompts.
func New(cfg Config) (*Dispatcher, error) {
	if err := types.ValidateKey(cfg.AppID); err != nil {
		return nil, err
	}
	if cfg.Host == nil {
		return nil, errors.New("bridge: host is required")
	}
	if cfg.Permissions == nil {
		return nil, errors.New("bridge: permission store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	devices := cfg.Devices
	if devices == nil {
		devices = &memoryDevices{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	instance := id.NewInstanceID()
	d := &Dispatcher{
		appID:       cfg.AppID,
		instance:    instance,
		host:        cfg.Host,
		ads:         cfg.Ads,
		permissions: cfg.Permissions,
		manifests:   cfg.Manifests,
		devices:     devices,
		recorder:    cfg.Recorder,
		logger: logger.Named("bridge").With(
			zap.String("app_id", cfg.AppID),
			zap.String("instance_id", instance.String()),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	d.prompts = &prompts{
		base:     ctx,
		appID:    cfg.AppID,
		prompter: cfg.Prompter,
		recorder: cfg.Recorder,
	}
	return d, nil
}

// AppID returns the mini-app this dispatcher serves.
func (d *Dispatcher) AppID() string { return d.appID }

// Instance returns the id of this mini-app instance.
func (d *Dispatcher) Instance() id.InstanceID { return d.instance }

// Close cancels pending prompts and in-flight commands. Their messages
// still complete, with an error.
func (d *Dispatcher) Close() {
	d.cancel()
}

// Dispatch parses and handles raw. The returned channel yields exactly one
// response for an accepted message and is then closed. A message without a
// usable id is dropped and the channel is closed empty.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) <-chan Response {
	out := make(chan Response, 1)

	msg, err := ParseMessage(raw)
	if msg == nil {
		d.logger.Warn("Dropping unanswerable bridge message", zap.Error(err), zap.Int("size", len(raw)))
		d.record("unknown", "dropped")
		close(out)
		return out
	}
	if err != nil {
		d.logger.Debug("Malformed bridge message", zap.String("message_id", msg.ID), zap.Error(err))
		d.record("unknown", ErrNameUnexpectedMessageFormat)
		out <- Response{ID: msg.ID, Err: errUnexpectedFormat()}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		out <- d.Handle(ctx, msg)
	}()
	return out
}

// Handle runs msg to completion and returns its response.
func (d *Dispatcher) Handle(ctx context.Context, msg *Message) (resp Response) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	requestID := id.NewRequestID()
	resp.ID = msg.ID
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Bridge command panicked",
				zap.String("action", string(msg.Action)), zap.Any("panic", r))
			resp = Response{ID: msg.ID, Err: errInternal()}
		}
		outcome := "success"
		if resp.Err != nil {
			outcome = resp.Err.Name
		}
		d.record(string(msg.Action), outcome)
		d.logger.Debug("Bridge command completed",
			zap.String("request_id", requestID.String()),
			zap.String("message_id", msg.ID),
			zap.String("action", string(msg.Action)),
			zap.String("outcome", outcome))
	}()

	value, err := d.run(ctx, msg)
	if err != nil {
		resp.Err = asEncoded(err)
		if resp.Err.Name == ErrNameInternal {
			d.logger.Warn("Bridge command failed",
				zap.String("action", string(msg.Action)), zap.Error(err))
		}
		return resp
	}
	resp.Value = value
	return resp
}

func (d *Dispatcher) run(ctx context.Context, msg *Message) (string, error) {
	switch msg.Action {
	case ActionGetUniqueID:
		return d.host.UniqueID(ctx)

	case ActionGetCurrentPosition:
		if err := d.gateDevice(ctx, types.DevicePermissionLocation); err != nil {
			return "", err
		}
		pos, err := d.host.CurrentPosition(ctx)
		if err != nil {
			return "", err
		}
		return encode(pos)

	case ActionRequestPermission:
		var p permissionParam
		if err := msg.decodeParam(&p); err != nil {
			return "", errUnexpectedFormat()
		}
		permission, ok := types.ParseDevicePermissionType(p.Permission)
		if !ok {
			return "", errInvalidPermissionType()
		}
		if err := d.gateDevice(ctx, permission); err != nil {
			return "", err
		}
		return string(types.StatusAllowed), nil

	case ActionRequestCustomPermissions:
		return d.requestCustomPermissions(ctx, msg)

	case ActionShareInfo:
		var p shareParam
		if err := msg.decodeParam(&p); err != nil || p.ShareInfo.Content == "" {
			return "", errUnexpectedFormat()
		}
		if err := d.host.Share(ctx, types.ShareInfo{Content: p.ShareInfo.Content}); err != nil {
			return "", err
		}
		return "SUCCESS", nil

	case ActionGetUserName:
		if err := d.gateCustom(ctx, types.PermissionUserName); err != nil {
			return "", err
		}
		return d.host.UserName(ctx)

	case ActionGetProfilePhoto:
		if err := d.gateCustom(ctx, types.PermissionProfilePhoto); err != nil {
			return "", err
		}
		return d.host.ProfilePhoto(ctx)

	case ActionGetContacts:
		if err := d.gateCustom(ctx, types.PermissionContactsList); err != nil {
			return "", err
		}
		contacts, err := d.host.Contacts(ctx)
		if err != nil {
			return "", err
		}
		if contacts == nil {
			contacts = []types.Contact{}
		}
		return encode(contacts)

	case ActionGetAccessToken:
		return d.accessToken(ctx, msg)

	case ActionLoadInterstitialAd, ActionShowInterstitialAd, ActionLoadRewardedAd, ActionShowRewardedAd:
		return d.ad(ctx, msg)
	}
	return "", errUnexpectedFormat()
}

func (d *Dispatcher) accessToken(ctx context.Context, msg *Message) (string, error) {
	var p accessTokenParam
	if err := msg.decodeParam(&p); err != nil {
		return "", errUnexpectedFormat()
	}
	requested := types.ScopeDeclaration{Audience: p.Audience, Scopes: p.Scopes}
	manifest := d.manifest(ctx)
	if manifest == nil || !manifest.AllowsScopes(requested) {
		return "", errScopesNotSupported()
	}
	token, err := d.host.AccessToken(ctx, d.appID, requested)
	if err != nil {
		return "", err
	}
	return encode(token)
}

func (d *Dispatcher) ad(ctx context.Context, msg *Message) (string, error) {
	var p adParam
	if err := msg.decodeParam(&p); err != nil || p.AdUnitID == "" {
		return "", errUnexpectedFormat()
	}
	if d.ads == nil {
		return "", HostError("Ads are not supported by the host app")
	}

	var err error
	switch msg.Action {
	case ActionLoadInterstitialAd:
		err = d.ads.LoadInterstitial(ctx, p.AdUnitID)
	case ActionShowInterstitialAd:
		err = d.ads.ShowInterstitial(ctx, p.AdUnitID)
	case ActionLoadRewardedAd:
		err = d.ads.LoadRewarded(ctx, p.AdUnitID)
	case ActionShowRewardedAd:
		reward, err := d.ads.ShowRewarded(ctx, p.AdUnitID)
		if err != nil {
			return "", err
		}
		return encode(reward)
	}
	if err != nil {
		return "", err
	}
	return "SUCCESS", nil
}

// manifest returns the cached manifest or nil.
func (d *Dispatcher) manifest(ctx context.Context) *types.Manifest {
	if d.manifests == nil {
		return nil
	}
	m, err := d.manifests.Get(ctx, d.appID)
	if err != nil {
		d.logger.Debug("No cached manifest", zap.Error(err))
		return nil
	}
	return m
}

func (d *Dispatcher) record(action, outcome string) {
	if d.recorder != nil {
		d.recorder.RecordBridgeCommand(action, outcome)
	}
}

func encode(v any) (string, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode bridge value: %w", err)
	}
	return string(data), nil
}
