package profile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// IDSource supplies the host's unique id.
type IDSource interface {
	UniqueID(ctx context.Context) (string, error)
}

// Host serves bridge capabilities from a Profile.
type Host struct {
	profile *Profile
	ids     IDSource
	now     func() time.Time
	logger  *zap.Logger

	mu     sync.Mutex
	shared []types.ShareInfo
}

// NewHost creates a profile-backed host.
func NewHost(p *Profile, ids IDSource, logger *zap.Logger) *Host {
	if p == nil {
		p = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{profile: p, ids: ids, now: time.Now, logger: logger.Named("profile")}
}

func (h *Host) UniqueID(ctx context.Context) (string, error) {
	return h.ids.UniqueID(ctx)
}

func (h *Host) CurrentPosition(ctx context.Context) (types.Position, error) {
	loc := h.profile.Location
	if loc == nil {
		return types.Position{}, bridge.HostError("Location is not available")
	}
	return types.Position{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Accuracy:  loc.Accuracy,
		Timestamp: h.now().UnixMilli(),
	}, nil
}

// Share records the content. Shared returns what was shared so far.
func (h *Host) Share(ctx context.Context, info types.ShareInfo) error {
	h.mu.Lock()
	h.shared = append(h.shared, info)
	h.mu.Unlock()
	h.logger.Info("Shared content", zap.Int("length", len(info.Content)))
	return nil
}

// Shared returns a copy of the shared contents.
func (h *Host) Shared() []types.ShareInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.ShareInfo(nil), h.shared...)
}

func (h *Host) UserName(ctx context.Context) (string, error) {
	if h.profile.UserName == "" {
		return "", bridge.HostError("User name is not available")
	}
	return h.profile.UserName, nil
}

func (h *Host) ProfilePhoto(ctx context.Context) (string, error) {
	if h.profile.ProfilePhoto == "" {
		return "", bridge.HostError("Profile photo is not available")
	}
	return h.profile.ProfilePhoto, nil
}

func (h *Host) Contacts(ctx context.Context) ([]types.Contact, error) {
	out := make([]types.Contact, 0, len(h.profile.Contacts))
	return append(out, h.profile.Contacts...), nil
}

// AccessToken issues an opaque token for the already validated scopes.
func (h *Host) AccessToken(ctx context.Context, appID string, scopes types.ScopeDeclaration) (types.AccessToken, error) {
	token := types.AccessToken{
		Token:      uuid.NewString(),
		ValidUntil: h.now().Add(h.profile.Token.TTL).UnixMilli(),
		Scopes:     scopes,
	}
	h.logger.Debug("Issued access token",
		zap.String("app_id", appID), zap.String("audience", scopes.Audience))
	return token, nil
}

var (
	_ bridge.Host = (*Host)(nil)
	_ bridge.Ads  = (*Ads)(nil)
)
