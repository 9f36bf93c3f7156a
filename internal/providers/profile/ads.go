package profile

import (
	"context"
	"slices"
	"sync"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

type adKind int

const (
	interstitial adKind = iota
	rewarded
)

type adKey struct {
	kind adKind
	unit string
}

// Ads simulates an ad network. An ad must be loaded before it is shown and
// each load serves one show.
type Ads struct {
	cfg AdsConfig

	mu     sync.Mutex
	loaded map[adKey]bool
}

// NewAds returns nil when ads are disabled in the profile.
func NewAds(p *Profile) *Ads {
	if p == nil || !p.Ads.Enabled {
		return nil
	}
	return &Ads{cfg: p.Ads, loaded: make(map[adKey]bool)}
}

func (a *Ads) load(kind adKind, unit string) error {
	if unit == "" {
		return bridge.HostError("Ad unit id is required")
	}
	if len(a.cfg.Units) > 0 && !slices.Contains(a.cfg.Units, unit) {
		return bridge.HostError("Unknown ad unit " + unit)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded[adKey{kind, unit}] = true
	return nil
}

func (a *Ads) show(kind adKind, unit string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := adKey{kind, unit}
	if !a.loaded[key] {
		return bridge.HostError("Ad " + unit + " is not loaded")
	}
	delete(a.loaded, key)
	return nil
}

func (a *Ads) LoadInterstitial(ctx context.Context, adUnitID string) error {
	return a.load(interstitial, adUnitID)
}

func (a *Ads) ShowInterstitial(ctx context.Context, adUnitID string) error {
	return a.show(interstitial, adUnitID)
}

func (a *Ads) LoadRewarded(ctx context.Context, adUnitID string) error {
	return a.load(rewarded, adUnitID)
}

func (a *Ads) ShowRewarded(ctx context.Context, adUnitID string) (types.Reward, error) {
	if err := a.show(rewarded, adUnitID); err != nil {
		return types.Reward{}, err
	}
	return types.Reward{Type: a.cfg.Reward.Type, Amount: a.cfg.Reward.Amount}, nil
}
