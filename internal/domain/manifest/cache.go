// Package manifest caches the most recent manifest of each mini-app and
// answers whether a backend version makes it stale.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/kv"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/keylock"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

var (
	ErrNotFound       = errors.New("manifest not cached")
	ErrMissingVersion = errors.New("manifest has no version id")
)

const keyPrefix = "manifest/"

// Entry is the stored form of a cached manifest.
type Entry struct {
	Manifest types.Manifest `json:"manifest"`
	CachedAt time.Time      `json:"cachedAt"`
}

// Cache keeps one manifest per app id over a key-value store.
type Cache struct {
	store  kv.Store
	locks  *keylock.Map
	logger *zap.Logger
	now    func() time.Time
}

// NewCache creates a manifest cache backed by store.
func NewCache(store kv.Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:  store,
		locks:  keylock.New(),
		logger: logger.Named("manifest"),
		now:    time.Now,
	}
}

// Get returns the cached manifest for appID.
func (c *Cache) Get(ctx context.Context, appID string) (*types.Manifest, error) {
	entry, err := c.entry(ctx, appID)
	if err != nil {
		return nil, err
	}
	return &entry.Manifest, nil
}

// Entry returns the cached manifest together with its cache time.
func (c *Cache) Entry(ctx context.Context, appID string) (*Entry, error) {
	return c.entry(ctx, appID)
}

// Put replaces the cached manifest for appID.
func (c *Cache) Put(ctx context.Context, appID string, m *types.Manifest) error {
	if err := types.ValidateKey(appID); err != nil {
		return err
	}
	if m == nil || m.VersionID == "" {
		return ErrMissingVersion
	}

	data, err := sonic.Marshal(Entry{Manifest: *m, CachedAt: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	unlock := c.locks.Lock(appID)
	defer unlock()

	if err := c.store.Put(ctx, keyPrefix+appID, data); err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}
	c.logger.Debug("Cached manifest", zap.String("app_id", appID), zap.String("version_id", m.VersionID))
	return nil
}

// IsStale reports whether the cache has no manifest for appID or holds one
// for a different version. Unreadable entries count as stale.
func (c *Cache) IsStale(ctx context.Context, appID, versionID string) bool {
	entry, err := c.entry(ctx, appID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("Treating unreadable manifest as stale", zap.String("app_id", appID), zap.Error(err))
		}
		return true
	}
	return entry.Manifest.VersionID != versionID
}

// Remove drops the cached manifest for appID. Removing an absent entry is
// not an error.
func (c *Cache) Remove(ctx context.Context, appID string) error {
	if err := types.ValidateKey(appID); err != nil {
		return err
	}
	unlock := c.locks.Lock(appID)
	defer unlock()

	if err := c.store.Delete(ctx, keyPrefix+appID); err != nil {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

func (c *Cache) entry(ctx context.Context, appID string) (*Entry, error) {
	if err := types.ValidateKey(appID); err != nil {
		return nil, err
	}
	data, err := c.store.Get(ctx, keyPrefix+appID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, appID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var entry Entry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &entry, nil
}
