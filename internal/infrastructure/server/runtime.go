package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/assets"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/manifest"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/scheme"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/kv"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/securestore"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/miniapp-host/internal/providers/device"
	"github.com/GriffinCanCode/miniapp-host/internal/providers/platform"
	"github.com/GriffinCanCode/miniapp-host/internal/providers/profile"
)

// Runtime holds the host services shared by the server and the CLI.
type Runtime struct {
	Config      *config.Config
	Logger      *logging.Logger
	Metrics     *monitoring.Metrics
	Tracer      *tracing.Tracer
	Secure      securestore.Store
	Permissions *permission.Store
	Manifests   *manifest.Cache
	Assets      *assets.Store
	Router      *scheme.Router
	Device      *device.Provider
	Host        *profile.Host
	// Ads is nil when the profile disables ads.
	Ads *profile.Ads
	// Platform and Installer are nil when no platform is configured.
	Platform  *platform.Client
	Installer *platform.Installer

	closers []io.Closer
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	return logging.New(lc)
}

// Open wires every service from cfg. Close releases storage handles.
func Open(cfg *config.Config, logger *logging.Logger) (_ *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: monitoring.NewMetrics(),
		Tracer:  tracing.New("miniapp-host", time.Second, logger.Logger),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	if rt.Secure, err = rt.openSecureStore(); err != nil {
		return nil, err
	}
	store, err := rt.openManifestStore()
	if err != nil {
		return nil, err
	}
	if rt.Assets, err = assets.NewStore(cfg.Storage.AssetDir(), logger.Logger); err != nil {
		return nil, err
	}

	rt.Permissions = permission.NewStore(rt.Secure, cfg.Storage.Scope, logger.Logger)
	rt.Manifests = manifest.NewCache(store, logger.Logger)
	rt.Router = scheme.NewRouter(rt.Assets, scheme.Config{
		Prefix:   cfg.Scheme.Prefix,
		RootFile: cfg.Scheme.RootFile,
	}, logger.Logger)
	rt.Router.SetRecorder(rt.Metrics)
	rt.Device = device.NewProvider(rt.Secure, cfg.Storage.Scope, logger.Logger)

	p := profile.Default()
	if cfg.Profile.File != "" {
		if p, err = profile.Load(cfg.Profile.File); err != nil {
			return nil, err
		}
	}
	rt.Host = profile.NewHost(p, rt.Device, logger.Logger)
	rt.Ads = profile.NewAds(p)

	client, err := platform.NewClient(platform.Config{
		BaseURL:         cfg.Platform.BaseURL,
		ProjectID:       cfg.Platform.ProjectID,
		SubscriptionKey: cfg.Platform.SubscriptionKey,
		HostVersion:     cfg.Platform.HostVersion,
		Preview:         cfg.Platform.Preview,
		Timeout:         cfg.Platform.Timeout(),
		MaxRetries:      cfg.Platform.MaxRetries,
		RequestsPerSec:  float64(cfg.Platform.RequestsPerSec),
	}, logger.Logger)
	switch {
	case err == nil:
		rt.Platform = client
		rt.Metrics.WatchBreaker(client.Breaker().Name(), func() int { return int(client.Breaker().State()) })
		rt.Installer = platform.NewInstaller(client, rt.Assets, rt.Manifests, logger.Logger)
		rt.Installer.SetRecorder(rt.Metrics)
		rt.Installer.SetTracer(rt.Tracer)
	case errors.Is(err, platform.ErrNotConfigured):
		logger.Info("No platform configured, installs disabled")
	default:
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openSecureStore() (securestore.Store, error) {
	s := rt.Config.Storage
	switch s.SecureBackend {
	case config.SecureMemory:
		rt.Logger.Warn("Using in-memory secure store, grants will not persist")
		return securestore.NewMemory(), nil
	case config.SecureSQLite:
		sealer, err := securestore.LoadOrCreateChaChaSealer(s.SealKeyFile())
		if err != nil {
			return nil, err
		}
		db, err := securestore.NewSQLiteStore(s.SecureDB(), sealer)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db)
		return db, nil
	default:
		sealer, err := securestore.LoadOrCreateAgeSealer(s.SealKeyFile())
		if err != nil {
			return nil, err
		}
		return securestore.NewFileStore(s.SecureDir(), sealer)
	}
}

func (rt *Runtime) openManifestStore() (kv.Store, error) {
	if rt.Config.Storage.ManifestBackend == config.ManifestMemory {
		return kv.NewMemory(), nil
	}
	db, err := kv.OpenPebble(rt.Config.Storage.ManifestDir())
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, db)
	return db, nil
}

// BridgeConfig returns the dispatcher configuration for one instance of
// appID.
func (rt *Runtime) BridgeConfig(appID string, prompter bridge.Prompter) bridge.Config {
	cfg := bridge.Config{
		AppID:       appID,
		Host:        rt.Host,
		Prompter:    prompter,
		Permissions: rt.Permissions,
		Manifests:   rt.Manifests,
		Devices:     rt.Device,
		Recorder:    rt.Metrics,
		Logger:      rt.Logger.Logger,
	}
	if rt.Ads != nil {
		cfg.Ads = rt.Ads
	}
	return cfg
}

// Close releases storage handles and stops the tracer.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	rt.closers = nil
	if rt.Tracer != nil {
		rt.Tracer.Close()
	}
	return errors.Join(errs...)
}
