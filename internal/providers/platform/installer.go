package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/assets"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/manifest"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// skipPatterns are bundle entries that never belong to a mini-app.
var skipPatterns = []string{"__MACOSX/**", "**/.DS_Store", ".DS_Store", "**/Thumbs.db"}

// Source is the part of the platform client the installer needs.
type Source interface {
	Info(ctx context.Context, appID string) (*types.Info, error)
	Metadata(ctx context.Context, appID, versionID string) (*types.Manifest, error)
	Files(ctx context.Context, appID, versionID string) ([]string, error)
	Download(ctx context.Context, fileURL string, w io.Writer) (int64, error)
}

// Recorder receives install outcomes.
type Recorder interface {
	RecordInstall(outcome string, duration time.Duration)
}

// Result describes a finished install.
type Result struct {
	AppID       string          `json:"appId"`
	VersionID   string          `json:"versionId"`
	UpToDate    bool            `json:"upToDate"`
	Files       int             `json:"files"`
	Bytes       int64           `json:"bytes"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Manifest    *types.Manifest `json:"manifest,omitempty"`
}

// Installer downloads versions into the asset store and manifest cache.
type Installer struct {
	source      Source
	assets      *assets.Store
	manifests   *manifest.Cache
	recorder    Recorder
	tracer      *tracing.Tracer
	concurrency int
	logger      *zap.Logger
}

// NewInstaller creates an installer.
func NewInstaller(source Source, assetStore *assets.Store, manifests *manifest.Cache, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		source:      source,
		assets:      assetStore,
		manifests:   manifests,
		concurrency: 4,
		logger:      logger.Named("installer"),
	}
}

// SetRecorder attaches a metrics recorder.
func (i *Installer) SetRecorder(r Recorder) {
	i.recorder = r
}

// SetTracer traces installs with t.
func (i *Installer) SetTracer(t *tracing.Tracer) {
	i.tracer = t
}

// IsStale reports whether the installed copy of appID differs from
// versionID, either in assets or in the cached manifest.
func (i *Installer) IsStale(ctx context.Context, appID, versionID string) bool {
	current, err := i.assets.Current(appID)
	if err != nil || current != versionID {
		return true
	}
	return i.manifests.IsStale(ctx, appID, versionID)
}

// Install brings appID to versionID, or to the latest published version when
// versionID is empty. An up-to-date install downloads nothing.
func (i *Installer) Install(ctx context.Context, appID, versionID string) (res *Result, err error) {
	start := time.Now()
	if i.tracer != nil {
		var span *tracing.Span
		span, ctx = i.tracer.StartSpan(ctx, "install")
		span.SetTag("app_id", appID)
		defer func() { i.tracer.End(span, err) }()
	}
	defer func() {
		if i.recorder == nil {
			return
		}
		outcome := "installed"
		switch {
		case err != nil:
			outcome = "failed"
		case res.UpToDate:
			outcome = "up_to_date"
		}
		i.recorder.RecordInstall(outcome, time.Since(start))
	}()

	if err := types.ValidateKey(appID); err != nil {
		return nil, err
	}
	if versionID == "" {
		info, err := i.source.Info(ctx, appID)
		if err != nil {
			return nil, fmt.Errorf("failed to get mini-app info: %w", err)
		}
		versionID = info.Identity().VersionID
	}
	ident, err := types.NewIdentity(appID, versionID)
	if err != nil {
		return nil, err
	}
	if _, err := i.assets.Directory(ident.ID, ident.VersionID); err != nil {
		return nil, err
	}

	logger := i.logger.With(zap.Stringer("miniapp", ident))
	if !i.IsStale(ctx, appID, versionID) {
		logger.Debug("Mini-app up to date")
		return &Result{AppID: appID, VersionID: versionID, UpToDate: true}, nil
	}

	m, err := i.source.Metadata(ctx, appID, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	// The served version is never written to. When only its manifest is
	// stale, refreshing the manifest is the whole repair.
	if i.servable(appID, versionID) {
		if err := i.manifests.Put(ctx, appID, m); err != nil {
			return nil, err
		}
		logger.Info("Refreshed manifest of installed version")
		return i.result(ctx, logger, appID, versionID, m), nil
	}

	files, err := i.source.Files(ctx, appID, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file list: %w", err)
	}
	if err := i.assets.Purge(appID, versionID); err != nil {
		return nil, err
	}
	if err := i.download(ctx, appID, versionID, files); err != nil {
		if perr := i.assets.Purge(appID, versionID); perr != nil {
			logger.Warn("Failed to clean up partial version", zap.Error(perr))
		}
		return nil, err
	}
	if err := i.assets.Promote(ctx, appID, versionID); err != nil {
		return nil, err
	}
	if err := i.manifests.Put(ctx, appID, m); err != nil {
		return nil, err
	}

	res = i.result(ctx, logger, appID, versionID, m)
	logger.Info("Installed mini-app",
		zap.Int("files", res.Files), zap.Int64("bytes", res.Bytes), zap.String("fingerprint", res.Fingerprint))
	return res, nil
}

// servable reports whether versionID is the promoted version of appID and
// its directory is present.
func (i *Installer) servable(appID, versionID string) bool {
	if current, err := i.assets.Current(appID); err != nil || current != versionID {
		return false
	}
	dir, err := i.assets.Directory(appID, versionID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func (i *Installer) result(ctx context.Context, logger *zap.Logger, appID, versionID string, m *types.Manifest) *Result {
	res := &Result{AppID: appID, VersionID: versionID, Manifest: m}
	if inv, err := i.assets.Inventory(ctx, appID, versionID); err == nil {
		res.Files = len(inv.Files)
		res.Bytes = inv.TotalSize
		res.Fingerprint = inv.Fingerprint
	} else {
		logger.Warn("Failed to inventory installed version", zap.Error(err))
	}
	return res
}

// Uninstall removes the assets and cached manifest of appID. Permission
// grants are kept.
func (i *Installer) Uninstall(ctx context.Context, appID string) error {
	return errors.Join(i.assets.Remove(appID), i.manifests.Remove(ctx, appID))
}

func (i *Installer) download(ctx context.Context, appID, versionID string, files []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, fileURL := range files {
		g.Go(func() error {
			if strings.EqualFold(path.Ext(urlPath(fileURL)), ".zip") {
				return i.extract(ctx, appID, versionID, fileURL)
			}
			rel, err := relativePath(fileURL, versionID)
			if err != nil {
				return err
			}
			if skip(rel) {
				return nil
			}
			pr, pw := io.Pipe()
			go func() {
				_, err := i.source.Download(ctx, fileURL, pw)
				pw.CloseWithError(err)
			}()
			err = i.assets.WriteFrom(ctx, appID, versionID, rel, pr)
			pr.CloseWithError(err)
			if err != nil {
				return fmt.Errorf("failed to store %s: %w", rel, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// extract downloads a packaged bundle to a temporary file and unpacks it.
func (i *Installer) extract(ctx context.Context, appID, versionID, fileURL string) error {
	tmp, err := os.CreateTemp("", "miniapp-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := i.source.Download(ctx, fileURL, tmp); err != nil {
		return err
	}
	info, err := tmp.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(tmp, info.Size())
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", fileURL, err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || skip(f.Name) {
			continue
		}
		if !f.Mode().IsRegular() {
			i.logger.Warn("Skipping non-regular bundle entry", zap.String("entry", f.Name))
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open bundle entry %s: %w", f.Name, err)
		}
		err = i.assets.WriteFrom(ctx, appID, versionID, f.Name, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func skip(name string) bool {
	for _, pattern := range skipPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// relativePath maps a file URL to its path inside the version: everything
// after the version id segment, or the base name when the id is absent.
func relativePath(fileURL, versionID string) (string, error) {
	p := urlPath(fileURL)
	marker := "/" + versionID + "/"
	if idx := strings.Index(p, marker); idx >= 0 {
		p = p[idx+len(marker):]
	} else {
		p = path.Base(p)
	}
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." || p == "/" {
		return "", fmt.Errorf("cannot derive a file name from %s", fileURL)
	}
	return p, nil
}
