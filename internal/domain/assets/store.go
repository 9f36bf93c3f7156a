package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/keylock"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

const markerName = ".current"

var (
	ErrNotInstalled   = errors.New("mini-app has no promoted version")
	ErrVersionMissing = errors.New("mini-app version not present")
	ErrInvalidPath    = errors.New("asset path is not local")
)

// Store is the file cache for mini-app versions.
type Store struct {
	root   string
	locks  *keylock.Map
	logger *zap.Logger
}

// NewStore creates the cache root if needed.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset root %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset root: %w", err)
	}
	return &Store{root: abs, locks: keylock.New(), logger: logger.Named("assets")}, nil
}

// Root returns the absolute cache root.
func (s *Store) Root() string {
	return s.root
}

func validateVersion(versionID string) error {
	if err := types.ValidateKey(versionID); err != nil {
		return err
	}
	if strings.HasPrefix(versionID, ".") {
		return fmt.Errorf("%w: %q is reserved", types.ErrInvalidIdentity, versionID)
	}
	return nil
}

func (s *Store) appDir(appID string) (string, error) {
	if err := types.ValidateKey(appID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, appID), nil
}

// Directory returns the directory of one version. It does not create it.
func (s *Store) Directory(appID, versionID string) (string, error) {
	dir, err := s.appDir(appID)
	if err != nil {
		return "", err
	}
	if err := validateVersion(versionID); err != nil {
		return "", err
	}
	return filepath.Join(dir, versionID), nil
}

// Write stores data at rel inside the version directory.
func (s *Store) Write(ctx context.Context, appID, versionID, rel string, data []byte) error {
	return s.WriteFrom(ctx, appID, versionID, rel, bytes.NewReader(data))
}

// WriteFrom streams r to rel inside the version directory.
func (s *Store) WriteFrom(ctx context.Context, appID, versionID, rel string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.Directory(appID, versionID)
	if err != nil {
		return err
	}
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}

	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(rel)), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("failed to open version directory: %w", err)
	}
	defer root.Close()

	f, err := root.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return f.Close()
}

// Open returns a root handle for reading one version.
func (s *Store) Open(appID, versionID string) (*os.Root, error) {
	dir, err := s.Directory(appID, versionID)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrVersionMissing, appID, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open version directory: %w", err)
	}
	return root, nil
}

// Current returns the promoted version of appID.
func (s *Store) Current(appID string) (string, error) {
	dir, err := s.appDir(appID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, markerName))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, appID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current version: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if validateVersion(version) != nil {
		return "", fmt.Errorf("%w: %s has a corrupt marker", ErrNotInstalled, appID)
	}
	return version, nil
}

// Promote makes versionID the current version of appID and purges every
// other version.
func (s *Store) Promote(ctx context.Context, appID, versionID string) error {
	dir, err := s.Directory(appID, versionID)
	if err != nil {
		return err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s/%s", ErrVersionMissing, appID, versionID)
	}

	unlock := s.locks.Lock(appID)
	defer unlock()

	appDir := filepath.Dir(dir)
	tmp, err := os.CreateTemp(appDir, markerName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create version marker: %w", err)
	}
	if _, err := tmp.WriteString(versionID); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write version marker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync version marker: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), filepath.Join(appDir, markerName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to promote version: %w", err)
	}
	s.logger.Info("Promoted version", zap.String("app_id", appID), zap.String("version_id", versionID))

	versions, err := s.versions(appDir)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v == versionID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.RemoveAll(filepath.Join(appDir, v)); err != nil {
			s.logger.Warn("Failed to purge old version",
				zap.String("app_id", appID), zap.String("version_id", v), zap.Error(err))
		}
	}
	return nil
}

// Purge deletes one version. Purging the current version also clears the
// marker, leaving the app uninstalled.
func (s *Store) Purge(appID, versionID string) error {
	dir, err := s.Directory(appID, versionID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(appID)
	defer unlock()

	if current, err := s.Current(appID); err == nil && current == versionID {
		if err := os.Remove(filepath.Join(filepath.Dir(dir), markerName)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear version marker: %w", err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge %s/%s: %w", appID, versionID, err)
	}
	return nil
}

// Remove deletes every version of appID.
func (s *Store) Remove(appID string) error {
	dir, err := s.appDir(appID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(appID)
	defer unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", appID, err)
	}
	s.logger.Info("Removed mini-app assets", zap.String("app_id", appID))
	return nil
}

// Versions lists the version directories present for appID.
func (s *Store) Versions(appID string) ([]string, error) {
	dir, err := s.appDir(appID)
	if err != nil {
		return nil, err
	}
	return s.versions(dir)
}

// Apps lists the app ids that have a directory in the cache.
func (s *Store) Apps() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset root: %w", err)
	}
	var apps []string
	for _, e := range entries {
		if e.IsDir() && types.ValidateKey(e.Name()) == nil {
			apps = append(apps, e.Name())
		}
	}
	return apps, nil
}

func (s *Store) versions(appDir string) ([]string, error) {
	entries, err := os.ReadDir(appDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && validateVersion(e.Name()) == nil {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}
