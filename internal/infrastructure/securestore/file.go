package securestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// FileStore keeps one sealed file per item. File names are digests of the
// service and account so arbitrary ids never become path components.
type FileStore struct {
	dir    string
	sealer Sealer
}

// NewFileStore creates dir (mode 0700) if needed.
func NewFileStore(dir string, sealer Sealer) (*FileStore, error) {
	if sealer == nil {
		return nil, errors.New("file store requires a sealer")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secure store directory: %w", err)
	}
	return &FileStore{dir: dir, sealer: sealer}, nil
}

func (s *FileStore) itemPath(service, account string) string {
	svc := blake3.Sum256([]byte(service))
	acct := blake3.Sum256([]byte(account))
	return filepath.Join(s.dir, hex.EncodeToString(svc[:8]), hex.EncodeToString(acct[:])+".age")
}

func (s *FileStore) Read(ctx context.Context, service, account string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(s.itemPath(service, account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secure item: %w", err)
	}
	return s.sealer.Open(sealed, label(service, account))
}

// Write seals data and replaces the item atomically.
func (s *FileStore) Write(ctx context.Context, service, account string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(data, label(service, account))
	if err != nil {
		return err
	}

	path := s.itemPath(service, account)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create item directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".item-*")
	if err != nil {
		return fmt.Errorf("failed to create temp item: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write secure item: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync secure item: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close secure item: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit secure item: %w", err)
	}
	return nil
}
