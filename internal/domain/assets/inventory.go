package assets

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/zeebo/blake3"
)

// File is one entry of a version inventory.
type File struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Inventory describes the files of one installed version.
type Inventory struct {
	AppID       string `json:"appId"`
	VersionID   string `json:"versionId"`
	Files       []File `json:"files"`
	TotalSize   int64  `json:"totalSize"`
	Fingerprint string `json:"fingerprint"`
}

// Inventory walks a version directory and digests every regular file.
// Symlinks are not followed and not listed.
func (s *Store) Inventory(ctx context.Context, appID, versionID string) (*Inventory, error) {
	dir, err := s.Directory(appID, versionID)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s/%s", ErrVersionMissing, appID, versionID)
	}

	var (
		mu    sync.Mutex
		files []File
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		digest, size, err := digestFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)

		mu.Lock()
		files = append(files, File{Path: filepath.ToSlash(rel), Size: size, Digest: digest})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s/%s: %w", appID, versionID, err)
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })

	inv := &Inventory{AppID: appID, VersionID: versionID, Files: files}
	h := blake3.New()
	for _, f := range files {
		inv.TotalSize += f.Size
		fmt.Fprintf(h, "%s\x00%s\n", f.Path, f.Digest)
	}
	inv.Fingerprint = hex.EncodeToString(h.Sum(nil))
	return inv, nil
}

func digestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Digest returns the hex blake3 digest of data, in the form used by
// inventories.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
