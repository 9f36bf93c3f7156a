package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/assets"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/manifest"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/kv"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

type fakeSource struct {
	mu        sync.Mutex
	version   string
	files     map[string][]byte
	downloads int
	failOn    string
}

func (f *fakeSource) Info(ctx context.Context, appID string) (*types.Info, error) {
	return &types.Info{ID: appID, Version: types.Version{VersionID: f.version}}, nil
}

func (f *fakeSource) Metadata(ctx context.Context, appID, versionID string) (*types.Manifest, error) {
	return &types.Manifest{
		VersionID: versionID,
		RequiredPermissions: []types.PermissionDeclaration{
			{Type: types.PermissionUserName, Description: "greeting"},
		},
	}, nil
}

func (f *fakeSource) Files(ctx context.Context, appID, versionID string) ([]string, error) {
	out := make([]string, 0, len(f.files))
	for name := range f.files {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeSource) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	if fileURL == f.failOn {
		return 0, errors.New("connection reset")
	}
	data, ok := f.files[fileURL]
	if !ok {
		return 0, &StatusError{Method: http.MethodGet, URL: fileURL, Code: http.StatusNotFound}
	}
	n, err := w.Write(data)
	return int64(n), err
}

type installRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *installRecorder) RecordInstall(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func newInstaller(t *testing.T, src Source) (*Installer, *assets.Store, *manifest.Cache) {
	t.Helper()
	store, err := assets.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	cache := manifest.NewCache(kv.NewMemory(), nil)
	return NewInstaller(src, store, cache, nil), store, cache
}

func bundle(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInstallLatest(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html":   []byte("<html></html>"),
		"https://cdn.test/app1/v1/js/app.js":    []byte("console.log(1)"),
		"https://cdn.test/app1/v1/.DS_Store":    []byte("junk"),
		"https://cdn.test/elsewhere/styles.css": []byte("body{}"),
	}}
	inst, store, cache := newInstaller(t, src)
	rec := &installRecorder{}
	inst.SetRecorder(rec)

	res, err := inst.Install(context.Background(), "app1", "")
	require.NoError(t, err)
	assert.Equal(t, "v1", res.VersionID)
	assert.False(t, res.UpToDate)
	assert.Equal(t, 3, res.Files)
	assert.NotEmpty(t, res.Fingerprint)

	current, err := store.Current("app1")
	require.NoError(t, err)
	assert.Equal(t, "v1", current)

	dir, err := store.Directory("app1", "v1")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "js", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
	assert.FileExists(t, filepath.Join(dir, "styles.css"))
	assert.NoFileExists(t, filepath.Join(dir, ".DS_Store"))

	m, err := cache.Get(context.Background(), "app1")
	require.NoError(t, err)
	assert.Equal(t, "v1", m.VersionID)
	assert.Equal(t, []string{"installed"}, rec.outcomes)
}

func TestInstallUpToDate(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html": []byte("<html></html>"),
	}}
	inst, _, _ := newInstaller(t, src)
	rec := &installRecorder{}
	inst.SetRecorder(rec)

	_, err := inst.Install(context.Background(), "app1", "v1")
	require.NoError(t, err)
	res, err := inst.Install(context.Background(), "app1", "v1")
	require.NoError(t, err)
	assert.True(t, res.UpToDate)
	assert.Equal(t, 1, src.downloads)
	assert.Equal(t, []string{"installed", "up_to_date"}, rec.outcomes)
}

func TestInstallReplacesPreviousVersion(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html": []byte("one"),
	}}
	inst, store, cache := newInstaller(t, src)
	_, err := inst.Install(context.Background(), "app1", "")
	require.NoError(t, err)

	src.version = "v2"
	src.files = map[string][]byte{"https://cdn.test/app1/v2/index.html": []byte("two")}
	assert.True(t, inst.IsStale(context.Background(), "app1", "v2"))

	_, err = inst.Install(context.Background(), "app1", "")
	require.NoError(t, err)

	versions, err := store.Versions("app1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, versions)
	assert.False(t, cache.IsStale(context.Background(), "app1", "v2"))
}

func TestInstallExtractsBundle(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/bundle.zip": bundle(t, map[string]string{
			"index.html":          "<html></html>",
			"img/logo.svg":        "<svg/>",
			"__MACOSX/img/._logo": "junk",
			"img/.DS_Store":       "junk",
		}),
	}}
	inst, store, _ := newInstaller(t, src)

	res, err := inst.Install(context.Background(), "app1", "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)

	dir, err := store.Directory("app1", "v1")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "img", "logo.svg"))
	assert.NoDirExists(t, filepath.Join(dir, "__MACOSX"))
	assert.NoFileExists(t, filepath.Join(dir, "bundle.zip"))
}

func TestInstallRejectsEscapingBundleEntries(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/bundle.zip": bundle(t, map[string]string{"../evil.html": "x"}),
	}}
	inst, store, _ := newInstaller(t, src)

	_, err := inst.Install(context.Background(), "app1", "v1")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(store.Root(), "app1", "evil.html"))
}

func TestInstallFailureKeepsCurrentVersion(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html": []byte("one"),
	}}
	inst, store, cache := newInstaller(t, src)
	rec := &installRecorder{}
	inst.SetRecorder(rec)
	_, err := inst.Install(context.Background(), "app1", "")
	require.NoError(t, err)

	src.version = "v2"
	src.files = map[string][]byte{
		"https://cdn.test/app1/v2/index.html": []byte("two"),
		"https://cdn.test/app1/v2/app.js":     []byte("x"),
	}
	src.failOn = "https://cdn.test/app1/v2/app.js"

	_, err = inst.Install(context.Background(), "app1", "")
	require.Error(t, err)

	current, err := store.Current("app1")
	require.NoError(t, err)
	assert.Equal(t, "v1", current)
	assert.False(t, cache.IsStale(context.Background(), "app1", "v1"))
	assert.Equal(t, []string{"installed", "failed"}, rec.outcomes)
}

func TestRepairInstallLeavesServedAssets(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html": []byte("one"),
		"https://cdn.test/app1/v1/app.js":     []byte("console.log(1)"),
	}}
	inst, store, cache := newInstaller(t, src)
	_, err := inst.Install(context.Background(), "app1", "v1")
	require.NoError(t, err)
	downloads := src.downloads

	require.NoError(t, cache.Remove(context.Background(), "app1"))
	assert.True(t, inst.IsStale(context.Background(), "app1", "v1"))
	src.failOn = "https://cdn.test/app1/v1/app.js"

	res, err := inst.Install(context.Background(), "app1", "v1")
	require.NoError(t, err)
	assert.False(t, res.UpToDate)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, downloads, src.downloads)

	current, err := store.Current("app1")
	require.NoError(t, err)
	assert.Equal(t, "v1", current)
	dir, err := store.Directory("app1", "v1")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
	assert.False(t, cache.IsStale(context.Background(), "app1", "v1"))
}

func TestFailedInstallLeavesNoPartialVersion(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html": []byte("one"),
		"https://cdn.test/app1/v1/app.js":     []byte("x"),
	}}
	src.failOn = "https://cdn.test/app1/v1/app.js"
	inst, store, _ := newInstaller(t, src)

	_, err := inst.Install(context.Background(), "app1", "v1")
	require.Error(t, err)

	_, err = store.Current("app1")
	assert.ErrorIs(t, err, assets.ErrNotInstalled)
	versions, err := store.Versions("app1")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestUninstall(t *testing.T) {
	src := &fakeSource{version: "v1", files: map[string][]byte{
		"https://cdn.test/app1/v1/index.html": []byte("one"),
	}}
	inst, store, cache := newInstaller(t, src)
	_, err := inst.Install(context.Background(), "app1", "")
	require.NoError(t, err)

	require.NoError(t, inst.Uninstall(context.Background(), "app1"))
	_, err = store.Current("app1")
	assert.ErrorIs(t, err, assets.ErrNotInstalled)
	_, err = cache.Get(context.Background(), "app1")
	assert.ErrorIs(t, err, manifest.ErrNotFound)
}

func TestRelativePath(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://cdn.test/app/v1/index.html", "index.html"},
		{"https://cdn.test/app/v1/js/a.js?sig=1", "js/a.js"},
		{"https://cdn.test/other/file.css", "file.css"},
	}
	for _, tt := range tests {
		got, err := relativePath(tt.url, "v1")
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}

	_, err := relativePath("https://cdn.test/", "v1")
	assert.Error(t, err)
}

func TestInstallOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/host/proj/miniapp/app1/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"app1","version":{"versionId":"v9"}}]`))
	})
	mux.HandleFunc("/host/proj/miniapp/app1/version/v9/metadata", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bundleManifest":{"optPermissions":[{"name":"rakuten.miniapp.device.LOCATION","reason":"maps"}]}}`))
	})
	mux.HandleFunc("/host/proj/miniapp/app1/version/v9/manifest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"manifest":[%q,%q]}`, srvURL+"/files/app1/v9/index.html", srvURL+"/files/app1/v9/css/site.css")
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content of " + r.URL.Path))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	inst, store, cache := newInstaller(t, newTestClient(t, srv, false))
	res, err := inst.Install(context.Background(), "app1", "")
	require.NoError(t, err)
	assert.Equal(t, "v9", res.VersionID)
	assert.Equal(t, 2, res.Files)

	dir, err := store.Directory("app1", "v9")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "css", "site.css"))
	require.NoError(t, err)
	assert.Equal(t, "content of /files/app1/v9/css/site.css", string(data))

	m, err := cache.Get(context.Background(), "app1")
	require.NoError(t, err)
	assert.True(t, m.Declares(types.PermissionDeviceLocation))
}
