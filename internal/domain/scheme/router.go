// Package scheme resolves custom-scheme requests from a renderer to files of
// the mini-app's current version.
package scheme

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

const (
	DefaultPrefix   = "mscheme."
	DefaultRootFile = "index.html"
)

var (
	// ErrUnknownScheme is returned for schemes that do not carry the prefix.
	ErrUnknownScheme = errors.New("not a mini-app scheme")
	// ErrUnresolvedAsset means the request has no file to serve. It never
	// reaches mini-app code.
	ErrUnresolvedAsset = errors.New("unresolved asset")
)

// Key is a parsed scheme: the routing key for one mini-app.
type Key struct {
	Scheme string
	AppID  string
}

// Response is a served file.
type Response struct {
	Path     string
	Data     []byte
	MIMEType string
}

// Length is the content length of the response.
func (r *Response) Length() int {
	return len(r.Data)
}

// AssetSource is the part of the asset store the router reads from.
type AssetSource interface {
	Current(appID string) (string, error)
	Open(appID, versionID string) (*os.Root, error)
}

// Recorder receives one outcome per served request.
type Recorder interface {
	RecordSchemeRequest(outcome string, duration time.Duration)
}

// Config holds the router's naming conventions.
type Config struct {
	Prefix   string
	RootFile string
}

// Router maps scheme requests onto the asset store.
type Router struct {
	assets   AssetSource
	prefix   string
	rootFile string
	recorder Recorder
	logger   *zap.Logger
}

// NewRouter creates a router over assets.
func NewRouter(assets AssetSource, cfg Config, logger *zap.Logger) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RootFile == "" {
		cfg.RootFile = DefaultRootFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		assets:   assets,
		prefix:   cfg.Prefix,
		rootFile: cfg.RootFile,
		logger:   logger.Named("scheme"),
	}
}

// SetRecorder attaches a metrics recorder.
func (r *Router) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Prefix returns the scheme prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// SchemeFor returns the scheme a renderer uses for appID.
func (r *Router) SchemeFor(appID string) string {
	return r.prefix + appID
}

// ParseKey splits a scheme into its app id. Scheme names are case
// insensitive; app ids are not.
func (r *Router) ParseKey(scheme string) (Key, error) {
	if len(scheme) <= len(r.prefix) || !strings.EqualFold(scheme[:len(r.prefix)], r.prefix) {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	appID := scheme[len(r.prefix):]
	if err := types.ValidateKey(appID); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrUnknownScheme, err)
	}
	return Key{Scheme: scheme, AppID: appID}, nil
}

// Clean maps a request path to a local path relative to the version root.
// An empty path, and any path ending in a slash, names the root file.
func (r *Router) Clean(requestPath string) (string, error) {
	rel := strings.TrimPrefix(requestPath, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += r.rootFile
	}
	if strings.Contains(rel, "\\") || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %q escapes the version root", ErrUnresolvedAsset, requestPath)
	}
	return path.Clean(rel), nil
}

// Resolve reads the file for key and requestPath from the current version.
func (r *Router) Resolve(key Key, requestPath string) (*Response, error) {
	rel, err := r.Clean(requestPath)
	if err != nil {
		return nil, err
	}
	version, err := r.assets.Current(key.AppID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedAsset, err)
	}
	root, err := r.assets.Open(key.AppID, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedAsset, err)
	}
	defer root.Close()

	f, err := root.Open(filepath.FromSlash(rel))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedAsset, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file", ErrUnresolvedAsset, rel)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedAsset, err)
	}
	return &Response{Path: rel, Data: data, MIMEType: detectMIME(rel, data)}, nil
}

// Serve parses scheme and resolves requestPath in one step.
func (r *Router) Serve(ctx context.Context, scheme, requestPath string) (*Response, error) {
	start := time.Now()
	resp, err := r.serve(ctx, scheme, requestPath)
	r.record(err, time.Since(start))
	return resp, err
}

func (r *Router) serve(ctx context.Context, scheme, requestPath string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := r.ParseKey(scheme)
	if err != nil {
		return nil, err
	}
	return r.Resolve(key, requestPath)
}

func (r *Router) record(err error, d time.Duration) {
	if r.recorder == nil {
		return
	}
	outcome := "hit"
	switch {
	case errors.Is(err, ErrUnknownScheme):
		outcome = "unknown_scheme"
	case errors.Is(err, ErrUnresolvedAsset):
		outcome = "miss"
	case err != nil:
		outcome = "cancelled"
	}
	r.recorder.RecordSchemeRequest(outcome, d)
}

func detectMIME(name string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}
