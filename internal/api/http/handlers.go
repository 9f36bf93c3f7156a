package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/assets"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/manifest"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp-host/internal/domain/scheme"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/miniapp-host/internal/providers/platform"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// SchemeServer resolves custom scheme requests.
type SchemeServer interface {
	Serve(ctx context.Context, scheme, requestPath string) (*scheme.Response, error)
}

// Installer manages installed mini-app versions.
type Installer interface {
	Install(ctx context.Context, appID, versionID string) (*platform.Result, error)
	Uninstall(ctx context.Context, appID string) error
	IsStale(ctx context.Context, appID, versionID string) bool
}

// PermissionStore reads and updates grants.
type PermissionStore interface {
	Get(ctx context.Context, appID string) ([]types.PermissionRecord, error)
	Set(ctx context.Context, appID string, updates []types.PermissionRecord) ([]types.PermissionRecord, error)
}

// ManifestStore reads cached manifests.
type ManifestStore interface {
	Entry(ctx context.Context, appID string) (*manifest.Entry, error)
	IsStale(ctx context.Context, appID, versionID string) bool
}

// AssetStore lists installed mini-apps.
type AssetStore interface {
	Apps() ([]string, error)
	Current(appID string) (string, error)
}

// Handlers contains the HTTP handlers of the host.
type Handlers struct {
	scheme      SchemeServer
	installer   Installer
	permissions PermissionStore
	manifests   ManifestStore
	assets      AssetStore
	upstream    func() resilience.Snapshot
	started     time.Time
	logger      *zap.Logger
}

// NewHandlers creates handlers. installer may be nil when no platform is
// configured; install endpoints then answer 503.
func NewHandlers(schemeServer SchemeServer, installer Installer, permissions PermissionStore, manifests ManifestStore, assetStore AssetStore, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		scheme:      schemeServer,
		installer:   installer,
		permissions: permissions,
		manifests:   manifests,
		assets:      assetStore,
		started:     time.Now(),
		logger:      logger.Named("http"),
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.upstream != nil {
		snap := h.upstream()
		body["platform"] = snap
		if snap.State != resilience.StateClosed {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

// SetUpstream reports the platform breaker in Health.
func (h *Handlers) SetUpstream(snapshot func() resilience.Snapshot) {
	h.upstream = snapshot
}

// ServeScheme serves GET /miniapps/:scheme/*path. Unresolved requests get
// an empty 404.
func (h *Handlers) ServeScheme(c *gin.Context) {
	resp, err := h.scheme.Serve(c.Request.Context(), c.Param("scheme"), c.Param("path"))
	if err != nil {
		if errors.Is(err, scheme.ErrUnknownScheme) {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Content-Length", strconv.Itoa(resp.Length()))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, resp.MIMEType, resp.Data)
}

// InstalledApp is one entry of ListApps.
type InstalledApp struct {
	AppID     string `json:"appId"`
	VersionID string `json:"versionId"`
}

// ListApps returns installed mini-apps with their current versions.
func (h *Handlers) ListApps(c *gin.Context) {
	apps, err := h.assets.Apps()
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]InstalledApp, 0, len(apps))
	for _, appID := range apps {
		version, err := h.assets.Current(appID)
		if err != nil {
			continue
		}
		out = append(out, InstalledApp{AppID: appID, VersionID: version})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

type installRequest struct {
	VersionID string `json:"versionId"`
}

// Install installs a version, or the latest one when none is given.
func (h *Handlers) Install(c *gin.Context) {
	if h.installer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "platform not configured"})
		return
	}
	var req installRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.installer.Install(c.Request.Context(), c.Param("appId"), req.VersionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Uninstall removes a mini-app's assets and manifest.
func (h *Handlers) Uninstall(c *gin.Context) {
	if h.installer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "platform not configured"})
		return
	}
	if err := h.installer.Uninstall(c.Request.Context(), c.Param("appId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetManifest returns the cached manifest.
func (h *Handlers) GetManifest(c *gin.Context) {
	entry, err := h.manifests.Entry(c.Request.Context(), c.Param("appId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Stale reports whether the installed copy differs from ?versionId=.
func (h *Handlers) Stale(c *gin.Context) {
	appID := c.Param("appId")
	versionID := c.Query("versionId")
	if err := types.ValidateKey(appID); err != nil {
		h.fail(c, err)
		return
	}
	if versionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "versionId is required"})
		return
	}
	var stale bool
	if h.installer != nil {
		stale = h.installer.IsStale(c.Request.Context(), appID, versionID)
	} else {
		stale = h.manifests.IsStale(c.Request.Context(), appID, versionID)
	}
	c.JSON(http.StatusOK, gin.H{"appId": appID, "versionId": versionID, "stale": stale})
}

// GetPermissions returns the grant records, seeding defaults.
func (h *Handlers) GetPermissions(c *gin.Context) {
	records, err := h.permissions.Get(c.Request.Context(), c.Param("appId"))
	if err != nil && records == nil {
		h.fail(c, err)
		return
	}
	if err != nil {
		h.logger.Warn("Serving default permissions", zap.String("app_id", c.Param("appId")), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"permissions": records})
}

type permissionsRequest struct {
	Permissions []types.PermissionRecord `json:"permissions" binding:"required"`
}

// SetPermissions merges updates into the grant records.
func (h *Handlers) SetPermissions(c *gin.Context) {
	var req permissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := h.permissions.Set(c.Request.Context(), c.Param("appId"), req.Permissions)
	if err != nil && !errors.Is(err, permission.ErrPersist) {
		h.fail(c, err)
		return
	}
	body := gin.H{"permissions": records}
	if err != nil {
		body["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// fail maps domain errors to status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var upstream *platform.StatusError
	switch {
	case errors.Is(err, types.ErrInvalidIdentity), errors.Is(err, permission.ErrInvalidRecord), errors.Is(err, assets.ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, manifest.ErrNotFound), errors.Is(err, assets.ErrNotInstalled), errors.Is(err, platform.ErrNoVersion):
		status = http.StatusNotFound
	case errors.Is(err, permission.ErrNotSeeded):
		status = http.StatusConflict
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
