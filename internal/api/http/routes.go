package http

import "github.com/gin-gonic/gin"

// Register mounts the handlers on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	// Mini-app content over the custom scheme
	r.GET("/miniapps/:scheme/*path", h.ServeScheme)

	// Installed mini-apps
	r.GET("/apps", h.ListApps)
	r.POST("/apps/:appId/install", h.Install)
	r.DELETE("/apps/:appId", h.Uninstall)
	r.GET("/apps/:appId/manifest", h.GetManifest)
	r.GET("/apps/:appId/stale", h.Stale)

	// Permission grants
	r.GET("/apps/:appId/permissions", h.GetPermissions)
	r.PUT("/apps/:appId/permissions", h.SetPermissions)
}
