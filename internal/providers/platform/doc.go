// Package platform talks to the mini-app backend and installs bundles into
// the local caches.
//
// Endpoints, relative to the configured base URL:
//
//	GET /host/{project}/miniapp/{appId}/info
//	GET /host/{project}/miniapp/{appId}/version/{versionId}/metadata
//	GET /host/{project}/miniapp/{appId}/version/{versionId}/manifest
//
// Preview mode inserts "/preview" after the project. The manifest endpoint
// lists file URLs; a URL ending in .zip is a packaged bundle and is
// extracted instead of stored.
//
// Requests go through a rate limiter and a circuit breaker; transient
// failures are retried by the underlying retryable transport. Client errors
// (4xx) do not count against the breaker.
package platform
