/*
Package monitoring provides Prometheus metrics for the mini-app host.

# Overview

Metrics live on a registry owned by the Metrics value rather than the global
default registry, so tests and multiple hosts in one process do not collide.

# Metrics

- HTTP requests by route template and status
- Custom scheme requests by outcome (hit, miss, unknown_scheme, cancelled)
- Bridge commands by action and outcome (success or the wire error name)
- Permission prompts by kind and decision
- Installs and their duration
- Open renderer sessions and socket messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	schemeRouter.SetRecorder(metrics)
*/
package monitoring
