// Package server wires the host: storage backends, domain services,
// providers, and the HTTP and WebSocket surface.
package server
