// Package http provides the host's HTTP surface: mini-app content over the
// custom scheme, installation and grant administration, and health.
package http
