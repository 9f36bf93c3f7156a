// Package providers groups the host-side services a mini-app reaches
// through the bridge or that feed the asset cache.
//
//   - device: the persistent unique id of this host installation
//   - profile: user profile, access tokens and ads behind bridge.Host
//   - platform: the mini-app platform API client and installer
//   - webview: a headless renderer running the page side of the bridge
package providers
