// Package types holds the data shared by the host's components: mini-app
// identities and versions, manifests, permission records and the payloads
// returned to the bridge.
//
// Identities are immutable. A new version of a mini-app is a new Identity.
//
// Example Usage:
//
//	ident, err := types.NewIdentity("com.example.wallet", "v7")
//	if err != nil {
//	    return err
//	}
//	status := types.StatusNotDetermined
package types
