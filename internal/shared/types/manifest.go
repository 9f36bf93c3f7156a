package types

import "slices"

// ScopeDeclaration is an access token audience with the scopes a mini-app
// may request for it.
type ScopeDeclaration struct {
	Audience string   `json:"audience"`
	Scopes   []string `json:"scopes"`
}

// Manifest is the backend-declared metadata of one mini-app version.
type Manifest struct {
	VersionID           string                  `json:"versionId"`
	RequiredPermissions []PermissionDeclaration `json:"reqPermissions"`
	OptionalPermissions []PermissionDeclaration `json:"optPermissions"`
	CustomMetaData      map[string]string       `json:"customMetaData,omitempty"`
	AccessTokenScopes   []ScopeDeclaration      `json:"accessTokenPermissions,omitempty"`
}

// Permissions returns required declarations followed by optional ones.
// A type declared in both lists is reported once, as required.
func (m *Manifest) Permissions() []PermissionDeclaration {
	out := make([]PermissionDeclaration, 0, len(m.RequiredPermissions)+len(m.OptionalPermissions))
	seen := make(map[PermissionType]bool)
	for _, list := range [][]PermissionDeclaration{m.RequiredPermissions, m.OptionalPermissions} {
		for _, d := range list {
			if seen[d.Type] {
				continue
			}
			seen[d.Type] = true
			out = append(out, d)
		}
	}
	return out
}

// Declares reports whether the manifest lists t as required or optional.
func (m *Manifest) Declares(t PermissionType) bool {
	for _, d := range m.Permissions() {
		if d.Type == t {
			return true
		}
	}
	return false
}

// IsRequired reports whether t is in the required list.
func (m *Manifest) IsRequired(t PermissionType) bool {
	return slices.ContainsFunc(m.RequiredPermissions, func(d PermissionDeclaration) bool {
		return d.Type == t
	})
}

// AllowsScopes reports whether every requested scope is declared for audience.
func (m *Manifest) AllowsScopes(requested ScopeDeclaration) bool {
	if requested.Audience == "" || len(requested.Scopes) == 0 {
		return false
	}
	for _, declared := range m.AccessTokenScopes {
		if declared.Audience != requested.Audience {
			continue
		}
		for _, scope := range requested.Scopes {
			if !slices.Contains(declared.Scopes, scope) {
				return false
			}
		}
		return true
	}
	return false
}
