package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentity is returned when an app or version id cannot be used as
// a storage key or path element.
var ErrInvalidIdentity = errors.New("invalid mini-app identity")

// Identity identifies one installed version of a mini-app.
// A new version is a new Identity, never a mutation of an existing one.
type Identity struct {
	ID        string `json:"id"`
	VersionID string `json:"versionId"`
}

// NewIdentity validates and builds an Identity.
func NewIdentity(appID, versionID string) (Identity, error) {
	if err := ValidateKey(appID); err != nil {
		return Identity{}, fmt.Errorf("app id: %w", err)
	}
	if err := ValidateKey(versionID); err != nil {
		return Identity{}, fmt.Errorf("version id: %w", err)
	}
	return Identity{ID: appID, VersionID: versionID}, nil
}

func (i Identity) String() string {
	return i.ID + "@" + i.VersionID
}

// ValidateKey rejects ids that would be unsafe as a single path element or
// storage key component.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	case key == "." || key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, key)
	case strings.ContainsAny(key, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidIdentity, key)
	}
	return nil
}

// Info describes a mini-app as listed by the platform.
type Info struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Version     Version `json:"version"`
}

// Identity returns the identity of the listed version.
func (i Info) Identity() Identity {
	return Identity{ID: i.ID, VersionID: i.Version.VersionID}
}

// Version is the platform's version descriptor for a mini-app.
type Version struct {
	VersionTag string `json:"versionTag"`
	VersionID  string `json:"versionId"`
}

// Position is a device location fix returned to getCurrentPosition.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// ShareInfo is the payload of a shareInfo bridge call.
type ShareInfo struct {
	Content string `json:"content"`
}

// Contact is an entry returned by getContacts.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// AccessToken is issued by the host for a mini-app and a scope set.
type AccessToken struct {
	Token      string           `json:"token"`
	ValidUntil int64            `json:"validUntil"`
	Scopes     ScopeDeclaration `json:"scopes"`
}

// Reward is returned after a rewarded ad was watched.
type Reward struct {
	Type   string `json:"type"`
	Amount int    `json:"amount"`
}
