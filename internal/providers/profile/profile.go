// Package profile implements the host capabilities from a static user
// profile. It backs headless and development hosts where no native UI
// provides the user's data.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// ErrUnsupportedFormat is returned for profile files that are not YAML, TOML or JSON.
var ErrUnsupportedFormat = errors.New("unsupported profile format")

// Profile is the user data exposed to mini-apps.
type Profile struct {
	UserName     string          `json:"userName" yaml:"userName" toml:"userName"`
	ProfilePhoto string          `json:"profilePhoto" yaml:"profilePhoto" toml:"profilePhoto"`
	Contacts     []types.Contact `json:"contacts" yaml:"contacts" toml:"contacts"`
	Location     *Location       `json:"location,omitempty" yaml:"location,omitempty" toml:"location,omitempty"`
	Token        TokenConfig     `json:"token" yaml:"token" toml:"token"`
	Ads          AdsConfig       `json:"ads" yaml:"ads" toml:"ads"`
}

// Location is a fixed position reported to getCurrentPosition.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" toml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude" toml:"longitude"`
	Accuracy  float64 `json:"accuracy" yaml:"accuracy" toml:"accuracy"`
}

// TokenConfig controls issued access tokens.
type TokenConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl" toml:"ttl"`
}

// AdsConfig controls the simulated ad network.
type AdsConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Units   []string `json:"units" yaml:"units" toml:"units"`
	Reward  Reward   `json:"reward" yaml:"reward" toml:"reward"`
}

// Reward is granted after a rewarded ad.
type Reward struct {
	Type   string `json:"type" yaml:"type" toml:"type"`
	Amount int    `json:"amount" yaml:"amount" toml:"amount"`
}

// Default returns an empty profile with defaults applied.
func Default() *Profile {
	p := &Profile{}
	p.applyDefaults()
	return p
}

func (p *Profile) applyDefaults() {
	if p.Token.TTL <= 0 {
		p.Token.TTL = time.Hour
	}
	if p.Ads.Reward.Type == "" {
		p.Ads.Reward = Reward{Type: "coin", Amount: 1}
	}
}

// Load reads a profile from path. The format follows the file extension.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	p := &Profile{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, p)
	case ".toml":
		err = toml.Unmarshal(data, p)
	case ".json":
		err = sonic.Unmarshal(data, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	p.applyDefaults()
	return p, nil
}
