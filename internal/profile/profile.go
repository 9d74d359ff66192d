// Package profile manages local identities: named directories each holding
// an ed25519 key, a yaml config, and a state directory. One profile is the
// default; commands operate as exactly one profile at a time.
package profile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/identity"
	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/urn"
)

// ErrNoProfile is returned when no profile exists where one is required.
var ErrNoProfile = errors.New("no profile found")

// ErrProfileExists is returned by Create for an already-taken name.
var ErrProfileExists = errors.New("profile already exists")

const (
	profilesDir = "profiles"
	defaultFile = "default"
	configFile  = "config.yaml"
	keyFile     = "key"
)

// SyncConfig holds the sync tunables.
type SyncConfig struct {
	// PeerTimeout bounds the time spent on one peer per sync run.
	PeerTimeout time.Duration `yaml:"peer_timeout,omitempty"`

	// ExchangeDir is the shared directory tree peers exchange blobs
	// through. Relative paths resolve against the profile directory.
	ExchangeDir string `yaml:"exchange_dir,omitempty"`
}

// Config is the persisted per-profile configuration.
type Config struct {
	// StateDir overrides where the document store lives. Relative paths are
	// resolved against the profile directory. Empty means "state" inside
	// the profile directory.
	StateDir string `yaml:"state_dir,omitempty"`

	// TieBreak names the concurrent-edit ordering policy. Must agree across
	// the replicas of a project for their materialized states to converge.
	TieBreak string `yaml:"tie_break,omitempty"`

	Sync SyncConfig `yaml:"sync,omitempty"`
}

// Profile is a loaded local identity.
type Profile struct {
	Name   string
	Dir    string
	Config Config
	Signer *identity.Signer
}

// Peer returns the profile's peer identifier.
func (p *Profile) Peer() urn.Identifier {
	return p.Signer.Peer()
}

// StateDir returns the resolved document store location.
func (p *Profile) StateDir() string {
	dir := p.Config.StateDir
	if dir == "" {
		dir = "state"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.Dir, dir)
	}
	return dir
}

// TieBreak resolves the configured ordering policy.
func (p *Profile) TieBreak() cob.TieBreak {
	return cob.TieBreakByName(p.Config.TieBreak)
}

// PeerTimeout returns the configured per-peer sync timeout, or zero when
// unset so callers fall back to their default.
func (p *Profile) PeerTimeout() time.Duration {
	return p.Config.Sync.PeerTimeout
}

// ExchangeDir returns the resolved blob exchange directory, or empty when
// sync is unconfigured.
func (p *Profile) ExchangeDir() string {
	dir := p.Config.Sync.ExchangeDir
	if dir == "" {
		return ""
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.Dir, dir)
	}
	return dir
}

// OpenStore opens the profile's document store with its configured
// tie-break policy.
func (p *Profile) OpenStore() (*store.Store, error) {
	return store.Open(p.StateDir(), store.WithTieBreak(p.TieBreak()))
}

// Create initializes a new profile under home: a fresh keypair, a default
// config, and the profile directory. The first profile created becomes the
// default.
func Create(home, name string) (*Profile, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(home, profilesDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("profile %q: %w", name, ErrProfileExists)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	signer, err := identity.NewSigner()
	if err != nil {
		return nil, err
	}
	seed := hex.EncodeToString(signer.Seed()) + "\n"
	if err := os.WriteFile(filepath.Join(dir, keyFile), []byte(seed), 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}

	p := &Profile{Name: name, Dir: dir, Signer: signer}
	if err := p.SaveConfig(); err != nil {
		return nil, err
	}

	// First profile becomes the default.
	if _, err := DefaultName(home); errors.Is(err, ErrNoProfile) {
		if err := SetDefault(home, name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Load opens a profile by name. An empty name loads the default profile.
func Load(home, name string) (*Profile, error) {
	if name == "" {
		var err error
		name, err = DefaultName(home)
		if err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(home, profilesDir, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, ErrNoProfile)
	}

	raw, err := os.ReadFile(filepath.Join(dir, keyFile))
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("profile %q: corrupt key file: %w", name, err)
	}
	signer, err := identity.SignerFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}

	p := &Profile{Name: name, Dir: dir, Signer: signer}

	cfgRaw, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(cfgRaw, &p.Config); err != nil {
		return nil, fmt.Errorf("profile %q: parse config: %w", name, err)
	}
	return p, nil
}

// SaveConfig writes the profile's config back to disk.
func (p *Profile) SaveConfig() error {
	out, err := yaml.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.Dir, configFile), out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// List returns the profile names under home, sorted by name.
func List(home string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(home, profilesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DefaultName returns the default profile's name, or ErrNoProfile.
func DefaultName(home string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(home, defaultFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoProfile
		}
		return "", fmt.Errorf("read default profile: %w", err)
	}
	name := strings.TrimSpace(string(raw))
	if name == "" {
		return "", ErrNoProfile
	}
	return name, nil
}

// SetDefault marks an existing profile as the default.
func SetDefault(home, name string) error {
	if _, err := os.Stat(filepath.Join(home, profilesDir, name)); err != nil {
		return fmt.Errorf("profile %q: %w", name, ErrNoProfile)
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return fmt.Errorf("create home: %w", err)
	}
	if err := os.WriteFile(filepath.Join(home, defaultFile), []byte(name+"\n"), 0o600); err != nil {
		return fmt.Errorf("set default profile: %w", err)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("profile name must not be empty")
	}
	for _, c := range name {
		valid := c == '-' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
		if !valid {
			return fmt.Errorf("profile name %q: only lowercase letters, digits, '-' and '_' are allowed", name)
		}
	}
	return nil
}
