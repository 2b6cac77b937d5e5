// Package profile stores named database connections in profiles.yaml.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jacobarthurs/pginsights/internal/db"
)

const FileName = "profiles.yaml"

// AdHocName names a connection given directly with --db.
const AdHocName = "--db"

var (
	ErrNotFound   = errors.New("profile not found")
	ErrNoProfiles = errors.New("no profiles configured")
)

var validate = validator.New()

type Profile struct {
	Name    string `yaml:"name" validate:"required,excludesall= /\\"`
	Kind    string `yaml:"kind,omitempty"`
	ConnStr string `yaml:"conn_str" validate:"required"`
}

// AdHoc reports whether the profile came from --db rather than the file.
func (p Profile) AdHoc() bool {
	return p.Name == AdHocName
}

type Config struct {
	Default  string    `yaml:"default,omitempty"`
	Profiles []Profile `yaml:"profiles"`
}

// Store reads and writes profiles.yaml inside one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

func (s *Store) Get(name string) (Profile, error) {
	cfg, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, ErrNoProfiles
		}
		return Profile{}, err
	}

	for _, p := range cfg.Profiles {
		if p.Name == name {
			p.Kind = db.NormalizeKind(p.Kind)
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (s *Store) List() ([]Profile, error) {
	cfg, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Profile, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		p.Kind = db.NormalizeKind(p.Kind)
		out[i] = p
	}
	return out, nil
}

// Default returns the default profile name, empty when none is set.
func (s *Store) Default() (string, error) {
	cfg, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return cfg.Default, nil
}

// Add creates the profile or replaces the one with the same name.
func (s *Store) Add(p Profile) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	p.Kind = db.NormalizeKind(p.Kind)

	cfg, err := s.load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if cfg == nil {
		cfg = &Config{}
	}

	for i := range cfg.Profiles {
		if cfg.Profiles[i].Name == p.Name {
			cfg.Profiles[i] = p
			return s.save(cfg)
		}
	}
	cfg.Profiles = append(cfg.Profiles, p)
	return s.save(cfg)
}

func (s *Store) Remove(name string) error {
	cfg, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return err
	}

	for i, p := range cfg.Profiles {
		if p.Name == name {
			cfg.Profiles = append(cfg.Profiles[:i], cfg.Profiles[i+1:]...)
			if cfg.Default == name {
				cfg.Default = ""
			}
			return s.save(cfg)
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (s *Store) SetDefault(name string) error {
	cfg, err := s.load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if cfg == nil {
		cfg = &Config{}
	}

	for _, p := range cfg.Profiles {
		if p.Name == name {
			cfg.Default = name
			return s.save(cfg)
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (s *Store) ClearDefault() error {
	cfg, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cfg.Default = ""
	return s.save(cfg)
}

// ResolveTarget picks the connection for a command: an explicit --db value,
// then a named profile, then the default profile. ok is false when none of
// them is available.
func (s *Store) ResolveTarget(connStr, kind, profileName string) (p Profile, ok bool, err error) {
	if connStr != "" {
		return Profile{Name: AdHocName, Kind: db.NormalizeKind(kind), ConnStr: connStr}, true, nil
	}
	if profileName != "" {
		p, err := s.Get(profileName)
		return p, err == nil, err
	}

	def, err := s.Default()
	if err != nil || def == "" {
		return Profile{}, false, err
	}
	p, err = s.Get(def)
	return p, err == nil, err
}

func (s *Store) load() (*Config, error) {
	path := s.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing profiles %s: %w", path, err)
	}
	return &cfg, nil
}

func (s *Store) save(cfg *Config) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling profiles: %w", err)
	}

	path := s.Path()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing profiles %s: %w", path, err)
	}
	return nil
}
