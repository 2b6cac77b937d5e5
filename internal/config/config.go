// Package config loads pginsights settings from config.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	AppName    = "pginsights"
	FileName   = "config.yaml"
	EnvPrefix  = "PGINSIGHTS"
	CacheName  = "cache.db"
	DefaultTTL = 24 * time.Hour
)

type Settings struct {
	DebugMode bool    `mapstructure:"debug_mode"`
	Log       Log     `mapstructure:"log"`
	Cache     Cache   `mapstructure:"cache"`
	System    System  `mapstructure:"system"`
	Metrics   Metrics `mapstructure:"metrics"`

	// Dir is the directory the settings were loaded from.
	Dir string `mapstructure:"-"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type Cache struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" validate:"min=0"`
	Path    string        `mapstructure:"path"`
}

type System struct {
	// TotalMemoryMB overrides host memory detection when positive.
	TotalMemoryMB int64 `mapstructure:"total_memory_mb" validate:"min=0"`
}

type Metrics struct {
	Textfile string `mapstructure:"textfile"`
}

// CacheEnabled reports whether runs should read and write the cache.
func (s *Settings) CacheEnabled() bool {
	return s.Cache.Enabled && !s.DebugMode
}

// Dir returns the default configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

var validate = validator.New()

// Load reads config.yaml from dir, or from the default directory when dir is
// empty. A missing file yields the defaults.
func Load(dir string) (*Settings, error) {
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	v := viper.New()
	v.SetDefault("debug_mode", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", DefaultTTL)
	v.SetDefault("cache.path", "")
	v.SetDefault("system.total_memory_mb", 0)
	v.SetDefault("metrics.textfile", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(filepath.Join(dir, FileName))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	s.Dir = dir
	s.Log.Level = strings.ToLower(s.Log.Level)
	s.Log.Format = strings.ToLower(s.Log.Format)
	if s.Cache.Path == "" {
		s.Cache.Path = filepath.Join(dir, CacheName)
	}

	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// Template is the commented config.yaml written by init.
const Template = `# pginsights settings
# Every key can be overridden with a PGINSIGHTS_ environment variable,
# e.g. PGINSIGHTS_LOG_LEVEL=debug.

# Skip the insight cache entirely.
debug_mode: false

log:
  # debug, info, warn or error
  level: info
  # console or json
  format: console

cache:
  enabled: true
  ttl: 24h
  # Defaults to cache.db next to this file.
  # path: /path/to/cache.db

system:
  # Total memory used for configuration targets. 0 detects host memory.
  total_memory_mb: 0

metrics:
  # Write Prometheus metrics here after every insights run.
  # textfile: /var/lib/node_exporter/pginsights.prom
`

// ErrExists is returned by WriteTemplate when config.yaml already exists.
var ErrExists = errors.New("config file already exists")

// WriteTemplate writes Template into dir and returns the file path.
func WriteTemplate(dir string, force bool) (string, error) {
	path := filepath.Join(dir, FileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return path, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
		return path, fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
