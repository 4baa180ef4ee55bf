// Package config loads yamr settings from a YAML file and YAMR_ environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/index"
)

const (
	// AppName is the application name.
	AppName = "yamr"
	// EnvPrefix prefixes environment overrides, e.g. YAMR_OFFLINE.
	EnvPrefix = "YAMR"
	// LocalFileName is the config file looked up in the working directory.
	LocalFileName = "yamr.yaml"
)

// Repository kinds.
const (
	KindLocal  = "local"
	KindRemote = "remote"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Repository is one configured backing repository.
type Repository struct {
	Name string        `mapstructure:"name"`
	Kind string        `mapstructure:"kind"`
	Path string        `mapstructure:"path"`
	URL  string        `mapstructure:"url"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// CacheConfig controls the fetched-artifact cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Config holds every setting.
type Config struct {
	Repositories []Repository  `mapstructure:"repositories"`
	JDK          bool          `mapstructure:"jdk"`
	Cache        CacheConfig   `mapstructure:"cache"`
	Offline      bool          `mapstructure:"offline"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Workers      int           `mapstructure:"workers"`
	Concurrency  int           `mapstructure:"concurrency"`
	Merge        string        `mapstructure:"merge"`
	Platform     string        `mapstructure:"platform"`
	Listen       string        `mapstructure:"listen"`
}

// Dir returns the yamr state directory, ~/.yamr.
func Dir(home string) string {
	return filepath.Join(home, "."+AppName)
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig(home string) Config {
	return Config{
		JDK: true,
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(Dir(home), "cache"),
		},
		Timeout:     time.Minute,
		Workers:     4,
		Concurrency: 8,
		Merge:       "default",
		Platform:    string(dist.PlatformJVM),
		Listen:      ":8080",
	}
}

// LoadOptions selects where configuration is read from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set; it must exist.
	ConfigFile string
	// HomeDir overrides the user's home directory.
	HomeDir string
}

// Load reads the configuration. Without LoadOptions.ConfigFile it tries
// ~/.yamr/config.yaml, then ./yamr.yaml, and falls back to defaults. It
// returns the config file actually read, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	home := opts.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return nil, "", fmt.Errorf("getting home directory: %w", err)
		}
	}

	v := viper.New()
	defaults := DefaultConfig(home)
	v.SetDefault("jdk", defaults.JDK)
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("offline", defaults.Offline)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("merge", defaults.Merge)
	v.SetDefault("platform", defaults.Platform)
	v.SetDefault("listen", defaults.Listen)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := ""
	if opts.ConfigFile != "" {
		if !fileExists(opts.ConfigFile) {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		resolved = opts.ConfigFile
	} else {
		for _, candidate := range []string{
			filepath.Join(Dir(home), "config.yaml"),
			LocalFileName,
		} {
			if fileExists(candidate) {
				resolved = candidate
				break
			}
		}
	}

	if resolved != "" {
		v.SetConfigFile(resolved)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("reading config %s: %w", resolved, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

// Validate checks the repository list and the scalar settings, filling
// repository names and TTLs left empty.
func (c *Config) Validate() error {
	for i := range c.Repositories {
		r := &c.Repositories[i]
		switch r.Kind {
		case KindLocal:
			if r.Path == "" {
				return fmt.Errorf("repositories[%d]: local repository needs a path: %w", i, ErrInvalid)
			}
			if r.Name == "" {
				r.Name = r.Path
			}
		case KindRemote:
			if r.URL == "" {
				return fmt.Errorf("repositories[%d]: remote repository needs a url: %w", i, ErrInvalid)
			}
			if r.Name == "" {
				r.Name = r.URL
			}
			if r.TTL == 0 {
				r.TTL = index.DefaultTTL
			}
		default:
			return fmt.Errorf("repositories[%d]: unknown kind %q: %w", i, r.Kind, ErrInvalid)
		}
	}
	if _, err := dist.ParsePlatform(c.Platform); err != nil {
		return fmt.Errorf("platform: %v: %w", err, ErrInvalid)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d: %w", c.Workers, ErrInvalid)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d: %w", c.Concurrency, ErrInvalid)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %w", ErrInvalid)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
