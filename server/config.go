package server

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/storage"
)

const (
	// DefaultAddress is the default of the HTTP API address.
	DefaultAddress = "localhost:8000"

	defaultSessionIdleMinutes = 120
	defaultRenderCacheMB      = 64
)

// Config is the server's TOML configuration.
type Config struct {
	Server HTTPConfig             `toml:"server"`
	Log    celled.LogConfig       `toml:"log"`
	Store  StoreConfig            `toml:"store"`
	Bucket BucketConfig           `toml:"bucket"`
	Kafka  storage.ActivityConfig `toml:"kafka"`
}

// HTTPConfig holds the HTTP front-end settings.
type HTTPConfig struct {
	Address            string   `toml:"address"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	SessionIdleMinutes int      `toml:"session_idle_minutes"`
	RenderCacheMB      int      `toml:"render_cache_mb"`
	Note               string   `toml:"note"`
}

// StoreConfig locates the local project store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// BucketConfig names the default blob bucket projects load from and export
// to, e.g. file:///data/projects or s3://my-bucket.
type BucketConfig struct {
	URL string `toml:"url"`
}

// LoadConfig reads a TOML config, making relative paths absolute against
// the config file's directory, and installs the configured logger.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %s: %v", path, err)
	}
	configDir := filepath.Dir(path)
	var err error
	if c.Log.Logfile != "" {
		if c.Log.Logfile, err = celled.ConvertToAbsolute(c.Log.Logfile, configDir); err != nil {
			return nil, err
		}
	}
	if c.Store.Path != "" {
		if c.Store.Path, err = celled.ConvertToAbsolute(c.Store.Path, configDir); err != nil {
			return nil, err
		}
	}
	c.applyDefaults()

	c.Log.SetLogger()
	return &c, nil
}

// DefaultConfig returns a runnable config for running without a file.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.SessionIdleMinutes == 0 {
		c.Server.SessionIdleMinutes = defaultSessionIdleMinutes
	}
	if c.Server.RenderCacheMB == 0 {
		c.Server.RenderCacheMB = defaultRenderCacheMB
	}
	if c.Store.Path == "" {
		c.Store.Path = "celled-projects"
	}
}

// SessionIdle returns the idle timeout as a duration.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Server.SessionIdleMinutes) * time.Minute
}
