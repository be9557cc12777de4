package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"portraitd/internal/common/fsutil"
)

// Defaults applied by ApplyDefaults when the corresponding fields are unset.
const (
	DefaultAddr           = ":8080"
	DefaultDataDir        = "~/.local/share/portraitd"
	DefaultModuleID       = "runware-imagegen"
	DefaultRunwareURL     = "https://api.runware.ai/v1"
	DefaultTimeoutSec     = 120
	DefaultConnectTimeout = 10
	DefaultRedisChannel   = "portraitd:settings"
	DefaultMaxBodyBytes   = 1 << 20
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr         string         `json:"addr" yaml:"addr" toml:"addr"`
	DataDir      string         `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	ModuleID     string         `json:"module_id" yaml:"module_id" toml:"module_id"`
	LogLevel     string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string         `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxBodyBytes int64          `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	GMUsers      []string       `json:"gm_users" yaml:"gm_users" toml:"gm_users"`
	Settings     SettingsConfig `json:"settings" yaml:"settings" toml:"settings"`
	Runware      RunwareConfig  `json:"runware" yaml:"runware" toml:"runware"`
	CORS         CORSConfig     `json:"cors" yaml:"cors" toml:"cors"`
}

// SettingsConfig selects the settings store backend.
type SettingsConfig struct {
	// Backend is "file" (default) or "redis".
	Backend string      `json:"backend" yaml:"backend" toml:"backend"`
	Path    string      `json:"path" yaml:"path" toml:"path"`
	Redis   RedisConfig `json:"redis" yaml:"redis" toml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	Password string `json:"password" yaml:"password" toml:"password"`
	DB       int    `json:"db" yaml:"db" toml:"db"`
	Channel  string `json:"channel" yaml:"channel" toml:"channel"`
}

// RunwareConfig points at the hosted image service.
type RunwareConfig struct {
	BaseURL               string `json:"base_url" yaml:"base_url" toml:"base_url"`
	TimeoutSeconds        int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
}

// CORSConfig is opt-in; when disabled no CORS middleware is installed.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields and expands a leading '~' in paths.
func (c *Config) ApplyDefaults() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dir, err := fsutil.ExpandHome(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = dir
	if c.ModuleID == "" {
		c.ModuleID = DefaultModuleID
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Settings.Backend == "" {
		c.Settings.Backend = "file"
	}
	if c.Settings.Path == "" {
		c.Settings.Path = filepath.Join(c.DataDir, "settings.json")
	} else if p, err := fsutil.ExpandHome(c.Settings.Path); err == nil {
		c.Settings.Path = p
	} else {
		return err
	}
	if c.Settings.Redis.Channel == "" {
		c.Settings.Redis.Channel = DefaultRedisChannel
	}
	if c.Runware.BaseURL == "" {
		c.Runware.BaseURL = DefaultRunwareURL
	}
	if c.Runware.TimeoutSeconds <= 0 {
		c.Runware.TimeoutSeconds = DefaultTimeoutSec
	}
	if c.Runware.ConnectTimeoutSeconds <= 0 {
		c.Runware.ConnectTimeoutSeconds = DefaultConnectTimeout
	}
	return nil
}

// Validate rejects combinations the service cannot run with.
func (c Config) Validate() error {
	switch c.Settings.Backend {
	case "file":
	case "redis":
		if c.Settings.Redis.Addr == "" {
			return fmt.Errorf("settings.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown settings backend: %q", c.Settings.Backend)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format: %q", c.LogFormat)
	}
	return nil
}

// IsGM reports whether userID is configured as a game master.
func (c Config) IsGM(userID string) bool {
	for _, id := range c.GMUsers {
		if id == userID {
			return true
		}
	}
	return false
}
