package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"portraitd/internal/config"
)

var (
	configPath string
	flagAddr   string
	flagData   string
	flagLevel  string
	flagFormat string
	flagUser   string
)

var rootCmd = &cobra.Command{
	Use:           "portraitd",
	Short:         "AI portrait generator for tabletop entities",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	defaultConfig := os.Getenv("PORTRAITD_CONFIG")
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", defaultConfig, "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&flagAddr, "addr", "", "HTTP listen address, e.g. :8080")
	pf.StringVar(&flagData, "data-dir", "", "Directory for settings and saved images")
	pf.StringVar(&flagLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagFormat, "log-format", "", "Log format: console or json")
	pf.StringVar(&flagUser, "user", envOr("PORTRAITD_USER", ""), "User id acting from the CLI")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig layers the config file, PORTRAITD_* environment defaults and
// command-line flags, in increasing precedence.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	applyEnv(&cfg)
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagData != "" {
		cfg.DataDir = flagData
	}
	if flagLevel != "" {
		cfg.LogLevel = flagLevel
	}
	if flagFormat != "" {
		cfg.LogFormat = flagFormat
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) {
	if v := os.Getenv("PORTRAITD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("PORTRAITD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PORTRAITD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PORTRAITD_GM_USERS"); v != "" {
		cfg.GMUsers = splitCSV(v)
	}
	if v := os.Getenv("PORTRAITD_REDIS_ADDR"); v != "" {
		cfg.Settings.Backend = "redis"
		cfg.Settings.Redis.Addr = v
	}
	if v := os.Getenv("PORTRAITD_RUNWARE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runware.TimeoutSeconds = n
		}
	}
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.LogFormat == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return l.Level(lvl).With().Timestamp().Logger()
}
