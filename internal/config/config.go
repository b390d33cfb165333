// Package config loads prank-deck settings from the config file, environment
// and flags, in that order of increasing precedence. The file is optional;
// everything has a workable default except the backend credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	// Backend connection.
	BaseURL           string `env:"PRANKDECK_BASE_URL"`
	Token             string `env:"PRANKDECK_TOKEN"`
	RequestsPerMinute int    `env:"PRANKDECK_REQUESTS_PER_MINUTE"`

	// Voice selects which rendering of each line is previewed and cached.
	Voice string `env:"PRANKDECK_VOICE"`

	// Audio blob cache.
	CacheDir     string `env:"PRANKDECK_CACHE_DIR"`
	CacheMemMB   int    `env:"PRANKDECK_CACHE_MEM_MB"`
	CacheDiskMB  int    `env:"PRANKDECK_CACHE_DISK_MB"`
	CacheTTLDays int    `env:"PRANKDECK_CACHE_TTL_DAYS"`

	// Rendering.
	GlamourStyle    string `env:"PRANKDECK_STYLE"`
	GlamourMaxWidth uint   `env:"PRANKDECK_WIDTH"`
	EnableMouse     bool   `env:"PRANKDECK_MOUSE"`

	// Debugging.
	Debug   bool   `env:"PRANKDECK_DEBUG"`
	LogFile string `env:"PRANKDECK_LOGFILE"`
}

// Default returns the configuration used when no file and no environment
// overrides exist.
func Default() Config {
	return Config{
		RequestsPerMinute: 120,
		Voice:             "default",
		CacheMemMB:        64,
		CacheDiskMB:       512,
		CacheTTLDays:      7,
		GlamourStyle:      "auto",
	}
}

// Dirs returns the candidate config directories, most specific first.
// PRANKDECK_CONFIG_HOME wins, then XDG, then the platform's user scope.
func Dirs() ([]string, error) {
	scope := gap.NewScope(gap.User, "prankdeck")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("locate config directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "prankdeck")}, dirs...)
	}
	if c := os.Getenv("PRANKDECK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// Load reads the config file (if any) through v and applies environment
// overrides on top of the defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	if v != nil {
		if v.IsSet("base_url") {
			cfg.BaseURL = v.GetString("base_url")
		}
		if v.IsSet("token") {
			cfg.Token = v.GetString("token")
		}
		if v.IsSet("requests_per_minute") {
			cfg.RequestsPerMinute = v.GetInt("requests_per_minute")
		}
		if v.IsSet("voice") {
			cfg.Voice = v.GetString("voice")
		}
		if v.IsSet("cache.dir") {
			cfg.CacheDir = v.GetString("cache.dir")
		}
		if v.IsSet("cache.memory_mb") {
			cfg.CacheMemMB = v.GetInt("cache.memory_mb")
		}
		if v.IsSet("cache.disk_mb") {
			cfg.CacheDiskMB = v.GetInt("cache.disk_mb")
		}
		if v.IsSet("cache.ttl_days") {
			cfg.CacheTTLDays = v.GetInt("cache.ttl_days")
		}
		if v.IsSet("style") {
			cfg.GlamourStyle = v.GetString("style")
		}
		if v.IsSet("width") {
			cfg.GlamourMaxWidth = v.GetUint("width")
		}
		if v.IsSet("mouse") {
			cfg.EnableMouse = v.GetBool("mouse")
		}
		if v.IsSet("debug") {
			cfg.Debug = v.GetBool("debug")
		}
		if v.IsSet("logfile") {
			cfg.LogFile = v.GetString("logfile")
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	return cfg.normalize()
}

// normalize expands paths and fills derived defaults.
func (c Config) normalize() (Config, error) {
	var err error
	if c.CacheDir != "" {
		c.CacheDir, err = homedir.Expand(c.CacheDir)
		if err != nil {
			return c, fmt.Errorf("expand cache dir: %w", err)
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			log.Debug("home directory unresolved, disk cache disabled", "error", err)
			return c, nil
		}
		c.CacheDir = filepath.Join(home, ".cache", "prankdeck", "audio")
	}
	if c.LogFile != "" {
		c.LogFile, err = homedir.Expand(c.LogFile)
		if err != nil {
			return c, fmt.Errorf("expand log file: %w", err)
		}
	}
	return c, nil
}

// CacheTTL returns the disk cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}
