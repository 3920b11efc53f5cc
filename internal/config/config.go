// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "config.yaml"

	defaultBackendTimeout = 10 * time.Second
	defaultLoadTimeout    = 10 * time.Second
	defaultSessionIdleTTL = 30 * time.Minute
	defaultRefreshEvery   = 5 * time.Minute
	defaultListLimit      = 5
	defaultRetention      = 90 * 24 * time.Hour
	defaultMaxPerBooking  = 200

	defaultRefreshCooldown = 10 * time.Second
	defaultRefreshPerHour  = 60
	defaultActionsPerHour  = 120
)

type DatabaseConfig struct {
	Driver                 string        `yaml:"driver"`
	Filename               string        `yaml:"filename"`
	ActionLogRetention     time.Duration `yaml:"action_log_retention"`
	ActionLogMaxPerBooking int           `yaml:"action_log_max_per_booking"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"-"` // Loaded from environment
}

type DashboardConfig struct {
	TopFieldsLimit int           `yaml:"top_fields_limit"`
	UpcomingLimit  int           `yaml:"upcoming_limit"`
	RecentLimit    int           `yaml:"recent_limit"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	RefreshEvery   time.Duration `yaml:"refresh_every"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
}

type RateLimitConfig struct {
	RefreshCooldown    time.Duration `yaml:"refresh_cooldown"`
	RefreshMaxPerHour  int           `yaml:"refresh_max_per_hour"`
	ActionMaxIPPerHour int           `yaml:"action_max_ip_per_hour"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		Timezone    string `yaml:"timezone"`
		TrustProxy  bool   `yaml:"trust_proxy"`
	} `yaml:"app"`

	Backend   BackendConfig   `yaml:"backend"`
	Database  DatabaseConfig  `yaml:"database"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`

	location *time.Location
}

// Path returns CONFIG_PATH when set, otherwise the default file name.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, pulls secrets from the environment, applies
// defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.Backend.Token = os.Getenv("BACKEND_API_TOKEN")
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.ActionLogRetention <= 0 {
		c.Database.ActionLogRetention = defaultRetention
	}
	if c.Database.ActionLogMaxPerBooking <= 0 {
		c.Database.ActionLogMaxPerBooking = defaultMaxPerBooking
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = defaultBackendTimeout
	}
	d := &c.Dashboard
	if d.TopFieldsLimit <= 0 {
		d.TopFieldsLimit = defaultListLimit
	}
	if d.UpcomingLimit <= 0 {
		d.UpcomingLimit = defaultListLimit
	}
	if d.RecentLimit <= 0 {
		d.RecentLimit = defaultListLimit
	}
	if d.LoadTimeout <= 0 {
		d.LoadTimeout = defaultLoadTimeout
	}
	if d.RefreshEvery <= 0 {
		d.RefreshEvery = defaultRefreshEvery
	}
	if d.SessionIdleTTL <= 0 {
		d.SessionIdleTTL = defaultSessionIdleTTL
	}
	rl := &c.RateLimit
	if rl.RefreshCooldown <= 0 {
		rl.RefreshCooldown = defaultRefreshCooldown
	}
	if rl.RefreshMaxPerHour <= 0 {
		rl.RefreshMaxPerHour = defaultRefreshPerHour
	}
	if rl.ActionMaxIPPerHour <= 0 {
		rl.ActionMaxIPPerHour = defaultActionsPerHour
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}

	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid app timezone %q: %w", c.App.Timezone, err)
	}
	c.location = loc

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend base_url must be an absolute http(s) URL: %s", c.Backend.BaseURL)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Dashboard.SessionIdleTTL < c.Dashboard.RefreshEvery {
		return fmt.Errorf("dashboard session_idle_ttl (%s) must not be shorter than refresh_every (%s)",
			c.Dashboard.SessionIdleTTL, c.Dashboard.RefreshEvery)
	}

	return nil
}

// Location is the facility calendar. An empty timezone means UTC.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
