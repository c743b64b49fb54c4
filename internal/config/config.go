package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

const (
	DebugAPIURL   = "http://localhost:8000"
	ReleaseAPIURL = "https://plesc.a3p.re"
)

// Config holds everything the client needs before the first request. It is
// built once at startup and passed down explicitly.
type Config struct {
	Mode           Mode          `yaml:"mode"`
	APIURL         string        `yaml:"api_url"`
	APIToken       string        `yaml:"api_token"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MetricsAddr    string        `yaml:"metrics_addr"`

	// DataDir is where config.yml, settings.yml, the session database and the
	// log file live.
	DataDir string `yaml:"-"`
}

// DefaultDataDir returns ~/.plesc.
func DefaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".plesc")
}

// Default returns the configuration used when nothing is overridden.
func Default(dataDir string) *Config {
	return &Config{
		Mode:           buildMode,
		LogLevel:       "info",
		LogFile:        filepath.Join(dataDir, "plesc.log"),
		RequestTimeout: 30 * time.Second,
		DataDir:        dataDir,
	}
}

// Load reads configuration in order: defaults, ~/.plesc/config.yml, a .env file
// in the working directory if present, then PLESC_* environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	return LoadFrom(getEnv("PLESC_HOME", DefaultDataDir()))
}

// LoadFrom is Load without the .env step, rooted at dataDir.
func LoadFrom(dataDir string) (*Config, error) {
	cfg := Default(dataDir)

	if err := cfg.loadFile(filepath.Join(dataDir, "config.yml")); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PLESC_MODE"); v != "" {
		c.Mode = Mode(v)
	}
	c.APIURL = getEnv("PLESC_API_URL", c.APIURL)
	c.APIToken = getEnv("PLESC_API_TOKEN", c.APIToken)
	c.LogLevel = getEnv("PLESC_LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("PLESC_LOG_FILE", c.LogFile)
	c.MetricsAddr = getEnv("PLESC_METRICS_ADDR", c.MetricsAddr)

	if v := os.Getenv("PLESC_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PLESC_REQUEST_TIMEOUT %q: %w", v, err)
		}
		c.RequestTimeout = d
	}

	return nil
}

// Validate checks the fields a request depends on.
func (c *Config) Validate() error {
	if c.Mode != ModeDebug && c.Mode != ModeRelease {
		return fmt.Errorf("unknown mode %q (want debug or release)", c.Mode)
	}

	u, err := url.Parse(c.BaseURL())
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api url %q: scheme and host are required", c.BaseURL())
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}

	return nil
}

// IsDebug reports whether the client talks to the local development backend.
func (c *Config) IsDebug() bool {
	return c.Mode == ModeDebug
}

// BaseURL returns the backend root: the explicit override if any, otherwise the
// endpoint for the build mode.
func (c *Config) BaseURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	if c.IsDebug() {
		return DebugAPIURL
	}
	return ReleaseAPIURL
}

// SessionDBPath is the sqlite file holding the signed-in session.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.DataDir, "session.db")
}

// SettingsPath is the YAML file holding user preferences.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.yml")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
