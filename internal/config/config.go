package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and YAML load/save,
// including first-run config creation with 0600 permissions. Environment
// overrides are applied by ApplyEnv after .env loading in main.

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PlannerConfig points the plan generator at an Ollama-compatible
// /api/generate endpoint. An empty Endpoint keeps the heuristic planner.
type PlannerConfig struct {
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the chat UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CORSOrigin is sent as Access-Control-Allow-Origin on API responses.
	CORSOrigin string `yaml:"cors_origin" json:"cors_origin"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for recomputing stale next_due dates of recurring events.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultLogLevel       = "info"
	defaultCORSOrigin     = "*"
	defaultRefreshCron    = "*/15 * * * *"
	defaultPlannerModel   = "llama3.2"
	defaultPlannerTimeout = 20
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		LogLevel:    defaultLogLevel,
		CORSOrigin:  defaultCORSOrigin,
		RefreshCron: defaultRefreshCron,
		Planner: PlannerConfig{
			Model:          defaultPlannerModel,
			TimeoutSeconds: defaultPlannerTimeout,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = defaultCORSOrigin
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	c.Planner.Endpoint = strings.TrimRight(strings.TrimSpace(c.Planner.Endpoint), "/")
	if c.Planner.Model == "" {
		c.Planner.Model = defaultPlannerModel
	}
	if c.Planner.TimeoutSeconds <= 0 {
		c.Planner.TimeoutSeconds = defaultPlannerTimeout
	}
	// Half-filled credentials would lock everyone out.
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// Env variable names read by ApplyEnv.
const (
	EnvListen          = "CHATCAL_LISTEN"
	EnvLogLevel        = "CHATCAL_LOG_LEVEL"
	EnvCORSOrigin      = "CHATCAL_CORS_ORIGIN"
	EnvPlannerEndpoint = "CHATCAL_PLANNER_ENDPOINT"
	EnvPlannerModel    = "CHATCAL_PLANNER_MODEL"
	EnvPlannerTimeout  = "CHATCAL_PLANNER_TIMEOUT_SECONDS"
)

// ApplyEnv overrides fields from the environment via lookup (os.LookupEnv
// in production) and re-normalizes.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvListen, &c.Listen)
	set(EnvLogLevel, &c.LogLevel)
	set(EnvCORSOrigin, &c.CORSOrigin)
	set(EnvPlannerEndpoint, &c.Planner.Endpoint)
	set(EnvPlannerModel, &c.Planner.Model)
	if v, ok := lookup(EnvPlannerTimeout); ok {
		if n, err := cast.ToIntE(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Planner.TimeoutSeconds = n
		}
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".chatcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
