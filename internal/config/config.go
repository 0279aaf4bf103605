package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig holds the Google Calendar sync target. The credential
// values are normally supplied through the environment (GOOGLE_CALENDAR_ID,
// GOOGLE_SERVICE_ACCOUNT_KEY) and only fall back to the config file so that
// interactive use does not require exporting them every time.
type CalendarConfig struct {
	// CalendarID is the target calendar (e.g. "...@group.calendar.google.com").
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	// ServiceAccountKeyFile is a path to a service-account JSON key. Ignored
	// when GOOGLE_SERVICE_ACCOUNT_KEY carries the key inline.
	ServiceAccountKeyFile string `yaml:"service_account_key_file" json:"service_account_key_file"`
}

// Config is the top-level application configuration.
type Config struct {
	// APIURL is the MBTA v3 API base URL.
	APIURL string `yaml:"api_url" json:"api_url"`

	// APIKey is the optional MBTA API key; MBTA_API_KEY overrides it.
	APIKey string `yaml:"api_key" json:"api_key"`

	// CacheDir is where the dated alert-feed responses are stored.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Calendar configures the sync target.
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// RefreshCron is the daemon-mode sync schedule (standard 5-field cron).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the daemon-mode HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFormat: text or json.
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cacheDir := "./var/cache"
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "mbtacal")
	}
	return &Config{
		APIURL:      "https://api-v3.mbta.com",
		CacheDir:    cacheDir,
		RefreshCron: "*/15 * * * *",
		Listen:      "127.0.0.1:8080",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.APIURL == "" {
		c.APIURL = def.APIURL
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = def.LogLevel
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		c.LogFormat = def.LogFormat
	}
}

// ApplyEnv overlays environment variables onto the configuration.
// MBTA_API_KEY and GOOGLE_CALENDAR_ID take precedence over file values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MBTA_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("GOOGLE_CALENDAR_ID"); v != "" {
		c.Calendar.CalendarID = v
	}
}

// ServiceAccountKey returns the Google service-account key JSON, preferring
// the GOOGLE_SERVICE_ACCOUNT_KEY environment variable over the configured
// key file.
func (c *Config) ServiceAccountKey() ([]byte, error) {
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"); v != "" {
		return []byte(v), nil
	}
	if c.Calendar.ServiceAccountKeyFile != "" {
		return os.ReadFile(c.Calendar.ServiceAccountKeyFile)
	}
	return nil, errors.New("no service account key: set GOOGLE_SERVICE_ACCOUNT_KEY or calendar.service_account_key_file")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, write a default config with 0600 perms
//     and return the defaults.
//   - Otherwise unmarshal, normalize, and apply env overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			cfg.ApplyEnv()
			if err := Save(path, cfg); err != nil {
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
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".mbtacal-config-*.tmp")
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
