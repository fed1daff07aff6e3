package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	DB          DBConfig          `yaml:"db"`
	Log         LogConfig         `yaml:"log"`
	Request     RequestConfig     `yaml:"request"`
	Map         MapConfig         `yaml:"map"`
	Coordinates CoordinatesConfig `yaml:"coordinates"`
	Markers     MarkersConfig     `yaml:"markers"`
	Vault       VaultConfig       `yaml:"vault"`
	Watcher     WatcherConfig     `yaml:"watcher"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path     string   `yaml:"path"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RequestConfig holds HTTP request settings for style downloads.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Gap     Duration      `yaml:"gap"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// MapConfig holds background map settings.
type MapConfig struct {
	// Theme is the initial theme until the UI stores its own choice.
	Theme string `yaml:"theme"`
	// AccessToken is appended to mapbox:// style references.
	AccessToken string `yaml:"access_token"`
	// TileSetsCSV is imported into the tile set table at startup when it changed.
	TileSetsCSV string `yaml:"tile_sets_csv"`
	// ProbeStyle is checked at startup. Empty disables the check.
	ProbeStyle string `yaml:"probe_style"`
}

// CoordinatesConfig controls coordinate parsing.
type CoordinatesConfig struct {
	AllowZero bool `yaml:"allow_zero"`
}

// MarkersConfig controls the marker image cache.
type MarkersConfig struct {
	CacheLimit int `yaml:"cache_limit"`
}

// VaultConfig points at the notes directory.
type VaultConfig struct {
	Path      string `yaml:"path"`
	ViewsFile string `yaml:"views_file"`
}

// WatcherConfig holds the change polling settings.
type WatcherConfig struct {
	Interval Duration `yaml:"interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		DB: DBConfig{
			Path:     "./data/notemap.db",
			CacheTTL: Duration(30 * Day),
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Gap:     Duration(100 * time.Millisecond),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Map: MapConfig{
			Theme:       "light",
			TileSetsCSV: "./data/tile_sets.csv",
		},
		Vault: VaultConfig{
			Path:      "./vault",
			ViewsFile: "./vault/.notemap/views.yaml",
		},
		Watcher: WatcherConfig{
			Interval: Duration(2 * time.Second),
		},
	}
}

// Load reads the configuration from path.
// A missing file is created with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env fallback, never written back to disk
	if cfg.Map.AccessToken == "" {
		cfg.Map.AccessToken = os.Getenv("MAPBOX_ACCESS_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum and range fields.
func (c *Config) Validate() error {
	if !IsTheme(c.Map.Theme) {
		return fmt.Errorf("invalid map theme '%s': must be 'light' or 'dark'", c.Map.Theme)
	}
	if c.Markers.CacheLimit < 0 {
		return fmt.Errorf("invalid markers cache_limit %d: must be >= 0", c.Markers.CacheLimit)
	}
	if c.Watcher.Interval < 0 {
		return fmt.Errorf("invalid watcher interval %s", time.Duration(c.Watcher.Interval))
	}
	return nil
}

// IsTheme reports whether s names a supported theme.
func IsTheme(s string) bool {
	return s == ThemeLight || s == ThemeDark
}

// Save writes the configuration to path, with explanatory header comments.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# notemap Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# The access token falls back to MAPBOX_ACCESS_TOKEN (also read from .env).

`)
	data = append(header, data...)

	reTheme := regexp.MustCompile(`(?m)^(\s+)theme:`)
	data = reTheme.ReplaceAll(data, []byte("${1}# Options: light, dark\n${1}theme:"))

	reZero := regexp.MustCompile(`(?m)^(\s+)allow_zero:`)
	data = reZero.ReplaceAll(data, []byte("${1}# false rejects a latitude or longitude of exactly 0\n${1}allow_zero:"))

	reLimit := regexp.MustCompile(`(?m)^(\s+)cache_limit:`)
	data = reLimit.ReplaceAll(data, []byte("${1}# 0 keeps every rendered marker image\n${1}cache_limit:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault writes the default configuration to path
// unless a file already exists there.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
