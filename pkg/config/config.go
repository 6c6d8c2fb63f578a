package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads
const EnvPrefix = "PIXIEDL"

// Config holds all configuration options for the gallery downloader
type Config struct {
	// Gallery target
	Gallery GalleryConfig `yaml:"gallery" json:"gallery" envconfig:"GALLERY"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser" json:"browser" envconfig:"BROWSER"`

	// Discovery timings
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape" envconfig:"SCRAPE"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download" envconfig:"DOWNLOAD"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output" envconfig:"OUTPUT"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications" envconfig:"NOTIFICATIONS"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging" envconfig:"LOG"`
}

// GalleryConfig identifies the gallery to export
type GalleryConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Domains []string `yaml:"domains" json:"domains"`
}

// BrowserConfig holds page renderer configuration
type BrowserConfig struct {
	Headless     bool          `yaml:"headless" json:"headless"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent" split_words:"true"`
	WindowWidth  int           `yaml:"window_width" json:"window_width" split_words:"true"`
	WindowHeight int           `yaml:"window_height" json:"window_height" split_words:"true"`
	ExecPath     string        `yaml:"exec_path" json:"exec_path" split_words:"true"`
	IdleWindow   time.Duration `yaml:"idle_window" json:"idle_window" split_words:"true"`
}

// ScrapeConfig holds the bounded waits used while discovering photos
type ScrapeConfig struct {
	NavigationTimeout  time.Duration `yaml:"navigation_timeout" json:"navigation_timeout" split_words:"true"`
	NetworkIdleTimeout time.Duration `yaml:"network_idle_timeout" json:"network_idle_timeout" split_words:"true"`
	PasswordTimeout    time.Duration `yaml:"password_timeout" json:"password_timeout" split_words:"true"`
	SettleDelay        time.Duration `yaml:"settle_delay" json:"settle_delay" split_words:"true"`
	ScrollPause        time.Duration `yaml:"scroll_pause" json:"scroll_pause" split_words:"true"`
	FinalPause         time.Duration `yaml:"final_pause" json:"final_pause" split_words:"true"`
	StaleThreshold     int           `yaml:"stale_threshold" json:"stale_threshold" split_words:"true"`
	MaxScrolls         int           `yaml:"max_scrolls" json:"max_scrolls" split_words:"true"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Concurrent  int           `yaml:"concurrent" json:"concurrent"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" split_words:"true"`
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base" split_words:"true"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit" split_words:"true"`
	Burst       int           `yaml:"burst" json:"burst"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	Manifest  bool   `yaml:"manifest" json:"manifest"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete" split_words:"true"`
	OnError          bool   `yaml:"on_error" json:"on_error" split_words:"true"`
	NotificationType string `yaml:"notification_type" json:"notification_type" split_words:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Gallery: GalleryConfig{
			Domains: []string{"pixieset.com", "pixi.com"},
		},
		Browser: BrowserConfig{
			Headless:     true,
			UserAgent:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
			IdleWindow:   500 * time.Millisecond,
		},
		Scrape: ScrapeConfig{
			NavigationTimeout:  30 * time.Second,
			NetworkIdleTimeout: 15 * time.Second,
			PasswordTimeout:    10 * time.Second,
			SettleDelay:        3 * time.Second,
			ScrollPause:        600 * time.Millisecond,
			FinalPause:         1 * time.Second,
			StaleThreshold:     5,
			MaxScrolls:         2000,
		},
		Download: DownloadConfig{
			Concurrent:  5,
			Timeout:     120 * time.Second,
			MaxAttempts: 3,
			BackoffBase: 1 * time.Second,
			RateLimit:   0, // 0 means no pacing
			Burst:       1,
		},
		Output: OutputConfig{
			Directory: "./downloads",
			Manifest:  true,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv overlays PIXIEDL_* environment variables onto the configuration.
// Variables that are not set leave the current value untouched. Keys come
// from field names (PIXIEDL_DOWNLOAD_MAX_ATTEMPTS); leaf fields carry no
// envconfig tag, because a tag also makes envconfig read the bare name
// (TIMEOUT, URL) when the prefixed variable is absent.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home, _ := os.UserHomeDir()

	// Check in order of precedence
	locations := []string{
		".pixiedl.yaml",
		".pixiedl.yml",
	}
	if home != "" {
		locations = append(locations,
			filepath.Join(home, ".config", "pixiedl", "config.yaml"),
			filepath.Join(home, ".config", "pixiedl", "config.yml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Validate gallery
	if c.Gallery.URL != "" {
		u, err := url.Parse(c.Gallery.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("gallery URL must be an absolute http(s) URL: %q", c.Gallery.URL))
		}
	}
	if len(c.Gallery.Domains) == 0 {
		errs = append(errs, errors.New("at least one platform domain is required"))
	}

	// Validate browser
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser window size must be positive"))
	}

	// Validate scrape timings
	if c.Scrape.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Scrape.NetworkIdleTimeout < 0 || c.Scrape.PasswordTimeout < 0 ||
		c.Scrape.SettleDelay < 0 || c.Scrape.ScrollPause < 0 || c.Scrape.FinalPause < 0 {
		errs = append(errs, errors.New("scrape waits cannot be negative"))
	}
	if c.Scrape.StaleThreshold <= 0 {
		errs = append(errs, errors.New("stale threshold must be positive"))
	}
	if c.Scrape.MaxScrolls <= 0 {
		errs = append(errs, errors.New("max scrolls must be positive"))
	}

	// Validate download settings
	if c.Download.Concurrent <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Download.BackoffBase < 0 {
		errs = append(errs, errors.New("backoff base cannot be negative"))
	}
	if c.Download.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit cannot be negative"))
	}

	// Validate output settings
	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	// Validate notification type
	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags present in the map are applied, so callers pass the flags the
// user actually set.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["url"].(string); ok && v != "" {
		c.Gallery.URL = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["concurrent"].(int); ok {
		c.Download.Concurrent = v
	}
	if v, ok := flags["max-retries"].(int); ok {
		c.Download.MaxAttempts = v
	}
	if v, ok := flags["download-timeout"].(time.Duration); ok {
		c.Download.Timeout = v
	}
	if v, ok := flags["rate-limit"].(float64); ok {
		c.Download.RateLimit = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["manifest"].(bool); ok {
		c.Output.Manifest = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".pixiedl.env"))
	}

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
