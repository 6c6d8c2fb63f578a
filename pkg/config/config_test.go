package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{"pixieset.com", "pixi.com"}, cfg.Gallery.Domains)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, 1080, cfg.Browser.WindowHeight)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.IdleWindow)

	assert.Equal(t, 30*time.Second, cfg.Scrape.NavigationTimeout)
	assert.Equal(t, 15*time.Second, cfg.Scrape.NetworkIdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Scrape.PasswordTimeout)
	assert.Equal(t, 3*time.Second, cfg.Scrape.SettleDelay)
	assert.Equal(t, 600*time.Millisecond, cfg.Scrape.ScrollPause)
	assert.Equal(t, time.Second, cfg.Scrape.FinalPause)
	assert.Equal(t, 5, cfg.Scrape.StaleThreshold)
	assert.Equal(t, 2000, cfg.Scrape.MaxScrolls)

	assert.Equal(t, 5, cfg.Download.Concurrent)
	assert.Equal(t, 120*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 3, cfg.Download.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Download.BackoffBase)
	assert.Zero(t, cfg.Download.RateLimit)

	assert.Equal(t, "./downloads", cfg.Output.Directory)
	assert.True(t, cfg.Output.Manifest)

	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIXIEDL_GALLERY_URL", "https://studio.pixieset.com/wedding/")
	t.Setenv("PIXIEDL_GALLERY_DOMAINS", "pixieset.com,example.org")
	t.Setenv("PIXIEDL_DOWNLOAD_CONCURRENT", "8")
	t.Setenv("PIXIEDL_DOWNLOAD_TIMEOUT", "45s")
	t.Setenv("PIXIEDL_DOWNLOAD_RATE_LIMIT", "2.5")
	t.Setenv("PIXIEDL_OUTPUT_DIRECTORY", "/env/output")
	t.Setenv("PIXIEDL_SCRAPE_MAX_SCROLLS", "300")
	t.Setenv("PIXIEDL_BROWSER_HEADLESS", "false")
	t.Setenv("PIXIEDL_NOTIFICATIONS_ENABLED", "true")
	t.Setenv("PIXIEDL_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://studio.pixieset.com/wedding/", cfg.Gallery.URL)
	assert.Equal(t, []string{"pixieset.com", "example.org"}, cfg.Gallery.Domains)
	assert.Equal(t, 8, cfg.Download.Concurrent)
	assert.Equal(t, 45*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 2.5, cfg.Download.RateLimit)
	assert.Equal(t, "/env/output", cfg.Output.Directory)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Equal(t, 300, cfg.Scrape.MaxScrolls)

	// untouched values keep their defaults
	assert.Equal(t, 3, cfg.Download.MaxAttempts)
}

func TestLoadFromEnvIgnoresUnprefixedNames(t *testing.T) {
	t.Setenv("URL", "https://other.pixieset.com/x/")
	t.Setenv("TIMEOUT", "1ms")
	t.Setenv("DIRECTORY", "/tmp/somewhere-else")
	t.Setenv("LEVEL", "5")
	t.Setenv("HEADLESS", "false")
	t.Setenv("ENABLED", "true")
	t.Setenv("MAX_ATTEMPTS", "9")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Empty(t, cfg.Gallery.URL)
	assert.Equal(t, 120*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "./downloads", cfg.Output.Directory)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, 3, cfg.Download.MaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("PIXIEDL_DOWNLOAD_CONCURRENT", "many")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
gallery:
  url: https://studio.pixieset.com/family/
browser:
  headless: false
scrape:
  settle_delay: 1s
  max_scrolls: 50
download:
  concurrent: 2
  timeout: 60s
  max_attempts: 4
output:
  directory: /file/output
  manifest: false
logging:
  level: warn
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(configPath))

		assert.Equal(t, "https://studio.pixieset.com/family/", cfg.Gallery.URL)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, time.Second, cfg.Scrape.SettleDelay)
		assert.Equal(t, 50, cfg.Scrape.MaxScrolls)
		assert.Equal(t, 2, cfg.Download.Concurrent)
		assert.Equal(t, 60*time.Second, cfg.Download.Timeout)
		assert.Equal(t, 4, cfg.Download.MaxAttempts)
		assert.Equal(t, "/file/output", cfg.Output.Directory)
		assert.False(t, cfg.Output.Manifest)
		assert.Equal(t, "warn", cfg.Logging.Level)

		// keys absent from the file keep defaults
		assert.Equal(t, 30*time.Second, cfg.Scrape.NavigationTimeout)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("gallery:\n  url: [broken\n"), 0644))

		cfg := DefaultConfig()
		err := cfg.LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("non-existent file", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile("/non/existent/path/config.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestFindConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	oldDir, _ := os.Getwd()
	defer os.Chdir(oldDir)
	require.NoError(t, os.Chdir(tempDir))
	t.Setenv("HOME", tempDir)

	cfg := DefaultConfig()
	assert.Empty(t, cfg.findConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".pixiedl.yaml"), []byte("logging:\n  level: debug\n"), 0644))
	assert.Equal(t, ".pixiedl.yaml", cfg.findConfigFile())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		errorContains []string
	}{
		{
			name:        "valid config",
			setupConfig: func(cfg *Config) { cfg.Gallery.URL = "https://studio.pixieset.com/g/" },
		},
		{
			name:          "relative gallery url",
			setupConfig:   func(cfg *Config) { cfg.Gallery.URL = "studio.pixieset.com/g" },
			errorContains: []string{"gallery URL must be an absolute http(s) URL"},
		},
		{
			name: "invalid download settings",
			setupConfig: func(cfg *Config) {
				cfg.Download.Concurrent = 0
				cfg.Download.Timeout = 0
				cfg.Download.MaxAttempts = 0
				cfg.Download.RateLimit = -1
			},
			errorContains: []string{
				"concurrent downloads must be positive",
				"download timeout must be positive",
				"max attempts must be positive",
				"rate limit cannot be negative",
			},
		},
		{
			name: "invalid scrape settings",
			setupConfig: func(cfg *Config) {
				cfg.Scrape.NavigationTimeout = 0
				cfg.Scrape.ScrollPause = -time.Second
				cfg.Scrape.StaleThreshold = 0
				cfg.Scrape.MaxScrolls = 0
			},
			errorContains: []string{
				"navigation timeout must be positive",
				"scrape waits cannot be negative",
				"stale threshold must be positive",
				"max scrolls must be positive",
			},
		},
		{
			name:          "missing output",
			setupConfig:   func(cfg *Config) { cfg.Output.Directory = "" },
			errorContains: []string{"output directory is required"},
		},
		{
			name:          "invalid log level",
			setupConfig:   func(cfg *Config) { cfg.Logging.Level = "loud" },
			errorContains: []string{"invalid log level"},
		},
		{
			name:          "invalid notification type",
			setupConfig:   func(cfg *Config) { cfg.Notifications.NotificationType = "pager" },
			errorContains: []string{"invalid notification type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()
			if len(tt.errorContains) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, msg := range tt.errorContains {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"url":              "https://studio.pixieset.com/g/",
		"output":           "/flag/output",
		"concurrent":       2,
		"max-retries":      5,
		"download-timeout": 30 * time.Second,
		"rate-limit":       1.5,
		"headless":         false,
		"manifest":         false,
		"log-level":        "error",
	})

	assert.Equal(t, "https://studio.pixieset.com/g/", cfg.Gallery.URL)
	assert.Equal(t, "/flag/output", cfg.Output.Directory)
	assert.Equal(t, 2, cfg.Download.Concurrent)
	assert.Equal(t, 5, cfg.Download.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 1.5, cfg.Download.RateLimit)
	assert.False(t, cfg.Browser.Headless)
	assert.False(t, cfg.Output.Manifest)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	tempDir := t.TempDir()
	oldDir, _ := os.Getwd()
	defer os.Chdir(oldDir)
	require.NoError(t, os.Chdir(tempDir))
	t.Setenv("HOME", tempDir)

	configPath := filepath.Join(tempDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("download:\n  concurrent: 2\n  max_attempts: 4\noutput:\n  directory: /file\n"), 0644))
	t.Setenv("PIXIEDL_DOWNLOAD_CONCURRENT", "7")

	cfg, err := Load(configPath, map[string]interface{}{"output": "/flag"})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Download.Concurrent)
	assert.Equal(t, 4, cfg.Download.MaxAttempts)
	assert.Equal(t, "/flag", cfg.Output.Directory)
}

func TestLoadValidationFailure(t *testing.T) {
	tempDir := t.TempDir()
	oldDir, _ := os.Getwd()
	defer os.Chdir(oldDir)
	require.NoError(t, os.Chdir(tempDir))
	t.Setenv("HOME", tempDir)

	_, err := Load("", map[string]interface{}{"concurrent": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
