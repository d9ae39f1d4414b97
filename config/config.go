package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFileEnvName = "OZONSCRAPER_CONFIG_FILE"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Details   DetailsConfig   `mapstructure:"details"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// BrowserConfig holds headless browser launch settings
type BrowserConfig struct {
	BinPath        string `mapstructure:"bin_path"`
	Headless       bool   `mapstructure:"headless"`
	NoSandbox      bool   `mapstructure:"no_sandbox"`
	ProxyURL       string `mapstructure:"proxy_url"`
	UserAgent      string `mapstructure:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
}

// ScraperConfig holds the target site and page readiness settings
type ScraperConfig struct {
	BaseURL            string          `mapstructure:"base_url"`
	SearchPathTemplate string          `mapstructure:"search_path_template"`
	NavigationTimeout  time.Duration   `mapstructure:"navigation_timeout"`
	StableWindow       time.Duration   `mapstructure:"stable_window"`
	WarmupReload       bool            `mapstructure:"warmup_reload"`
	ScrollSteps        int             `mapstructure:"scroll_steps"`
	ScrollStepPx       int             `mapstructure:"scroll_step_px"`
	ScrollDelay        time.Duration   `mapstructure:"scroll_delay"`
	MaxCards           int             `mapstructure:"max_cards"`
	Selectors          SelectorsConfig `mapstructure:"selectors"`
}

// SelectorsConfig holds the structural selectors of the search page
type SelectorsConfig struct {
	ListingContainer string   `mapstructure:"listing_container"`
	Card             string   `mapstructure:"card"`
	EmptyState       string   `mapstructure:"empty_state"`
	Challenge        []string `mapstructure:"challenge"`
}

// DetailsConfig holds product detail enrichment settings
type DetailsConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIPath     string        `mapstructure:"api_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Concurrency int           `mapstructure:"concurrency"`
}

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
	Burst int `mapstructure:"burst"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from an optional config file, environment variables and defaults.
// An explicit path (from --config or OZONSCRAPER_CONFIG_FILE) must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ozonscraper/")
	}

	v.SetEnvPrefix("OZONSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; env vars and defaults apply
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// FilePath resolves the config file path from the command line or environment.
// The environment variable wins over the flag.
func FilePath(args []string) string {
	cmdLine := pflag.NewFlagSet("ozonscraper", pflag.ExitOnError)
	arg := cmdLine.String("config", "", "path to config file (yaml)")
	_ = cmdLine.Parse(args)

	if env, ok := os.LookupEnv(configFileEnvName); ok {
		return env
	}
	return *arg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Browser defaults
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.proxy_url", "")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)

	// Scraper defaults
	v.SetDefault("scraper.base_url", "https://www.ozon.ru")
	v.SetDefault("scraper.search_path_template", "/search/?text={query}&from_global=true")
	v.SetDefault("scraper.navigation_timeout", "20s")
	v.SetDefault("scraper.stable_window", "500ms")
	v.SetDefault("scraper.warmup_reload", true)
	v.SetDefault("scraper.scroll_steps", 5)
	v.SetDefault("scraper.scroll_step_px", 250)
	v.SetDefault("scraper.scroll_delay", "500ms")
	v.SetDefault("scraper.max_cards", 36)
	v.SetDefault("scraper.selectors.listing_container", ".widget-search-result-container")
	v.SetDefault("scraper.selectors.card", ".widget-search-result-container > div > div")
	v.SetDefault("scraper.selectors.empty_state", `[data-widget="searchResultsError"]`)
	v.SetDefault("scraper.selectors.challenge", []string{"#challenge-form", ".captcha-container", `iframe[src*="captcha"]`})

	// Details defaults
	v.SetDefault("details.enabled", false)
	v.SetDefault("details.api_path", "/api/composer-api.bx/page/json/v2?url=")
	v.SetDefault("details.timeout", "10s")
	v.SetDefault("details.max_attempts", 2)
	v.SetDefault("details.concurrency", 4)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 30)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got: %s", config.Log.Format)
	}

	base, err := url.Parse(config.Scraper.BaseURL)
	if err != nil {
		return fmt.Errorf("scraper.base_url is invalid: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return fmt.Errorf("scraper.base_url must be an absolute http(s) URL, got: %q", config.Scraper.BaseURL)
	}

	if !strings.Contains(config.Scraper.SearchPathTemplate, "{query}") {
		return fmt.Errorf("scraper.search_path_template must contain {query}")
	}

	if config.Scraper.NavigationTimeout <= 0 {
		return fmt.Errorf("scraper.navigation_timeout must be positive")
	}
	if config.Scraper.StableWindow < 0 || config.Scraper.ScrollDelay < 0 {
		return fmt.Errorf("scraper.stable_window and scraper.scroll_delay cannot be negative")
	}
	if config.Scraper.ScrollSteps < 0 || config.Scraper.ScrollStepPx < 0 {
		return fmt.Errorf("scraper.scroll_steps and scraper.scroll_step_px cannot be negative")
	}
	if config.Scraper.MaxCards < 0 {
		return fmt.Errorf("scraper.max_cards cannot be negative")
	}

	if config.Scraper.Selectors.ListingContainer == "" || config.Scraper.Selectors.Card == "" {
		return fmt.Errorf("scraper.selectors.listing_container and scraper.selectors.card are required")
	}

	if config.Browser.ViewportWidth <= 0 || config.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got: %dx%d", config.Browser.ViewportWidth, config.Browser.ViewportHeight)
	}

	if config.Details.Enabled {
		if config.Details.Timeout <= 0 {
			return fmt.Errorf("details.timeout must be positive")
		}
		if config.Details.MaxAttempts <= 0 {
			return fmt.Errorf("details.max_attempts must be positive")
		}
		if config.Details.Concurrency <= 0 {
			return fmt.Errorf("details.concurrency must be positive")
		}
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("ratelimit.per_ip cannot be negative")
	}
	if config.RateLimit.PerIP > 0 && config.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive when ratelimit.per_ip is set")
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got: %q", config.Metrics.Path)
	}

	return nil
}
