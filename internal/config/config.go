// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the headless browser the harvester attaches to.
// When RemoteURL is set (directly or resolved from a JS constants file via
// ConstantsFile/ConstantsKey), the tool attaches to that DevTools websocket
// endpoint instead of launching a local Chrome.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Concurrency     int      `mapstructure:"concurrency" yaml:"concurrency"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
	RemoteURL       string   `mapstructure:"remote_url" yaml:"remote_url"`
	ConstantsFile   string   `mapstructure:"constants_file" yaml:"constants_file"`
	ConstantsKey    string   `mapstructure:"constants_key" yaml:"constants_key"`
}

// ExtractConfig controls the watchlist crawl and the hash scan over the
// captured traffic.
type ExtractConfig struct {
	URLTemplate        string        `mapstructure:"url_template" yaml:"url_template"`
	DefaultUserID      string        `mapstructure:"default_user_id" yaml:"default_user_id"`
	GraphQLHost        string        `mapstructure:"graphql_host" yaml:"graphql_host"`
	PriorityOperations []string      `mapstructure:"priority_operations" yaml:"priority_operations"`
	PageTimeout        time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	QuietPeriod        time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
	RatePerSecond      float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gqlharvest")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	// The original client crawled with cache bypass so the GraphQL calls
	// always hit the wire.
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.concurrency", 2)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.constants_file", "")
	v.SetDefault("browser.constants_key", "REMOTE_BROWSER_WS")

	// -- Extract --
	v.SetDefault("extract.url_template", "https://www.imdb.com/user/%s/watchlist")
	// The user ID does not have to exist; any watchlist URL triggers the
	// GraphQL calls we are after.
	v.SetDefault("extract.default_user_id", "ur195879360")
	v.SetDefault("extract.graphql_host", "api.graphql.imdb.com")
	v.SetDefault("extract.priority_operations", []string{
		"WatchListPage",
		"WatchListPageRefiner",
		"PersonalizedUserData",
		"YourPredefinedListsSidebar",
		"YourListsSidebar",
		"YourExports",
		"RVI_Items",
	})
	v.SetDefault("extract.page_timeout", "30s")
	v.SetDefault("extract.quiet_period", "2s")
	v.SetDefault("extract.rate_per_second", 1.0)
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if !strings.Contains(c.Extract.URLTemplate, "%s") {
		return fmt.Errorf("extract.url_template must contain a %%s placeholder for the user ID")
	}
	if c.Extract.GraphQLHost == "" {
		return fmt.Errorf("extract.graphql_host is a required configuration field")
	}
	if c.Extract.PageTimeout <= 0 {
		return fmt.Errorf("extract.page_timeout must be a positive duration")
	}
	if c.Extract.QuietPeriod <= 0 {
		return fmt.Errorf("extract.quiet_period must be a positive duration")
	}
	if c.Extract.RatePerSecond <= 0 {
		return fmt.Errorf("extract.rate_per_second must be positive")
	}
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Browser.ConstantsFile != "" && c.Browser.ConstantsKey == "" {
		return fmt.Errorf("browser.constants_key is required when browser.constants_file is set")
	}
	return nil
}
