// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                    string   `mapstructure:"appname"`
	AppPort                    string   `mapstructure:"appport"`
	Environment                string   `mapstructure:"environment"`
	LogLevel                   LogLevel `mapstructure:"loglevel"`
	PrivateKey                 string   `mapstructure:"privatekey"`
	LoginSessionTimeoutSeconds int      `mapstructure:"loginsessiontimeoutseconds"`
	Domain                     string   `mapstructure:"domain"`
	Timezone                   string   `mapstructure:"timezone"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Analytics settings
	AnalyticsAPIKey      string `mapstructure:"analyticsapikey"`
	AllowedAdminEmails   string `mapstructure:"allowedadminemails"`
	RawViewRetentionDays int    `mapstructure:"rawviewretentiondays"`
	// TrustProxyHeaders reads the visitor address from X-Forwarded-For and
	// friends. Disable when the app is reachable without a rewriting proxy.
	TrustProxyHeaders bool `mapstructure:"trustproxyheaders"`

	// Job scheduling settings
	JobsEnabled      bool   `mapstructure:"jobsenabled"`
	DailyJobSpec     string `mapstructure:"dailyjobspec"`
	MonthlyJobSpec   string `mapstructure:"monthlyjobspec"`
	CleanupJobSpec   string `mapstructure:"cleanupjobspec"`
	ViewRateLimitMax int    `mapstructure:"viewratelimitmax"`

	// Link preview settings
	OGPCacheTTLSeconds     int `mapstructure:"ogpcachettlseconds"`
	OGPFetchTimeoutSeconds int `mapstructure:"ogpfetchtimeoutseconds"`

	location *time.Location
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "portfolio")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("loginsessiontimeoutseconds", 604800) // 1 week
		v.SetDefault("timezone", "Local")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("rawviewretentiondays", 90)
		v.SetDefault("jobsenabled", true)
		v.SetDefault("dailyjobspec", "15 0 * * *")
		v.SetDefault("monthlyjobspec", "30 0 1 * *")
		v.SetDefault("cleanupjobspec", "0 1 * * *")
		v.SetDefault("viewratelimitmax", 70)
		v.SetDefault("trustproxyheaders", true)
		v.SetDefault("ogpcachettlseconds", 86400)
		v.SetDefault("ogpfetchtimeoutseconds", 5)

		v.BindEnv("appname", "PORTFOLIO_APP_NAME")
		v.BindEnv("appport", "PORTFOLIO_APP_PORT")
		v.BindEnv("environment", "PORTFOLIO_ENV")
		v.BindEnv("loglevel", "PORTFOLIO_LOG_LEVEL")
		v.BindEnv("privatekey", "PORTFOLIO_PRIVATE_KEY")
		v.BindEnv("loginsessiontimeoutseconds", "PORTFOLIO_LOGIN_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("domain", "PORTFOLIO_DOMAIN")
		v.BindEnv("timezone", "PORTFOLIO_TIMEZONE")
		v.BindEnv("storagepath", "PORTFOLIO_STORAGE_PATH")
		v.BindEnv("publicdir", "PORTFOLIO_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "PORTFOLIO_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "PORTFOLIO_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "PORTFOLIO_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "PORTFOLIO_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "PORTFOLIO_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "PORTFOLIO_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "PORTFOLIO_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "PORTFOLIO_DB_MAX_IDLE_CONNS")
		v.BindEnv("analyticsapikey", "ANALYTICS_API_KEY")
		v.BindEnv("allowedadminemails", "ALLOWED_ADMIN_EMAILS")
		v.BindEnv("rawviewretentiondays", "PORTFOLIO_RAW_VIEW_RETENTION_DAYS")
		v.BindEnv("jobsenabled", "PORTFOLIO_JOBS_ENABLED")
		v.BindEnv("dailyjobspec", "PORTFOLIO_DAILY_JOB_SPEC")
		v.BindEnv("monthlyjobspec", "PORTFOLIO_MONTHLY_JOB_SPEC")
		v.BindEnv("cleanupjobspec", "PORTFOLIO_CLEANUP_JOB_SPEC")
		v.BindEnv("viewratelimitmax", "PORTFOLIO_VIEW_RATE_LIMIT_MAX")
		v.BindEnv("trustproxyheaders", "PORTFOLIO_TRUST_PROXY_HEADERS")
		v.BindEnv("ogpcachettlseconds", "PORTFOLIO_OGP_CACHE_TTL_SECONDS")
		v.BindEnv("ogpfetchtimeoutseconds", "PORTFOLIO_OGP_FETCH_TIMEOUT_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique PORTFOLIO_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	if c.RawViewRetentionDays < 0 {
		return fmt.Errorf("raw view retention days must not be negative: %d", c.RawViewRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// Location returns the timezone calendar days are computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// AdminEmails returns the normalized admin allowlist.
func (c *Config) AdminEmails() []string {
	var emails []string
	for _, email := range strings.Split(c.AllowedAdminEmails, ",") {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

// RetentionDays returns how many days of raw views are kept.
func (c *Config) RetentionDays() int {
	if c.RawViewRetentionDays == 0 {
		return 90
	}
	return c.RawViewRetentionDays
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the session timeout in seconds. The admin login is
// the only session, so it shares the login timeout.
func (c *Config) GetSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetLoginSessionTimeout returns the login session timeout in seconds.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetOGPCacheTTL returns how long link previews stay cached.
func (c *Config) GetOGPCacheTTL() time.Duration {
	return time.Duration(c.OGPCacheTTLSeconds) * time.Second
}

// GetOGPFetchTimeout returns the HTTP timeout for fetching link previews.
func (c *Config) GetOGPFetchTimeout() time.Duration {
	return time.Duration(c.OGPFetchTimeoutSeconds) * time.Second
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (allows concurrent reads for parallel dashboard queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
