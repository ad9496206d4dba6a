package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)

type SessionStore string

const (
	SessionStoreDatabase SessionStore = "database"
	SessionStoreCookie   SessionStore = "cookie"
)

type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// Environment switches production behaviour such as secure cookies.
	Environment Environment `yaml:"environment" mapstructure:"environment"`
	LogLevel    string      `yaml:"log_level" mapstructure:"log_level"`
	// SessionKey signs (and for the cookie store, encrypts) session cookies.
	SessionKey string `yaml:"session_key" mapstructure:"session_key"`
	// SessionMaxAge is the session lifetime in seconds.
	SessionMaxAge int          `yaml:"session_max_age" mapstructure:"session_max_age"`
	SessionStore  SessionStore `yaml:"session_store" mapstructure:"session_store"`
	// CORSAllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`

	Database  *DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Admin     *AdminConfig     `yaml:"admin" mapstructure:"admin"`
	Receipts  *ReceiptsConfig  `yaml:"receipts" mapstructure:"receipts"`
	Cache     *CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimit *RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Metrics   *MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Driver DatabaseDriver `yaml:"driver" mapstructure:"driver"`
	// Path is the sqlite database file.
	Path string `yaml:"path" mapstructure:"path"`
	// DSN is used by the mysql and postgres drivers.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// AdminConfig holds the credentials of the account seeded on first start.
type AdminConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

type ReceiptsConfig struct {
	Storage StorageType `yaml:"storage" mapstructure:"storage"`
	// Path is the directory used by the local storage backend.
	Path string `yaml:"path" mapstructure:"path"`
	// SweepSchedule is a cron expression for the orphaned receipt sweep. Empty disables it.
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule"`
	// SweepGrace protects recently written objects from the sweep.
	SweepGrace time.Duration `yaml:"sweep_grace" mapstructure:"sweep_grace"`
	S3         *S3Config     `yaml:"s3" mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

type CacheConfig struct {
	Type     CacheType `yaml:"type" mapstructure:"type"`
	RedisURL string    `yaml:"redis_url" mapstructure:"redis_url"`
}

type RateLimitConfig struct {
	// Requests is the number of requests a client may make per Window.
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
	// LoginAttempts is the number of failed logins a client may make per LoginWindow.
	LoginAttempts int           `yaml:"login_attempts" mapstructure:"login_attempts"`
	LoginWindow   time.Duration `yaml:"login_window" mapstructure:"login_window"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func Load(path string) (*Config, error) {
	// a missing .env file is fine
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env file")
	}

	v := viper.New()

	bindNestedEnv(v)

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("RECEIPTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFileFound bool
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.receiptdesk")
		v.AddConfigPath("/etc/receiptdesk")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		configFileFound = true
	}

	if configFileFound {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
		log.Debug("Some environment variables can be set with the RECEIPTDESK_ prefix to override config file values")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	sanitizeConfig(&c)

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:3000")
	v.SetDefault("environment", EnvironmentDevelopment)
	v.SetDefault("log_level", "info")
	v.SetDefault("session_key", "")
	v.SetDefault("session_max_age", 86400) // 24 hours
	v.SetDefault("session_store", SessionStoreDatabase)
	v.SetDefault("cors_allowed_origins", []string{})

	v.SetDefault("database.driver", DatabaseDriverSQLite)
	v.SetDefault("database.path", "./data/receiptdesk.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")

	v.SetDefault("receipts.storage", StorageTypeLocal)
	v.SetDefault("receipts.path", "./data/uploads")
	v.SetDefault("receipts.sweep_schedule", "")
	v.SetDefault("receipts.sweep_grace", time.Hour)
	v.SetDefault("receipts.s3.bucket", "")
	v.SetDefault("receipts.s3.region", "us-east-1")
	v.SetDefault("receipts.s3.endpoint", "")
	v.SetDefault("receipts.s3.prefix", "receipts/")
	v.SetDefault("receipts.s3.access_key_id", "")
	v.SetDefault("receipts.s3.secret_access_key", "")
	v.SetDefault("receipts.s3.force_path_style", false)

	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.redis_url", "localhost:6379")

	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", 15*time.Minute)
	v.SetDefault("rate_limit.login_attempts", 5)
	v.SetDefault("rate_limit.login_window", 15*time.Minute)

	v.SetDefault("metrics.enabled", true)
}

func bindNestedEnv(v *viper.Viper) {
	// Database
	v.MustBindEnv("database.driver", "RECEIPTDESK_DATABASE_DRIVER")
	v.MustBindEnv("database.path", "RECEIPTDESK_DATABASE_PATH")
	v.MustBindEnv("database.dsn", "RECEIPTDESK_DATABASE_DSN")

	// Admin
	v.MustBindEnv("admin.username", "RECEIPTDESK_ADMIN_USERNAME")
	v.MustBindEnv("admin.password", "RECEIPTDESK_ADMIN_PASSWORD")

	// Receipts
	v.MustBindEnv("receipts.storage", "RECEIPTDESK_RECEIPTS_STORAGE")
	v.MustBindEnv("receipts.path", "RECEIPTDESK_RECEIPTS_PATH")
	v.MustBindEnv("receipts.s3.bucket", "RECEIPTDESK_RECEIPTS_S3_BUCKET")
	v.MustBindEnv("receipts.s3.region", "RECEIPTDESK_RECEIPTS_S3_REGION")
	v.MustBindEnv("receipts.s3.endpoint", "RECEIPTDESK_RECEIPTS_S3_ENDPOINT")
	v.MustBindEnv("receipts.s3.access_key_id", "RECEIPTDESK_RECEIPTS_S3_ACCESS_KEY_ID")
	v.MustBindEnv("receipts.s3.secret_access_key", "RECEIPTDESK_RECEIPTS_S3_SECRET_ACCESS_KEY")

	// Cache
	v.MustBindEnv("cache.type", "RECEIPTDESK_CACHE_TYPE")
	v.MustBindEnv("cache.redis_url", "RECEIPTDESK_CACHE_REDIS_URL")
}

func validateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("missing receiptdesk config")
	}

	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}
	if len(c.SessionKey) < 32 {
		return fmt.Errorf("session key must be at least 32 characters long")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("session max age must be greater than 0")
	}

	switch c.SessionStore {
	case SessionStoreDatabase, SessionStoreCookie:
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}

	if c.Database == nil {
		return fmt.Errorf("missing database config")
	}
	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for the sqlite driver")
		}
	case DatabaseDriverMySQL, DatabaseDriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for the %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Admin == nil || c.Admin.Username == "" {
		return fmt.Errorf("admin username is required")
	}

	if c.Receipts == nil {
		return fmt.Errorf("missing receipts config")
	}
	switch c.Receipts.Storage {
	case StorageTypeLocal:
		if c.Receipts.Path == "" {
			return fmt.Errorf("receipts path is required for local storage")
		}
	case StorageTypeS3:
		if c.Receipts.S3 == nil || c.Receipts.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
		if c.Receipts.S3.Region == "" {
			return fmt.Errorf("S3 region is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown receipts storage %q", c.Receipts.Storage)
	}
	if c.Receipts.SweepSchedule != "" {
		if len(strings.Fields(c.Receipts.SweepSchedule)) != 5 {
			return fmt.Errorf("sweep schedule must be a valid cron expression with 5 fields (minute hour day month weekday)")
		}
	}
	if c.Receipts.SweepGrace < 0 {
		return fmt.Errorf("sweep grace must not be negative")
	}

	if c.Cache != nil {
		if c.Cache.Type == "" {
			return fmt.Errorf("cache type is required when cache is enabled")
		}
		if c.Cache.Type != CacheTypeMemory && c.Cache.Type != CacheTypeRedis {
			return fmt.Errorf("unknown cache type %q", c.Cache.Type)
		}
		if c.Cache.Type == CacheTypeRedis && c.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required when Redis cache is enabled") //nolint:staticcheck
		}
	} else {
		c.Cache = &CacheConfig{
			Type: CacheTypeMemory,
		}
	}

	if c.RateLimit == nil {
		return fmt.Errorf("missing rate limit config")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit requests and window must be greater than 0")
	}
	if c.RateLimit.LoginAttempts <= 0 || c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("login rate limit attempts and window must be greater than 0")
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}

	return nil
}

func sanitizeConfig(c *Config) {
	if c == nil {
		return
	}

	c.Listen = strings.TrimSpace(c.Listen)
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = urlSanitize(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins

	if c.Database != nil {
		c.Database.Driver = DatabaseDriver(strings.ToLower(string(c.Database.Driver)))
	}

	if c.Admin != nil {
		c.Admin.Username = strings.TrimSpace(c.Admin.Username)
	}

	if c.Receipts != nil {
		c.Receipts.SweepSchedule = strings.TrimSpace(c.Receipts.SweepSchedule)
		if c.Receipts.S3 != nil {
			c.Receipts.S3.Endpoint = urlSanitize(c.Receipts.S3.Endpoint)
		}
	}
}

func urlSanitize(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}
