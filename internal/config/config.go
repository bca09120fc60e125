package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNoDatabaseURL is returned when no connection URL can be resolved in hosted mode.
var ErrNoDatabaseURL = errors.New("no database connection url configured")

// URL sources recorded on DatabaseConfig.URLSource.
const (
	URLSourceSecrets       = "secrets"
	URLSourceEnv           = "env"
	URLSourceConfig        = "config"
	URLSourceLocalFallback = "local_fallback"
)

// Config is the root application configuration.
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Hosted      bool            `mapstructure:"hosted"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Auth        AuthConfig      `mapstructure:"auth"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ReadTimeout     string   `mapstructure:"read_timeout"`
	WriteTimeout    string   `mapstructure:"write_timeout"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds source database settings.
type DatabaseConfig struct {
	Driver           string `mapstructure:"driver"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	User             string `mapstructure:"user"`
	Password         string `mapstructure:"password"`
	DBName           string `mapstructure:"dbname"`
	SSLMode          string `mapstructure:"sslmode"`
	DatabaseURL      string `mapstructure:"database_url"`
	SecretsFile      string `mapstructure:"secrets_file"`
	MaxOpenConns     int    `mapstructure:"max_open_conns"`
	MaxIdleConns     int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  string `mapstructure:"conn_max_idle_time"`
	ConnectTimeout   int    `mapstructure:"connect_timeout"`
	StatementTimeout int    `mapstructure:"statement_timeout"`
	ApplicationName  string `mapstructure:"application_name"`
	SQLitePath       string `mapstructure:"sqlite_path"`

	// URLSource records which layer produced DatabaseURL.
	URLSource string `mapstructure:"-"`
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig controls the raw-load snapshot cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	TTL     string `mapstructure:"ttl"`
	Prefix  string `mapstructure:"prefix"`
}

// TTLDuration parses TTL, falling back to five minutes.
func (c CacheConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// AnalyticsConfig tunes the signal pipeline.
type AnalyticsConfig struct {
	PriceCeiling           float64 `mapstructure:"price_ceiling"`
	RollingWindow          int     `mapstructure:"rolling_window"`
	TrendRecentWindow      int     `mapstructure:"trend_recent_window"`
	MovingAveragePeriod    int     `mapstructure:"ma_period"`
	MovingAverageType      string  `mapstructure:"ma_type"`
	ExportPrecision        int     `mapstructure:"export_precision"`
	TopPerformersMinTrades int     `mapstructure:"top_performers_min_trades"`
	TopPerformersLimit     int     `mapstructure:"top_performers_limit"`
}

// AuthConfig enables the bearer-token guard when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RateLimitConfig configures request throttling for the API.
type RateLimitConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Requests int    `mapstructure:"requests"`
	Window   string `mapstructure:"window"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// TelemetryConfig names the running service.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Load reads configuration from defaults, ~/.luxquant/config.json and the
// environment, in increasing order of precedence, then resolves the
// database URL layers and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".luxquant"))
	}
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Environment
	}

	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}

	if cfg.Database.Driver == "postgres" {
		if err := cfg.Database.ResolveURL(cfg.Hosted); err != nil {
			return &cfg, err
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("hosted", false)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "luxquant")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.secrets_file", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.connect_timeout", 10)
	v.SetDefault("database.statement_timeout", 30000)
	v.SetDefault("database.application_name", "luxquant-analyzer")
	v.SetDefault("database.sqlite_path", "luxquant.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("cache.prefix", "luxquant:snapshot:")

	v.SetDefault("analytics.price_ceiling", 1000000.0)
	v.SetDefault("analytics.rolling_window", 30)
	v.SetDefault("analytics.trend_recent_window", 5)
	v.SetDefault("analytics.ma_period", 7)
	v.SetDefault("analytics.ma_type", "sma")
	v.SetDefault("analytics.export_precision", 8)
	v.SetDefault("analytics.top_performers_min_trades", 5)
	v.SetDefault("analytics.top_performers_limit", 20)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.traces_sample_rate", 0.1)

	v.SetDefault("telemetry.service_name", "luxquant-analyzer")
	v.SetDefault("telemetry.service_version", "dev")
}

// bindEnvAliases maps the conventional variable names onto nested keys.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"database.driver":       "DATABASE_DRIVER",
		"database.database_url": "DATABASE_URL",
		"database.secrets_file": "DATABASE_SECRETS_FILE",
		"database.sqlite_path":  "SQLITE_PATH",
		"auth.jwt_secret":       "AUTH_JWT_SECRET",
		"sentry.dsn":            "SENTRY_DSN",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, env)
	}
}

// Validate checks values that would otherwise fail late at connection time.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "postgresql":
		c.Database.Driver = "postgres"
	case "sqlite", "sqlite3":
		c.Database.Driver = "sqlite"
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return fmt.Errorf("database.sqlite_path is required when database.driver is sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be one of postgres, sqlite (got %q)", c.Database.Driver)
	}

	for name, value := range map[string]string{
		"database.conn_max_lifetime":  c.Database.ConnMaxLifetime,
		"database.conn_max_idle_time": c.Database.ConnMaxIdleTime,
		"cache.ttl":                   c.Cache.TTL,
		"rate_limit.window":           c.RateLimit.Window,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a duration: %w", name, err)
		}
	}
	if d, err := time.ParseDuration(c.RateLimit.Window); err == nil && d < time.Second {
		return fmt.Errorf("rate_limit.window must be at least 1s (got %s)", c.RateLimit.Window)
	}

	if c.Analytics.RollingWindow <= 0 {
		return fmt.Errorf("analytics.rolling_window must be positive")
	}
	if c.Analytics.TrendRecentWindow <= 0 {
		return fmt.Errorf("analytics.trend_recent_window must be positive")
	}
	if c.Analytics.MovingAveragePeriod <= 0 {
		return fmt.Errorf("analytics.ma_period must be positive")
	}
	switch strings.ToLower(c.Analytics.MovingAverageType) {
	case "", "sma", "ema":
	default:
		return fmt.Errorf("analytics.ma_type must be sma or ema (got %q)", c.Analytics.MovingAverageType)
	}
	if c.Analytics.PriceCeiling <= 0 {
		return fmt.Errorf("analytics.price_ceiling must be positive")
	}
	return nil
}

// ResolveURL fills DatabaseURL from the secrets file, then an explicit URL
// (DATABASE_URL or config), then a local fallback built from the discrete
// fields. The fallback is skipped when hosted. Remote hosts get sslmode=require.
func (d *DatabaseConfig) ResolveURL(hosted bool) error {
	if secret := readSecretsURL(d.SecretsFile); secret != "" {
		d.DatabaseURL, d.URLSource = secret, URLSourceSecrets
	} else if d.DatabaseURL != "" {
		d.URLSource = URLSourceEnv
		if os.Getenv("DATABASE_URL") == "" {
			d.URLSource = URLSourceConfig
		}
	} else if !hosted {
		d.DatabaseURL, d.URLSource = d.localURL(), URLSourceLocalFallback
	} else {
		return fmt.Errorf("%w: set DATABASE_URL or database.connection_url in the secrets file", ErrNoDatabaseURL)
	}

	enforced, err := EnforceSSL(d.DatabaseURL)
	if err != nil {
		return err
	}
	d.DatabaseURL = enforced
	return nil
}

func (d *DatabaseConfig) localURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, fmt.Sprintf("%d", d.Port)),
		Path:   "/" + d.DBName,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// readSecretsURL returns database.connection_url from the secrets file, or
// empty when the file is absent or unreadable.
func readSecretsURL(path string) string {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, ".luxquant", "secrets.json")
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	sv := viper.New()
	sv.SetConfigFile(path)
	if err := sv.ReadInConfig(); err != nil {
		return ""
	}
	return strings.TrimSpace(sv.GetString("database.connection_url"))
}

var secureSSLModes = map[string]bool{"require": true, "verify-ca": true, "verify-full": true}

// EnforceSSL adds sslmode=require to connection strings that target a
// non-loopback host without an SSL-requiring mode. Both URLs and key/value
// DSNs are handled.
func EnforceSSL(raw string) (string, error) {
	if raw == "" {
		return raw, nil
	}
	if !isURLForm(raw) {
		return enforceSSLDSN(raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	if IsLoopbackHost(u.Hostname()) {
		return raw, nil
	}
	q := u.Query()
	if secureSSLModes[strings.ToLower(q.Get("sslmode"))] {
		return raw, nil
	}
	q.Set("sslmode", "require")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// IsLoopbackHost reports whether host refers to the local machine. Unix
// socket directories count as local.
func IsLoopbackHost(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasPrefix(host, "/") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// MaskURL hides the password of a connection URL or key/value DSN.
func MaskURL(raw string) string {
	if !isURLForm(raw) {
		return maskDSN(raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return urlPasswordPattern.ReplaceAllString(raw, "${1}"+maskedPassword+"@")
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), maskedPassword)
	}
	return u.String()
}
