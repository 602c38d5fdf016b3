package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/coreapi"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/ebay"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/storage"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "EBAYSYNC"

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	Ebay       ebay.Config
	Core       coreapi.Config
	Storage    storage.Config
	Sync       SyncConfig
	Tasks      TaskConfig
	Sweep      SweepConfig
	Publishing PublishingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. An empty host keeps locks
// and idempotency keys in process memory.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// RequestTimeout bounds handler work, including inline sync runs. Keep
	// it below WriteTimeout.
	RequestTimeout time.Duration
	// RateLimitPerSecond and RateLimitBurst limit requests per account.
	// Zero disables the limiter.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to enable OpenTelemetry tracing
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName           string
	Insecure              bool // Use insecure (non-TLS) connection (development only)
	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool
	DBTraceEnabled        bool
	DBLogFullSQL          bool // dev only
	DBSlowQueryThresh     time.Duration
	ProfilingEnabled      bool
	PyroscopeAddress      string
}

// SyncConfig tunes reconciliation runs and their scheduling
type SyncConfig struct {
	InitialLookback time.Duration
	PageLimit       int
	RunLockTTL      time.Duration
	Interval        time.Duration
	Kinds           []delta.SyncKind
	RunOnStart      bool
	Workers         int
	QueueSize       int
	JobTimeout      time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	HistorySize     int
}

// TaskConfig tunes the side-effect task processor
type TaskConfig struct {
	Workers          int
	BatchSize        int
	PollInterval     time.Duration
	Lease            time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	IdempotencyTTL   time.Duration
}

// SweepConfig tunes the stuck-publish and dirty-mark sweeps
type SweepConfig struct {
	Interval       time.Duration
	PublishTimeout time.Duration
	BatchSize      int
}

// PublishingConfig tunes publishing
type PublishingConfig struct {
	MinimumPrice decimal.Decimal
	// Guard is "row_lock" (database) or "redis"
	Guard        string
	GuardLockTTL time.Duration
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win and missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from a .env file, config.toml and environment
// variables. Priority (highest to lowest):
// 1. Environment variables with EBAYSYNC_ prefix (e.g., EBAYSYNC_DATABASE_PASSWORD)
// 2. .env in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path. An empty path searches
// the default locations.
func LoadFrom(configFile string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ebaysync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	kinds, err := parseKinds(v.GetStringSlice("sync.kinds"))
	if err != nil {
		return nil, err
	}
	minPrice, err := parseDecimal(v.GetString("publishing.minimum_price"))
	if err != nil {
		return nil, fmt.Errorf("publishing.minimum_price: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			Port:           v.GetString("http.port"),
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout: v.GetDuration("http.request_timeout"),

			RateLimitPerSecond: v.GetFloat64("http.rate_limit_per_second"),
			RateLimitBurst:     v.GetInt("http.rate_limit_burst"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:      v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:      v.GetString("telemetry.pyroscope_address"),
		},
		Ebay: ebay.Config{
			BaseURL:           v.GetString("ebay.base_url"),
			SiteID:            v.GetString("ebay.site_id"),
			TimeoutSeconds:    v.GetInt("ebay.timeout_seconds"),
			RequestsPerSecond: v.GetFloat64("ebay.requests_per_second"),
			Burst:             v.GetInt("ebay.burst"),
			MaxResponseBytes:  v.GetInt64("ebay.max_response_bytes"),
		},
		Core: coreapi.Config{
			BaseURL:          v.GetString("core.base_url"),
			APIKey:           v.GetString("core.api_key"),
			TimeoutSeconds:   v.GetInt("core.timeout_seconds"),
			MaxResponseBytes: v.GetInt64("core.max_response_bytes"),
		},
		Storage: storage.Config{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Sync: SyncConfig{
			InitialLookback: v.GetDuration("sync.initial_lookback"),
			PageLimit:       v.GetInt("sync.page_limit"),
			RunLockTTL:      v.GetDuration("sync.run_lock_ttl"),
			Interval:        v.GetDuration("sync.interval"),
			Kinds:           kinds,
			RunOnStart:      v.GetBool("sync.run_on_start"),
			Workers:         v.GetInt("sync.workers"),
			QueueSize:       v.GetInt("sync.queue_size"),
			JobTimeout:      v.GetDuration("sync.job_timeout"),
			RetryAttempts:   v.GetInt("sync.retry_attempts"),
			RetryDelay:      v.GetDuration("sync.retry_delay"),
			HistorySize:     v.GetInt("sync.history_size"),
		},
		Tasks: TaskConfig{
			Workers:          v.GetInt("tasks.workers"),
			BatchSize:        v.GetInt("tasks.batch_size"),
			PollInterval:     v.GetDuration("tasks.poll_interval"),
			Lease:            v.GetDuration("tasks.lease"),
			CleanupEnabled:   v.GetBool("tasks.cleanup_enabled"),
			CleanupRetention: v.GetDuration("tasks.cleanup_retention"),
			CleanupInterval:  v.GetDuration("tasks.cleanup_interval"),
			IdempotencyTTL:   v.GetDuration("tasks.idempotency_ttl"),
		},
		Sweep: SweepConfig{
			Interval:       v.GetDuration("sweep.interval"),
			PublishTimeout: v.GetDuration("sweep.publish_timeout"),
			BatchSize:      v.GetInt("sweep.batch_size"),
		},
		Publishing: PublishingConfig{
			MinimumPrice: minPrice,
			Guard:        v.GetString("publishing.guard"),
			GuardLockTTL: v.GetDuration("publishing.guard_lock_ttl"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseKinds(raw []string) ([]delta.SyncKind, error) {
	kinds := make([]delta.SyncKind, 0, len(raw))
	for _, r := range raw {
		// env overrides arrive as one comma separated value
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, err := delta.ParseSyncKind(part)
			if err != nil {
				return nil, fmt.Errorf("sync.kinds: %w", err)
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ebaysync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ebaysync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 50 * time.Second
	}
	if cfg.HTTP.RateLimitPerSecond > 0 && cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = int(cfg.HTTP.RateLimitPerSecond) + 1
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}

	ebayDefaults := ebay.DefaultConfig()
	if cfg.Ebay.BaseURL == "" {
		cfg.Ebay.BaseURL = ebayDefaults.BaseURL
	}
	if cfg.Ebay.SiteID == "" {
		cfg.Ebay.SiteID = ebayDefaults.SiteID
	}
	if cfg.Ebay.TimeoutSeconds == 0 {
		cfg.Ebay.TimeoutSeconds = ebayDefaults.TimeoutSeconds
	}
	if cfg.Ebay.RequestsPerSecond == 0 {
		cfg.Ebay.RequestsPerSecond = ebayDefaults.RequestsPerSecond
	}
	if cfg.Ebay.Burst == 0 {
		cfg.Ebay.Burst = ebayDefaults.Burst
	}
	if cfg.Ebay.MaxResponseBytes == 0 {
		cfg.Ebay.MaxResponseBytes = ebayDefaults.MaxResponseBytes
	}

	coreDefaults := coreapi.DefaultConfig()
	if cfg.Core.TimeoutSeconds == 0 {
		cfg.Core.TimeoutSeconds = coreDefaults.TimeoutSeconds
	}
	if cfg.Core.MaxResponseBytes == 0 {
		cfg.Core.MaxResponseBytes = coreDefaults.MaxResponseBytes
	}

	storageDefaults := storage.DefaultConfig()
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = storageDefaults.Endpoint
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = storageDefaults.Region
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = storageDefaults.Bucket
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = storageDefaults.Prefix
	}

	if cfg.Sync.InitialLookback == 0 {
		cfg.Sync.InitialLookback = 30 * 24 * time.Hour
	}
	if cfg.Sync.PageLimit == 0 {
		cfg.Sync.PageLimit = 100
	}
	if cfg.Sync.RunLockTTL == 0 {
		cfg.Sync.RunLockTTL = 30 * time.Minute
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = 5 * time.Minute
	}
	if len(cfg.Sync.Kinds) == 0 {
		cfg.Sync.Kinds = append([]delta.SyncKind(nil), delta.AllKinds...)
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 256
	}
	if cfg.Sync.JobTimeout == 0 {
		cfg.Sync.JobTimeout = 15 * time.Minute
	}
	if cfg.Sync.RetryAttempts == 0 {
		cfg.Sync.RetryAttempts = 3
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = time.Minute
	}
	if cfg.Sync.HistorySize == 0 {
		cfg.Sync.HistorySize = 100
	}

	if cfg.Tasks.Workers == 0 {
		cfg.Tasks.Workers = 4
	}
	if cfg.Tasks.BatchSize == 0 {
		cfg.Tasks.BatchSize = 50
	}
	if cfg.Tasks.PollInterval == 0 {
		cfg.Tasks.PollInterval = 2 * time.Second
	}
	if cfg.Tasks.Lease == 0 {
		cfg.Tasks.Lease = 5 * time.Minute
	}
	if cfg.Tasks.CleanupRetention == 0 {
		cfg.Tasks.CleanupRetention = 7 * 24 * time.Hour
	}
	if cfg.Tasks.CleanupInterval == 0 {
		cfg.Tasks.CleanupInterval = time.Hour
	}
	if cfg.Tasks.IdempotencyTTL == 0 {
		cfg.Tasks.IdempotencyTTL = 30 * 24 * time.Hour
	}

	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = time.Minute
	}
	if cfg.Sweep.PublishTimeout == 0 {
		cfg.Sweep.PublishTimeout = 30 * time.Minute
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 100
	}

	if cfg.Publishing.MinimumPrice.IsZero() {
		cfg.Publishing.MinimumPrice = decimal.NewFromInt(1)
	}
	if cfg.Publishing.Guard == "" {
		cfg.Publishing.Guard = GuardRowLock
	}
	if cfg.Publishing.GuardLockTTL == 0 {
		cfg.Publishing.GuardLockTTL = 5 * time.Minute
	}
}

// Publish guard backends
const (
	GuardRowLock = "row_lock"
	GuardRedis   = "redis"
)

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required in production, in-memory locks do not span processes")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Storage.Enabled {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}
	if c.Publishing.Guard != GuardRowLock && c.Publishing.Guard != GuardRedis {
		return fmt.Errorf("publishing.guard must be %q or %q, got %q", GuardRowLock, GuardRedis, c.Publishing.Guard)
	}
	if c.Publishing.MinimumPrice.IsNegative() {
		return fmt.Errorf("publishing.minimum_price cannot be negative")
	}
	if c.HTTP.RateLimitPerSecond < 0 {
		return fmt.Errorf("http.rate_limit_per_second cannot be negative")
	}
	if c.Sync.PageLimit < 1 || c.Sync.PageLimit > 1000 {
		return fmt.Errorf("sync.page_limit must be between 1 and 1000, got %d", c.Sync.PageLimit)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
