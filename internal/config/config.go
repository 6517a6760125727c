package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Impact   ImpactConfig   `mapstructure:"impact"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig holds the ops HTTP surface (/healthz, /metrics) configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig holds the shared Postgres pool configuration backing the
// graph, change, approval, audit, and policy stores.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	URL             string        `mapstructure:"url"`
}

// RedisConfig backs the distributed per-change and per-approval locks.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// RiskConfig holds the risk engine's scoring weights and clip bounds,
// mirroring internal/risk.Weights field-for-field so it can be copied
// straight across at startup.
type RiskConfig struct {
	ProdEnvironment               float64 `mapstructure:"prod_environment"`
	CoreDeviceTouched             float64 `mapstructure:"core_device_touched"`
	HighDependencyCount           float64 `mapstructure:"high_dependency_count"`
	HighDependencyThreshold       int     `mapstructure:"high_dependency_threshold"`
	NoRollbackPlan                float64 `mapstructure:"no_rollback_plan"`
	OutsideMaintenanceWindow      float64 `mapstructure:"outside_maintenance_window"`
	PriorIncidentWithin90Days     float64 `mapstructure:"prior_incident_within_90_days"`
	CriticalApplicationAffected   float64 `mapstructure:"critical_application_affected"`
	CriticalApplicationCap        float64 `mapstructure:"critical_application_cap"`
	AnyAnyRule                    float64 `mapstructure:"any_any_rule"`
	RedundancyDiscount            float64 `mapstructure:"redundancy_discount"`
	LowCriticalityAddRuleDiscount float64 `mapstructure:"low_criticality_add_rule_discount"`
	MinScore                      float64 `mapstructure:"min_score"`
	MaxScore                      float64 `mapstructure:"max_score"`
	LowMax                        float64 `mapstructure:"low_max"`
	MediumMax                     float64 `mapstructure:"medium_max"`
	HighMax                       float64 `mapstructure:"high_max"`
}

// ImpactConfig sets the impact analyzer's default traversal depth, used by
// every strategy without its own bound (device_blast keeps the bound from
// impact.DefaultConfig), and its snapshot cache size.
type ImpactConfig struct {
	MaxTraversalDepth int           `mapstructure:"max_traversal_depth"`
	SnapshotCacheTTL  time.Duration `mapstructure:"snapshot_cache_ttl"`
	SnapshotCacheSize int           `mapstructure:"snapshot_cache_size"`
}

// PolicyConfig holds the policy reload interval. No component reads it:
// the policy engine loads enabled rules from its store on every Evaluate.
type PolicyConfig struct {
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// WorkflowConfig controls the approval state machine's timing behavior.
type WorkflowConfig struct {
	ApprovalTimeout       time.Duration `mapstructure:"approval_timeout"`
	ApprovalRateThreshold float64       `mapstructure:"approval_rate_threshold"`
	ReaperInterval        time.Duration `mapstructure:"reaper_interval"`
	MaintenanceGrace      time.Duration `mapstructure:"maintenance_grace"`
}

// SyncConfig controls the connector sync coordinator's worker pool and
// retry budget.
type SyncConfig struct {
	WorkerPoolWidth  int           `mapstructure:"worker_pool_width"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	RetryMax         int           `mapstructure:"retry_max"`
	RetryBaseSeconds int           `mapstructure:"retry_base_seconds"`
	RetryCapSeconds  int           `mapstructure:"retry_cap_seconds"`
	PeriodicInterval time.Duration `mapstructure:"periodic_interval"`
	// CoreDeviceK is the minimum number of distinct shortest dependency
	// paths a Device must sit on, between a critical Application and one
	// of its serving devices, to be flagged core after each sync pass.
	CoreDeviceK int `mapstructure:"core_device_k"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Path           string        `mapstructure:"path"`
	RollupInterval time.Duration `mapstructure:"rollup_interval"`
	RollupWindow   time.Duration `mapstructure:"rollup_window"`
}

// AppConfig holds application-identity configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoadConfig loads configuration from a file (if configPath is non-empty)
// and environment variables, applying defaults first.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "changeintel")
	viper.SetDefault("database.username", "dev")
	viper.SetDefault("database.password", "dev")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.query_timeout", "30s")

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.min_retry_backoff", "100ms")
	viper.SetDefault("redis.max_retry_backoff", "500ms")

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// Risk defaults, matching internal/risk.DefaultConfig weights
	viper.SetDefault("risk.prod_environment", 30.0)
	viper.SetDefault("risk.core_device_touched", 40.0)
	viper.SetDefault("risk.high_dependency_count", 20.0)
	viper.SetDefault("risk.high_dependency_threshold", 10)
	viper.SetDefault("risk.no_rollback_plan", 25.0)
	viper.SetDefault("risk.outside_maintenance_window", 30.0)
	viper.SetDefault("risk.prior_incident_within_90_days", 15.0)
	viper.SetDefault("risk.critical_application_affected", 20.0)
	viper.SetDefault("risk.critical_application_cap", 40.0)
	viper.SetDefault("risk.any_any_rule", 25.0)
	viper.SetDefault("risk.redundancy_discount", -10.0)
	viper.SetDefault("risk.low_criticality_add_rule_discount", -5.0)
	viper.SetDefault("risk.min_score", 0.0)
	viper.SetDefault("risk.max_score", 100.0)
	viper.SetDefault("risk.low_max", 30.0)
	viper.SetDefault("risk.medium_max", 55.0)
	viper.SetDefault("risk.high_max", 75.0)

	// Impact defaults
	viper.SetDefault("impact.max_traversal_depth", 2)
	viper.SetDefault("impact.snapshot_cache_ttl", "5m")
	viper.SetDefault("impact.snapshot_cache_size", 512)

	// Policy defaults
	viper.SetDefault("policy.reload_interval", "30s")

	// Workflow defaults
	viper.SetDefault("workflow.approval_timeout", "48h")
	viper.SetDefault("workflow.approval_rate_threshold", 0.7)
	viper.SetDefault("workflow.reaper_interval", "5m")
	viper.SetDefault("workflow.maintenance_grace", "15m")

	// Sync defaults
	viper.SetDefault("sync.worker_pool_width", 8)
	viper.SetDefault("sync.job_timeout", "5m")
	viper.SetDefault("sync.retry_max", 8)
	viper.SetDefault("sync.retry_base_seconds", 30)
	viper.SetDefault("sync.retry_cap_seconds", 900)
	viper.SetDefault("sync.periodic_interval", "10m")
	viper.SetDefault("sync.core_device_k", 2)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.rollup_interval", 5*time.Minute)
	viper.SetDefault("metrics.rollup_window", 30*24*time.Hour)

	// App defaults
	viper.SetDefault("app.name", "changeintel")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	if c.Workflow.ApprovalRateThreshold < 0 || c.Workflow.ApprovalRateThreshold > 1 {
		return fmt.Errorf("invalid workflow approval_rate_threshold: %f", c.Workflow.ApprovalRateThreshold)
	}

	if c.Sync.WorkerPoolWidth <= 0 || c.Sync.WorkerPoolWidth > 16 {
		return fmt.Errorf("invalid sync worker_pool_width: %d (must be 1-16)", c.Sync.WorkerPoolWidth)
	}

	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}

	return nil
}

// GetDatabaseURL constructs the Postgres connection URL from configuration.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebug returns true if debug mode is enabled.
func (c *Config) IsDebug() bool {
	return c.App.Debug || c.IsDevelopment()
}
