package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	API          APIConfig          `yaml:"api"`
	Database     DatabaseConfig     `yaml:"database"`
	Storage      StorageConfig      `yaml:"storage"`
	NATS         NATSConfig         `yaml:"nats"`
	JWT          JWTConfig          `yaml:"jwt"`
	Log          LogConfig          `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Backup       BackupConfig       `yaml:"backup"`
	AI           AIConfig           `yaml:"ai"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Bootstrap    BootstrapConfig    `yaml:"bootstrap"`
	Integration  IntegrationConfig  `yaml:"integration"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Storage drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// StorageConfig selects the store implementation
type StorageConfig struct {
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the embedded driver. Path ":memory:" keeps the
// database in process memory on a single connection.
type SQLiteConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// NATSConfig represents NATS configuration. An empty URL runs the event
// bus in process.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	Issuer         string        `yaml:"issuer"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// BackupConfig controls where snapshot archives live
type BackupConfig struct {
	Dir              string `yaml:"dir"`
	CompressionLevel int    `yaml:"compression_level"`
}

// AIConfig configures the LLM provider. An empty BaseURL disables calls.
type AIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	HistorySize int           `yaml:"history_size"`
}

// Workflow modes
const (
	WorkflowOpen   = "open"
	WorkflowStrict = "strict"
)

// WorkflowConfig selects the ticket transition policy
type WorkflowConfig struct {
	Mode          string   `yaml:"mode"`
	OverrideRoles []string `yaml:"override_roles"`
}

// SubscriptionConfig holds billing defaults
type SubscriptionConfig struct {
	TrialPlan      string `yaml:"trial_plan"`
	TrialDays      int    `yaml:"trial_days"`
	GraceDays      int    `yaml:"grace_days"`
	SeedPlans      bool   `yaml:"seed_plans"`
	SearchMaxItems int    `yaml:"search_max_items"`
}

// BootstrapConfig creates the first platform admin on startup
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
	AdminName     string `yaml:"admin_name"`
}

// IntegrationConfig selects the events forwarded to external systems.
// Entries of Events ending in "." select a family ("ticket.").
type IntegrationConfig struct {
	Events []string              `yaml:"events"`
	HTTP   HTTPIntegrationConfig `yaml:"http"`
	MQTT   MQTTIntegrationConfig `yaml:"mqtt"`
}

// HTTPIntegrationConfig configures the webhook target
type HTTPIntegrationConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Endpoint     string            `yaml:"endpoint"`
	Headers      map[string]string `yaml:"headers"`
	Secret       string            `yaml:"secret"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryBackoff time.Duration     `yaml:"retry_backoff"`
}

// MQTTIntegrationConfig configures the broker target. TopicPattern
// supports {tenant_id}, {category} and {type}.
type MQTTIntegrationConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BrokerURL    string `yaml:"broker_url"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TopicPattern string `yaml:"topic_pattern"`
	QoS          byte   `yaml:"qos"`
	TLS          bool   `yaml:"tls"`
}

// Address returns the host:port the API listens on
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and
// defaults, and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration suitable for local development
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if apiKey := os.Getenv("AI_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}

	if dir := os.Getenv("BACKUP_DIR"); dir != "" {
		c.Backup.Dir = dir
	}

	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		c.Storage.SQLite.Path = path
	}

	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		c.Integration.HTTP.Secret = secret
	}
}

// setDefaults fills zero values
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "fixgsm-server"
	}
	if c.API.Port == 0 {
		c.API.Port = 8001
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 60 * time.Second
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageDriverPostgres
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "data/fixgsm.db"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = c.Server.Name
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "fixgsm"
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 24 * time.Hour
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "fixgsm"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "fixgsm"
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = "./backups"
	}
	if c.Backup.CompressionLevel == 0 {
		c.Backup.CompressionLevel = 3
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.0-flash"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 30 * time.Second
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 1024
	}
	if c.AI.HistorySize == 0 {
		c.AI.HistorySize = 20
	}
	if c.Workflow.Mode == "" {
		c.Workflow.Mode = WorkflowOpen
	}
	if c.Workflow.OverrideRoles == nil {
		c.Workflow.OverrideRoles = []string{"Owner", "Manager"}
	}
	if c.Subscription.TrialPlan == "" {
		c.Subscription.TrialPlan = "Trial"
	}
	if c.Subscription.TrialDays == 0 {
		c.Subscription.TrialDays = 14
	}
	if c.Subscription.GraceDays == 0 {
		c.Subscription.GraceDays = 7
	}
	if c.Subscription.SearchMaxItems == 0 {
		c.Subscription.SearchMaxItems = 20
	}
	if c.Bootstrap.AdminName == "" {
		c.Bootstrap.AdminName = "Administrator"
	}
	if c.Integration.HTTP.Timeout == 0 {
		c.Integration.HTTP.Timeout = 10 * time.Second
	}
	if c.Integration.HTTP.MaxRetries == 0 {
		c.Integration.HTTP.MaxRetries = 3
	}
	if c.Integration.HTTP.RetryBackoff == 0 {
		c.Integration.HTTP.RetryBackoff = time.Second
	}
	if c.Integration.MQTT.ClientID == "" {
		c.Integration.MQTT.ClientID = c.Server.Name + "-events"
	}
	if c.Integration.MQTT.TopicPattern == "" {
		c.Integration.MQTT.TopicPattern = "fixgsm/{tenant_id}/{category}/{type}"
	}
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case StorageDriverSQLite:
		if c.Storage.SQLite.PoolSize < 0 {
			return fmt.Errorf("storage.sqlite.pool_size must not be negative")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("jwt.secret must be at least 16 characters")
	}

	switch strings.ToLower(c.Workflow.Mode) {
	case WorkflowOpen, WorkflowStrict:
		c.Workflow.Mode = strings.ToLower(c.Workflow.Mode)
	default:
		return fmt.Errorf("unknown workflow mode %q", c.Workflow.Mode)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Subscription.TrialDays < 1 {
		return fmt.Errorf("subscription.trial_days must be positive")
	}
	if c.Integration.MQTT.QoS > 2 {
		return fmt.Errorf("integration.mqtt.qos must be 0, 1 or 2")
	}
	if c.Bootstrap.AdminEmail != "" && len(c.Bootstrap.AdminPassword) < 8 {
		return fmt.Errorf("bootstrap.admin_password must be at least 8 characters")
	}
	return nil
}
