// Package config provides configuration management for the service order
// engine.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	River     RiverConfig     `mapstructure:"river"`
	Security  SecurityConfig  `mapstructure:"security"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// StoreTimeout bounds each request's store work. Exceeding it yields
	// STORE_UNAVAILABLE.
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. River and the
// repository share one pool.
type DatabaseConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `mapstructure:"backend"`
	URL     string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// LockTimeout bounds the wait for an order's lock inside a unit of work.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains security-related settings. Missing secrets are
// generated on first boot.
type SecurityConfig struct {
	// JWTSecret signs and verifies HS256 bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
	// TokenTTL is the lifetime of tokens minted by minervactl.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	FanoutPoolSize  int `mapstructure:"fanout_pool_size"`
}

// WorkflowConfig tunes the engine and its background jobs.
type WorkflowConfig struct {
	DeadlineAlertWindow   time.Duration `mapstructure:"deadline_alert_window"`
	MaxHierarchyDepth     int           `mapstructure:"max_hierarchy_depth"`
	DeadlineScanInterval  time.Duration `mapstructure:"deadline_scan_interval"`
	DeadlineNoticeWindow  time.Duration `mapstructure:"deadline_notice_window"`
	NotificationRetention time.Duration `mapstructure:"notification_retention"`
	ApproverCargos        []string      `mapstructure:"approver_cargos"`
	// CatalogPath replaces the embedded order type catalog when set.
	CatalogPath string `mapstructure:"catalog_path"`
}

// Cargos returns ApproverCargos typed, or nil for the defaults.
func (c WorkflowConfig) Cargos() []domain.Cargo {
	if len(c.ApproverCargos) == 0 {
		return nil
	}
	out := make([]domain.Cargo, 0, len(c.ApproverCargos))
	for _, s := range c.ApproverCargos {
		out = append(out, domain.Cargo(strings.TrimSpace(s)))
	}
	return out
}

// TelemetryConfig controls OpenTelemetry.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Stdout      bool   `mapstructure:"stdout"`
	ServiceName string `mapstructure:"service_name"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Environment variables carry no prefix: database.max_conns maps to
// DATABASE_MAX_CONNS.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/minerva")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Workflow.ApproverCargos = splitList(cfg.Workflow.ApproverCargos)

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("security.jwt_secret must be at least 32 characters"))
	}
	switch c.Database.Backend {
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("database.backend must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Database.Backend))
	}
	w := c.Workflow
	for name, d := range map[string]time.Duration{
		"workflow.deadline_alert_window":  w.DeadlineAlertWindow,
		"workflow.deadline_scan_interval": w.DeadlineScanInterval,
		"workflow.deadline_notice_window": w.DeadlineNoticeWindow,
		"workflow.notification_retention": w.NotificationRetention,
		"server.store_timeout":            c.Server.StoreTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if w.MaxHierarchyDepth <= 0 {
		errs = append(errs, fmt.Errorf("workflow.max_hierarchy_depth must be positive"))
	}
	for _, cargo := range w.Cargos() {
		if !cargo.Known() {
			errs = append(errs, fmt.Errorf("workflow.approver_cargos: unknown cargo %q", cargo))
		}
	}
	return errors.Join(errs...)
}

// ensureSecrets generates missing secrets.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt secret: %w", err)
		}
		c.Security.JWTSecret = secret
		logBootstrapWarn(
			"auto-generated jwt_secret; set SECURITY_JWT_SECRET for tokens that survive restarts",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.store_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.backend", BackendPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "minerva")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "minerva")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_issuer", "minerva")
	v.SetDefault("security.token_ttl", "12h")

	// Worker pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.fanout_pool_size", 64)

	// Workflow
	v.SetDefault("workflow.deadline_alert_window", "72h")
	v.SetDefault("workflow.max_hierarchy_depth", 10)
	v.SetDefault("workflow.deadline_scan_interval", "1h")
	v.SetDefault("workflow.deadline_notice_window", "48h")
	v.SetDefault("workflow.notification_retention", "2160h")
	v.SetDefault("workflow.approver_cargos", []string{})
	v.SetDefault("workflow.catalog_path", "")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.service_name", "minerva")
}
