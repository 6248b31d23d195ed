package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
)

type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Nats          NatsConfig          `mapstructure:"nats"`
	PhonePe       PhonePeConfig       `mapstructure:"phonepe"`
	Scheduling    SchedulingConfig    `mapstructure:"scheduling"`
	Receipts      ReceiptsConfig      `mapstructure:"receipts"`
}

type NatsConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type DatabaseConfig struct {
	Host       string                  `mapstructure:"host"`
	Port       int                     `mapstructure:"port"`
	User       string                  `mapstructure:"user"`
	Password   string                  `mapstructure:"password"`
	DBName     string                  `mapstructure:"dbname"`
	SSLMode    string                  `mapstructure:"sslmode"`
	Pool       DatabasePoolConfig      `mapstructure:"pool"`
	Migrations DatabaseMigrationConfig `mapstructure:"migrations"`
}

type DatabasePoolConfig struct {
	MaxOpenConns       int `mapstructure:"max_open_conns"`
	MaxIdleConns       int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int `mapstructure:"conn_max_lifetime_minutes"`
}

type DatabaseMigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr                string `mapstructure:"addr"`
	DB                  int    `mapstructure:"db"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	PoolSize            int    `mapstructure:"pool_size"`
	MinIdleConns        int    `mapstructure:"min_idle_conns"`
	DialTimeoutSeconds  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	// LockTTLSeconds bounds how long a consultation mutation lock may be held.
	LockTTLSeconds int `mapstructure:"lock_ttl_seconds"`
	// WebhookDedupeTTLHours is how long a processed webhook marker is kept.
	WebhookDedupeTTLHours int `mapstructure:"webhook_dedupe_ttl_hours"`
}

type ServerConfig struct {
	Port           int        `mapstructure:"port"`
	TimeoutSeconds int        `mapstructure:"timeout_seconds"`
	Environment    string     `mapstructure:"environment"`
	Databases      []string   `mapstructure:"databases"`
	CORS           CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type ObservabilityConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string       `mapstructure:"level"`  // debug, info, warn, error
	Format string       `mapstructure:"format"` // text, json
	Output OutputConfig `mapstructure:"output"`
}

type OutputConfig struct {
	Stdout bool          `mapstructure:"stdout"`
	File   FileLogConfig `mapstructure:"file"`
	Loki   LokiConfig    `mapstructure:"loki"`
}

type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`        // e.g. "logs/app.log"
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // rotate after N MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LokiConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"` // e.g. "http://localhost:3100"
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PhonePeConfig carries both credential sets; Environment picks one of them
// once at startup through Resolve.
type PhonePeConfig struct {
	Environment string                 `mapstructure:"environment"` // sandbox, production
	Sandbox     PhonePeCredentialBlock `mapstructure:"sandbox"`
	Production  PhonePeCredentialBlock `mapstructure:"production"`
	CallbackURL string                 `mapstructure:"callback_url"`
	RedirectURL string                 `mapstructure:"redirect_url"`
	// DefaultRegion is used to normalize customer mobile numbers, e.g. "IN".
	DefaultRegion string `mapstructure:"default_region"`
}

type PhonePeCredentialBlock struct {
	MerchantID string `mapstructure:"merchant_id"`
	SaltKey    string `mapstructure:"salt_key"`
	SaltIndex  string `mapstructure:"salt_index"`
	BaseURL    string `mapstructure:"base_url"`
}

const (
	PhonePeSandbox    = "sandbox"
	PhonePeProduction = "production"
)

// Resolve selects the credential block for the configured environment and
// fills gateway defaults for anything left empty.
func (p PhonePeConfig) Resolve() phonepe.Credentials {
	if strings.EqualFold(p.Environment, PhonePeProduction) {
		return phonepe.Credentials{
			Environment: PhonePeProduction,
			MerchantID:  p.Production.MerchantID,
			SaltKey:     p.Production.SaltKey,
			SaltIndex:   orDefault(p.Production.SaltIndex, "1"),
			BaseURL:     orDefault(p.Production.BaseURL, phonepe.ProductionBaseURL),
		}
	}
	return phonepe.Credentials{
		Environment: PhonePeSandbox,
		MerchantID:  orDefault(p.Sandbox.MerchantID, "PGTESTPAYUAT86"),
		SaltKey:     orDefault(p.Sandbox.SaltKey, "96434309-7796-489d-8924-ab56988a6076"),
		SaltIndex:   orDefault(p.Sandbox.SaltIndex, "1"),
		BaseURL:     orDefault(p.Sandbox.BaseURL, phonepe.SandboxBaseURL),
	}
}

type SchedulingConfig struct {
	// Timezone is the reference zone scheduled date+time values are read in.
	Timezone                    string `mapstructure:"timezone"`
	RescheduleGraceMinutes      int    `mapstructure:"reschedule_grace_minutes"`
	RequirePaymentBeforeStart   bool   `mapstructure:"require_payment_before_start"`
	OverdueSweepIntervalMinutes int    `mapstructure:"overdue_sweep_interval_minutes"`
	DefaultDurationMinutes      int    `mapstructure:"default_duration_minutes"`
}

// Location loads the reference timezone, defaulting to Asia/Kolkata.
func (s SchedulingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(orDefault(s.Timezone, "Asia/Kolkata"))
}

func (s SchedulingConfig) GracePeriod() time.Duration {
	if s.RescheduleGraceMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.RescheduleGraceMinutes) * time.Minute
}

func (s SchedulingConfig) SweepInterval() time.Duration {
	if s.OverdueSweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.OverdueSweepIntervalMinutes) * time.Minute
}

func (s SchedulingConfig) DefaultDuration() int {
	if s.DefaultDurationMinutes <= 0 {
		return 30
	}
	return s.DefaultDurationMinutes
}

type ReceiptsConfig struct {
	CurrencySymbol string `mapstructure:"currency_symbol"`
}

func (r ReceiptsConfig) Symbol() string {
	return orDefault(r.CurrencySymbol, "₹")
}

func (c *Config) Validate() error {
	if _, err := c.Scheduling.Location(); err != nil {
		return fmt.Errorf("scheduling.timezone: %w", err)
	}

	switch strings.ToLower(c.PhonePe.Environment) {
	case "", PhonePeSandbox, PhonePeProduction:
	default:
		return fmt.Errorf("phonepe.environment must be %q or %q, got %q", PhonePeSandbox, PhonePeProduction, c.PhonePe.Environment)
	}

	if strings.EqualFold(c.PhonePe.Environment, PhonePeProduction) {
		if c.PhonePe.Production.MerchantID == "" || c.PhonePe.Production.SaltKey == "" {
			return fmt.Errorf("phonepe.production merchant_id and salt_key are required")
		}
	}

	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
