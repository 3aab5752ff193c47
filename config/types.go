package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Server         ServerConfig         `mapstructure:"server"`
	Authentication AuthenticationConfig `mapstructure:"authentication"`
	Authorization  AuthorizationConfig  `mapstructure:"authorization"`
	Email          EmailConfig          `mapstructure:"email"`
	Password       PasswordConfig       `mapstructure:"password"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	S3             S3Config             `mapstructure:"s3"`
	MPesa          MPesaConfig          `mapstructure:"mpesa"`
	Wallet         WalletConfig         `mapstructure:"wallet"`
	Nats           NatsConfig           `mapstructure:"nats"`
}

type NatsConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type DatabaseConfig struct {
	// Driver selects the store implementation: postgres or memory.
	Driver     string                  `mapstructure:"driver"`
	Host       string                  `mapstructure:"host"`
	Port       int                     `mapstructure:"port"`
	User       string                  `mapstructure:"user"`
	Password   string                  `mapstructure:"password"`
	DBName     string                  `mapstructure:"dbname"`
	SSLMode    string                  `mapstructure:"sslmode"`
	Pool       DatabasePoolConfig      `mapstructure:"pool"`
	Migrations DatabaseMigrationConfig `mapstructure:"migrations"`
	Logging    DatabaseLoggingConfig   `mapstructure:"logging"`
}

type DatabasePoolConfig struct {
	MaxOpenConns       int `mapstructure:"max_open_conns"`
	MaxIdleConns       int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int `mapstructure:"conn_max_lifetime_minutes"`
}

type DatabaseMigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type DatabaseLoggingConfig struct {
	Enabled bool `mapstructure:"enabled"`
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
}

type RateLimitConfig struct {
	Max               int `mapstructure:"max"`
	ExpirationSeconds int `mapstructure:"expiration_seconds"`
}

type ServerConfig struct {
	Port           int             `mapstructure:"port"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	Environment    string          `mapstructure:"environment"`
	Domain         string          `mapstructure:"domain"`
	Databases      []string        `mapstructure:"databases"`
	CORS           CORSConfig      `mapstructure:"cors"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthenticationConfig struct {
	MinPasswordLength int          `mapstructure:"min_password_length"`
	Paseto            PasetoConfig `mapstructure:"paseto"`
}

type PasetoConfig struct {
	Mode             string `mapstructure:"mode"`
	LocalKeyHex      string `mapstructure:"local_key_hex"`
	SecretKeyHex     string `mapstructure:"secret_key_hex"`
	PublicKeyHex     string `mapstructure:"public_key_hex"`
	Issuer           string `mapstructure:"issuer"`
	Audience         string `mapstructure:"audience"`
	AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays   int    `mapstructure:"refresh_ttl_days"`
}

func (p PasetoConfig) AccessTTL() time.Duration {
	return time.Duration(p.AccessTTLMinutes) * time.Minute
}

func (p PasetoConfig) RefreshTTL() time.Duration {
	return time.Duration(p.RefreshTTLDays) * 24 * time.Hour
}

type AuthorizationConfig struct {
	EnableAudit bool `mapstructure:"enable_audit"`
	// WatcherChannel is the NOTIFY channel for policy changes when the
	// postgres store holds the policies.
	WatcherChannel string `mapstructure:"watcher_channel"`
}

type EmailConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	From    string     `mapstructure:"from"`
	BaseURL string     `mapstructure:"base_url"`
	Admins  []string   `mapstructure:"admins"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UseTLS         bool   `mapstructure:"use_tls"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type PasswordConfig struct {
	Algorithm     string `mapstructure:"algorithm"`
	MemoryKiB     uint32 `mapstructure:"memory_kib"`
	Iterations    uint32 `mapstructure:"iterations"`
	Parallelism   uint8  `mapstructure:"parallelism"`
	SaltLength    uint32 `mapstructure:"salt_length"`
	KeyLength     uint32 `mapstructure:"key_length"`
	LowMemoryMode bool   `mapstructure:"low_memory_mode"`
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

// MPesaConfig configures the Daraja B2C payout client.
type MPesaConfig struct {
	Sandbox            bool   `mapstructure:"sandbox"`
	BaseURL            string `mapstructure:"base_url"` // overrides the sandbox/production URL
	ConsumerKey        string `mapstructure:"consumer_key"`
	ConsumerSecret     string `mapstructure:"consumer_secret"`
	InitiatorName      string `mapstructure:"initiator_name"`
	SecurityCredential string `mapstructure:"security_credential"`
	ShortCode          string `mapstructure:"short_code"`
	CommandID          string `mapstructure:"command_id"`
	ResultURL          string `mapstructure:"result_url"`
	QueueTimeoutURL    string `mapstructure:"queue_timeout_url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	DefaultRegion      string `mapstructure:"default_region"`
}

type WalletConfig struct {
	MinWithdrawal        int64  `mapstructure:"min_withdrawal"`
	PayoutTimeoutSeconds int    `mapstructure:"payout_timeout_seconds"`
	DefaultLedgerLimit   int    `mapstructure:"default_ledger_limit"`
	MaxLedgerLimit       int    `mapstructure:"max_ledger_limit"`
	IdempotencyTTLHours  int    `mapstructure:"idempotency_ttl_hours"`
	Currency             string `mapstructure:"currency"`
}

func (w WalletConfig) PayoutTimeout() time.Duration {
	return time.Duration(w.PayoutTimeoutSeconds) * time.Second
}

func (w WalletConfig) IdempotencyTTL() time.Duration {
	return time.Duration(w.IdempotencyTTLHours) * time.Hour
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	PresignTTLSec   int    `mapstructure:"presign_ttl_sec"`
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	p := c.Authentication.Paseto
	switch p.Mode {
	case "local":
		if p.LocalKeyHex == "" {
			errs = append(errs, errors.New("authentication.paseto.local_key_hex is required in local mode"))
		}
	case "public":
		if p.SecretKeyHex == "" {
			errs = append(errs, errors.New("authentication.paseto.secret_key_hex is required in public mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("authentication.paseto.mode %q is not supported", p.Mode))
	}

	if c.Wallet.MinWithdrawal <= 0 {
		errs = append(errs, errors.New("wallet.min_withdrawal must be positive"))
	}
	if c.Wallet.PayoutTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("wallet.payout_timeout_seconds must be positive"))
	}
	if c.Wallet.DefaultLedgerLimit <= 0 || c.Wallet.DefaultLedgerLimit > c.Wallet.MaxLedgerLimit {
		errs = append(errs, errors.New("wallet.default_ledger_limit must be within (0, max_ledger_limit]"))
	}

	return errors.Join(errs...)
}
