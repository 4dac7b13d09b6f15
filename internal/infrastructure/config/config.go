package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
)

// EnvPrefix namespaces environment overrides. A double underscore separates
// nested keys: COACH_STRIPE__WEBHOOK_SECRET sets stripe.webhook_secret.
const EnvPrefix = "COACH_"

// DefaultPath is the optional YAML file read after the built-in defaults.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	Stripe        StripeConfig        `koanf:"stripe"`
	Commission    CommissionConfig    `koanf:"commission"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Security      SecurityConfig      `koanf:"security"`
	Telemetry     TelemetryConfig     `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes caps webhook and admin request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type StripeConfig struct {
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
	// FetchTimeout bounds the settlement-fee and line-item lookups.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// EventMarkerTTL is how long a processed event id is remembered.
	EventMarkerTTL time.Duration `koanf:"event_marker_ttl"`
}

// CommissionConfig holds the compensation plan. Rates are fractions.
type CommissionConfig struct {
	ResignRate        float64 `koanf:"resign_rate"`
	CoachDrivenRate   float64 `koanf:"coach_driven_rate"`
	CompanyDrivenRate float64 `koanf:"company_driven_rate"`
	CloserRate        float64 `koanf:"closer_rate"`
	SetterRate        float64 `koanf:"setter_rate"`
	ReferrerBonus     float64 `koanf:"referrer_bonus"`
}

type NotificationsConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Stream         string        `koanf:"stream"`
	MaxLen         int64         `koanf:"max_len"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	ServiceName    string  `koanf:"service_name"`
	OTLPEndpoint   string  `koanf:"otlp_endpoint"`
	Insecure       bool    `koanf:"insecure"`
	SamplingRate   float64 `koanf:"sampling_rate"`
	MetricsEnabled bool    `koanf:"metrics_enabled"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Stripe: StripeConfig{
			FetchTimeout:   5 * time.Second,
			EventMarkerTTL: 24 * time.Hour,
		},
		Commission: CommissionConfig{
			ResignRate:        0.70,
			CoachDrivenRate:   0.70,
			CompanyDrivenRate: 0.50,
			CloserRate:        0.10,
			SetterRate:        0,
			ReferrerBonus:     100,
		},
		Notifications: NotificationsConfig{
			Enabled:        true,
			Stream:         "coaching:events",
			MaxLen:         10000,
			PublishTimeout: 2 * time.Second,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "coaching-backoffice",
			OTLPEndpoint: "localhost:4317",
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}
}

// Load reads defaults, then DefaultPath (or COACH_CONFIG_FILE), then
// environment overrides.
func Load() (*Config, error) {
	path := os.Getenv(EnvPrefix + "CONFIG_FILE")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit YAML path. A missing file is skipped.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects configuration the service cannot run with. An empty
// webhook secret is allowed here; the webhook endpoint reports it per request.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Stripe.FetchTimeout <= 0 {
		return fmt.Errorf("stripe.fetch_timeout must be positive")
	}
	if c.Stripe.EventMarkerTTL <= 0 {
		return fmt.Errorf("stripe.event_marker_ttl must be positive")
	}
	if err := c.Commission.Rates().Validate(); err != nil {
		return fmt.Errorf("commission: %w", err)
	}
	if c.Notifications.Enabled && c.Notifications.Stream == "" {
		return fmt.Errorf("notifications.stream is required when notifications are enabled")
	}
	if c.Security.RateLimit.RequestsPerSecond <= 0 || c.Security.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("security.rate_limit values must be positive")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry.sampling_rate must be between 0 and 1")
	}
	return nil
}

// Rates converts the configured plan into commission rates.
func (c CommissionConfig) Rates() commission.Rates {
	return commission.Rates{
		Resign:        decimal.NewFromFloat(c.ResignRate),
		CoachDriven:   decimal.NewFromFloat(c.CoachDrivenRate),
		CompanyDriven: decimal.NewFromFloat(c.CompanyDrivenRate),
		Closer:        decimal.NewFromFloat(c.CloserRate),
		Setter:        decimal.NewFromFloat(c.SetterRate),
		ReferrerBonus: decimal.NewFromFloat(c.ReferrerBonus),
	}
}
