package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Gateways      GatewaysConfig      `mapstructure:"gateways"`
	Mail          MailConfig          `mapstructure:"mail"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// RedisConfig backs the single-instance sweep lock. Leaving Addr empty
// disables the lock, which is only safe with one scheduler node.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SecurityConfig struct {
	ServiceTokenSecret string `mapstructure:"service_token_secret"`
}

type BillingConfig struct {
	SuspendThreshold int           `mapstructure:"suspend_threshold"`
	WarnThreshold    int           `mapstructure:"warn_threshold"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	SweepLockTTL     time.Duration `mapstructure:"sweep_lock_ttl"`
}

// GatewaysConfig is the legacy single-tenant payment setting: clients
// without their own PaymentMerchant row fall back to these credentials.
type GatewaysConfig struct {
	Default  string         `mapstructure:"default"`
	Midtrans MidtransConfig `mapstructure:"midtrans"`
	Xendit   XenditConfig   `mapstructure:"xendit"`
}

type MidtransConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	IsProduction bool   `mapstructure:"is_production"`
	ServerKey    string `mapstructure:"server_key"`
	ClientKey    string `mapstructure:"client_key"`
}

type XenditConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	IsProduction  bool   `mapstructure:"is_production"`
	SecretKey     string `mapstructure:"secret_key"`
	CallbackToken string `mapstructure:"callback_token"`
}

type MailConfig struct {
	PostmarkServerToken string `mapstructure:"postmark_server_token"`
	FromEmail           string `mapstructure:"from_email"`
	FromName            string `mapstructure:"from_name"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DefaultSuspendThreshold = 5
	DefaultWarnThreshold    = 3
	DefaultRetryInterval    = 24 * time.Hour
	DefaultSweepLockTTL     = 30 * time.Minute
)

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the config entirely from environment variables,
// used for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			ServiceTokenSecret: getEnv("SERVICE_TOKEN_SECRET", ""),
		},
		Billing: BillingConfig{
			SuspendThreshold: getEnvAsInt("BILLING_SUSPEND_THRESHOLD", DefaultSuspendThreshold),
			WarnThreshold:    getEnvAsInt("BILLING_WARN_THRESHOLD", DefaultWarnThreshold),
			RetryInterval:    DefaultRetryInterval,
			SweepLockTTL:     DefaultSweepLockTTL,
		},
		Gateways: GatewaysConfig{
			Default: getEnv("GATEWAY_DEFAULT", "midtrans"),
			Midtrans: MidtransConfig{
				Enabled:      getEnv("MIDTRANS_ENABLED", "true") == "true",
				IsProduction: getEnv("MIDTRANS_PRODUCTION", "false") == "true",
				ServerKey:    getEnv("MIDTRANS_SERVER_KEY", ""),
				ClientKey:    getEnv("MIDTRANS_CLIENT_KEY", ""),
			},
			Xendit: XenditConfig{
				Enabled:       getEnv("XENDIT_ENABLED", "false") == "true",
				IsProduction:  getEnv("XENDIT_PRODUCTION", "false") == "true",
				SecretKey:     getEnv("XENDIT_SECRET_KEY", ""),
				CallbackToken: getEnv("XENDIT_CALLBACK_TOKEN", ""),
			},
		},
		Mail: MailConfig{
			PostmarkServerToken: getEnv("POSTMARK_SERVER_TOKEN", ""),
			FromEmail:           getEnv("MAIL_FROM_EMAIL", "billing@pos-billing.local"),
			FromName:            getEnv("MAIL_FROM_NAME", "POS Billing"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Billing.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("billing config: %v", err))
	}

	if err := c.Gateways.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateways config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *BillingConfig) Validate() error {
	if c.SuspendThreshold <= 0 {
		c.SuspendThreshold = DefaultSuspendThreshold
	}
	if c.WarnThreshold <= 0 {
		c.WarnThreshold = DefaultWarnThreshold
	}
	if c.WarnThreshold > c.SuspendThreshold {
		return errors.New("warn_threshold cannot be greater than suspend_threshold")
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.SweepLockTTL <= 0 {
		c.SweepLockTTL = DefaultSweepLockTTL
	}
	return nil
}

func (c *GatewaysConfig) Validate() error {
	switch c.Default {
	case "", "midtrans", "xendit":
	default:
		return fmt.Errorf("unknown default gateway %q", c.Default)
	}
	if c.Midtrans.Enabled && c.Midtrans.ServerKey == "" {
		return errors.New("midtrans enabled but server_key is empty")
	}
	if c.Xendit.Enabled && c.Xendit.SecretKey == "" {
		return errors.New("xendit enabled but secret_key is empty")
	}
	return nil
}
