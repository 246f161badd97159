package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ulule/limiter/v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upstream  UpstreamConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the ledger database connection settings
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// UpstreamConfig holds the base URLs of the marketplace microservices.
type UpstreamConfig struct {
	AuthURL         string
	RegistrationURL string
	EventURL        string
	PaymentURL      string
	AdminURL        string
	ReportURL       string
	Timeout         time.Duration
}

// RedisConfig holds the session store settings. An empty Addr keeps
// sessions in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AMQPConfig holds the notification broker settings. An empty URL disables
// publishing.
type AMQPConfig struct {
	URL string
}

// PaymentConfig tunes the donation tracker.
type PaymentConfig struct {
	Currency     string
	PollInterval time.Duration
	MaxDuration  time.Duration
	MaxAttempts  int
	SessionTTL   time.Duration
}

// RateLimitConfig bounds how often a client may start donations, in the
// ulule/limiter "<limit>-<period>" format (e.g. "10-M").
type RateLimitConfig struct {
	Donations string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Load reads configuration from config/local.env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load("config/local.env")

	cfg := &Config{}

	if err := cfg.loadServer(); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	if err := cfg.loadDatabase(); err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	if err := cfg.loadUpstream(); err != nil {
		return nil, fmt.Errorf("load upstream config: %w", err)
	}
	if err := cfg.loadRedis(); err != nil {
		return nil, fmt.Errorf("load redis config: %w", err)
	}
	if err := cfg.loadPayment(); err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}

	cfg.AMQP.URL = os.Getenv("AMQP_URL")
	cfg.RateLimit.Donations = getEnvOrDefault("DONATION_RATE_LIMIT", "10-M")
	cfg.loadCORS()
	cfg.loadLogging()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadServer() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	c.Server.Port = port
	c.Server.Host = getEnvOrDefault("HOST", "0.0.0.0")
	return nil
}

func (c *Config) loadDatabase() error {
	c.Database.URL = os.Getenv("DATABASE_URL")
	if c.Database.URL != "" {
		return nil
	}

	c.Database.Host = getEnvOrDefault("DB_HOST", "localhost")
	c.Database.User = os.Getenv("DB_USER")
	c.Database.Password = os.Getenv("DB_PASSWORD")
	c.Database.Name = os.Getenv("DB_NAME")
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	c.Database.Port = port

	if c.Database.User != "" && c.Database.Name != "" {
		c.Database.URL = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(c.Database.User),
			url.QueryEscape(c.Database.Password),
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
			c.Database.SSLMode,
		)
	}
	return nil
}

func (c *Config) loadUpstream() error {
	// Every service defaults to the gateway URL so a single-host deployment
	// only needs UPSTREAM_URL.
	gateway := getEnvOrDefault("UPSTREAM_URL", "http://localhost:8090")

	c.Upstream.AuthURL = getEnvOrDefault("AUTH_SERVICE_URL", gateway)
	c.Upstream.RegistrationURL = getEnvOrDefault("REGISTRATION_SERVICE_URL", gateway)
	c.Upstream.EventURL = getEnvOrDefault("EVENT_SERVICE_URL", gateway)
	c.Upstream.PaymentURL = getEnvOrDefault("PAYMENT_SERVICE_URL", gateway)
	c.Upstream.AdminURL = getEnvOrDefault("ADMIN_SERVICE_URL", gateway)
	c.Upstream.ReportURL = getEnvOrDefault("REPORT_SERVICE_URL", gateway)

	timeout, err := time.ParseDuration(getEnvOrDefault("UPSTREAM_TIMEOUT", "15s"))
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
	}
	c.Upstream.Timeout = timeout
	return nil
}

func (c *Config) loadRedis() error {
	c.Redis.Addr = os.Getenv("REDIS_ADDR")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	c.Redis.DB = db
	return nil
}

func (c *Config) loadPayment() error {
	c.Payment.Currency = strings.ToUpper(getEnvOrDefault("PAYMENT_CURRENCY", "EUR"))

	var err error
	if c.Payment.PollInterval, err = time.ParseDuration(getEnvOrDefault("PAYMENT_POLL_INTERVAL", "1s")); err != nil {
		return fmt.Errorf("invalid PAYMENT_POLL_INTERVAL: %w", err)
	}
	if c.Payment.MaxDuration, err = time.ParseDuration(getEnvOrDefault("PAYMENT_MAX_DURATION", "15m")); err != nil {
		return fmt.Errorf("invalid PAYMENT_MAX_DURATION: %w", err)
	}
	if c.Payment.MaxAttempts, err = strconv.Atoi(getEnvOrDefault("PAYMENT_MAX_ATTEMPTS", "0")); err != nil {
		return fmt.Errorf("invalid PAYMENT_MAX_ATTEMPTS: %w", err)
	}
	if c.Payment.SessionTTL, err = time.ParseDuration(getEnvOrDefault("SESSION_TTL", "12h")); err != nil {
		return fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	return nil
}

func (c *Config) loadCORS() {
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
		return
	}

	for _, origin := range strings.Split(originsEnv, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, trimmed)
		}
	}
}

func (c *Config) loadLogging() {
	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", "info")
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", "json")
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var problems []string

	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}

	for name, raw := range map[string]string{
		"AUTH_SERVICE_URL":         c.Upstream.AuthURL,
		"REGISTRATION_SERVICE_URL": c.Upstream.RegistrationURL,
		"EVENT_SERVICE_URL":        c.Upstream.EventURL,
		"PAYMENT_SERVICE_URL":      c.Upstream.PaymentURL,
		"ADMIN_SERVICE_URL":        c.Upstream.AdminURL,
		"REPORT_SERVICE_URL":       c.Upstream.ReportURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, name+" must be an absolute URL")
		}
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, "UPSTREAM_TIMEOUT must be positive")
	}

	if c.Payment.PollInterval <= 0 {
		problems = append(problems, "PAYMENT_POLL_INTERVAL must be positive")
	}
	if c.Payment.MaxDuration < 0 {
		problems = append(problems, "PAYMENT_MAX_DURATION must not be negative")
	}
	if c.Payment.MaxAttempts < 0 {
		problems = append(problems, "PAYMENT_MAX_ATTEMPTS must not be negative")
	}
	if len(c.Payment.Currency) != 3 {
		problems = append(problems, "PAYMENT_CURRENCY must be a three letter code")
	}

	if _, err := limiter.NewRateFromFormatted(c.RateLimit.Donations); err != nil {
		problems = append(problems, "DONATION_RATE_LIMIT must look like 10-M")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		problems = append(problems, "LOG_FORMAT must be one of: json, text")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
