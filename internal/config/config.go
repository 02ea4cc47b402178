package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GatewayConfig configures the external payment provider client.
type GatewayConfig struct {
	BaseURL              string        `yaml:"base_url"`
	APIKey               string        `yaml:"api_key"`
	AttemptTimeout       time.Duration `yaml:"attempt_timeout"` // per network attempt
	MaxAttempts          int           `yaml:"max_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	AllowedPhonePrefixes []string      `yaml:"allowed_phone_prefixes"` // e.g. ["+254", "+255"]
	Simulated            bool          `yaml:"simulated"`              // use the in-memory gateway (dev)
}

type SettlementConfig struct {
	DefaultCurrency string `yaml:"default_currency"`
	// Checkout rate limit per payer (requests per window).
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	Disabled bool   `yaml:"disabled"` // log receipts instead of sending (dev)
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Settlement SettlementConfig `yaml:"settlement"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	SMTP       SMTPConfig       `yaml:"smtp"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies env overrides for secrets, and
// fills defaults. Construction-time injection only; no ambient globals.
func LoadConfig(path string, dev bool) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	// Secrets may come from the environment instead of the file.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}

	cfg.applyDefaults()
	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.JWTTTL <= 0 {
		c.Server.JWTTTL = 24 * time.Hour
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Gateway.AttemptTimeout <= 0 {
		c.Gateway.AttemptTimeout = 10 * time.Second
	}
	if c.Gateway.MaxAttempts <= 0 {
		c.Gateway.MaxAttempts = 3
	}
	if c.Gateway.RetryDelay <= 0 {
		c.Gateway.RetryDelay = time.Second
	}
	if len(c.Gateway.AllowedPhonePrefixes) == 0 {
		c.Gateway.AllowedPhonePrefixes = []string{"+254", "+255"}
	}
	if c.Settlement.DefaultCurrency == "" {
		c.Settlement.DefaultCurrency = "KES"
	}
	if c.Settlement.RateLimit <= 0 {
		c.Settlement.RateLimit = 10
	}
	if c.Settlement.RateLimitWindow <= 0 {
		c.Settlement.RateLimitWindow = time.Minute
	}
	if c.Reconciler.Interval <= 0 {
		c.Reconciler.Interval = time.Minute
	}
	if c.Reconciler.StaleAfter <= 0 {
		c.Reconciler.StaleAfter = 10 * time.Minute
	}
	if c.Reconciler.BatchSize <= 0 {
		c.Reconciler.BatchSize = 200
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Server.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("server.jwt_secret is required outside dev mode")
	}
	if !c.Gateway.Simulated && c.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required unless gateway.simulated is set")
	}
	return nil
}
