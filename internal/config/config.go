// File: internal/config/config.go
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
	Port         int           `yaml:"port"`
	AdminAPIKey  string        `yaml:"admin_api_key"` // bearer token for the fulfillment endpoint
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type LocalProviderConfig struct {
	MerchantID   string `yaml:"merchant_id"`
	BaseURL      string `yaml:"base_url"`
	SandboxURL   string `yaml:"sandbox_url"`
	Sandbox      bool   `yaml:"sandbox"`
	SharedSecret string `yaml:"shared_secret"` // HMAC secret for completion callbacks
}

type RemoteAuthorityConfig struct {
	SandboxURL    string `yaml:"sandbox_url"`
	ProductionURL string `yaml:"production_url"`
	KeySetURL     string `yaml:"key_set_url"`
	SharedSecret  string `yaml:"shared_secret"`
	Environment   string `yaml:"environment"` // sandbox|production; which verify endpoint to try first
	IssuerID      string `yaml:"issuer_id"`
	KeyID         string `yaml:"key_id"`
	BundleID      string `yaml:"bundle_id"`
	Audience      string `yaml:"audience"`
	// PrivateKeyPEM is injected from the secret store / environment; the
	// signing key is never read from a hardcoded file path.
	PrivateKeyPEM string `yaml:"private_key_pem"`
}

type PaymentConfig struct {
	Local  LocalProviderConfig   `yaml:"local"`
	Remote RemoteAuthorityConfig `yaml:"remote"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type WorkerConfig struct {
	Count int `yaml:"count"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payment    PaymentConfig    `yaml:"payment"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Worker     WorkerConfig     `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Payment.Remote.Environment == "" {
		cfg.Payment.Remote.Environment = "sandbox"
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 8
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.Local.SharedSecret == "" {
		return nil, errors.New("payment.local.shared_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
