// Package config loads the server configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer   `yaml:"http_server"`
	Postgres     `yaml:"postgres"`
	Redis        `yaml:"redis"`
	JWT          `yaml:"jwt"`
	Verification `yaml:"verification"`
	SMTP         `yaml:"smtp"`
	Google       `yaml:"google"`
}

type HTTPServer struct {
	Address           string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
	TrustForwardedFor bool          `yaml:"trust_forwarded_for" env:"HTTP_TRUST_FORWARDED_FOR"`
}

type Postgres struct {
	DSN     string `yaml:"dsn" env:"POSTGRES_DSN" env-required:"true"`
	Migrate bool   `yaml:"migrate" env:"POSTGRES_MIGRATE" env-default:"true"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"ac"`
}

type JWT struct {
	AccessSecret  string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-default:"168h"`
	Issuer        string        `yaml:"issuer" env:"JWT_ISSUER"`
}

type Verification struct {
	EmailTTL time.Duration `yaml:"email_ttl" env-default:"15m"`
	ResetTTL time.Duration `yaml:"reset_ttl" env-default:"15m"`
}

// SMTP is optional. With an empty host, mail is written to the log.
type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
	AppName  string `yaml:"app_name" env:"APP_NAME" env-default:"authcore"`
}

// Google is optional. With an empty client id, federated login is
// disabled.
type Google struct {
	ClientID string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
}

// ResolvePath returns flagValue, falling back to CONFIG_PATH.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

// Load reads path and applies environment overrides. An empty path reads
// the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
