// Package config содержит логику чтения конфигурации клиента витрины и
// тестового сервера удалённой стороны.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultAPIURL         = "http://localhost:8000/api"
	defaultStatePath      = "storefront.db"
	defaultRunAddress     = "localhost:8000"
	defaultRateLimit      = 10
	defaultRequestTimeout = 5 * time.Second
	defaultLogLevel       = "warn"
)

// Config содержит параметры конфигурации.
type Config struct {
	APIURL         string        `env:"API_URL"`
	StatePath      string        `env:"STATE_PATH"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	RunAddress     string        `env:"RUN_ADDRESS"`
	RateLimit      float64       `env:"API_RATE_LIMIT"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	TokenSecret    string        `env:"TOKEN_SECRET"`
	LogLevel       string        `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.APIURL, "u", defaultAPIURL, "remote API base URL")
	flag.StringVar(&cfg.StatePath, "s", defaultStatePath, "path to local SQLite state")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL URI for local state")
	flag.StringVar(&cfg.RedisAddr, "r", "", "Redis address for local state")
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for the stub API server")
	flag.Float64Var(&cfg.RateLimit, "l", defaultRateLimit, "max requests per second to the remote API")
	flag.DurationVar(&cfg.RequestTimeout, "t", defaultRequestTimeout, "remote request timeout")
	flag.StringVar(&cfg.TokenSecret, "k", "", "token signing secret of the stub API server")
	flag.StringVar(&cfg.LogLevel, "v", defaultLogLevel, "log level")

	flag.Parse()

	if fromEnv.APIURL != "" {
		cfg.APIURL = fromEnv.APIURL
	}
	if fromEnv.StatePath != "" {
		cfg.StatePath = fromEnv.StatePath
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.RedisAddr != "" {
		cfg.RedisAddr = fromEnv.RedisAddr
	}
	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.RateLimit != 0 {
		cfg.RateLimit = fromEnv.RateLimit
	}
	if fromEnv.RequestTimeout != 0 {
		cfg.RequestTimeout = fromEnv.RequestTimeout
	}
	if fromEnv.TokenSecret != "" {
		cfg.TokenSecret = fromEnv.TokenSecret
	}
	if fromEnv.LogLevel != "" {
		cfg.LogLevel = fromEnv.LogLevel
	}

	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	return cfg, nil
}

// Args возвращает позиционные аргументы, оставшиеся после флагов.
func Args() []string {
	return flag.Args()
}
