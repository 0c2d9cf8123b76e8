package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadTestConfig loads integration test settings from TEST_-prefixed variables.
// If TEST_DB_HOST is unset an empty Config is returned so tests can use a fallback DSN.
func LoadTestConfig() (*Config, error) {
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()

	cfg := &Config{}
	if os.Getenv("TEST_DB_HOST") == "" {
		return cfg, nil
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "TEST_"}); err != nil {
		return nil, fmt.Errorf("failed to parse test environment: %w", err)
	}

	return cfg, nil
}
