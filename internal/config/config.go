// Package config содержит логику чтения конфигурации процесса обработки оценок.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации процесса.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	GatewayAddress string        `env:"GATEWAY_ADDRESS"`
	WorkerID       string        `env:"WORKER_ID"`
	LockDuration   time.Duration `env:"LOCK_DURATION"`
	PollInterval   time.Duration `env:"POLL_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.GatewayAddress
	envWorkerID := cfg.WorkerID
	envLockDuration := cfg.LockDuration
	envPollInterval := cfg.PollInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8090", "address and port for the ops HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "job gateway address")
	flag.StringVar(&cfg.WorkerID, "w", "assessment-worker", "worker identifier reported to the gateway")
	flag.DurationVar(&cfg.LockDuration, "l", 60*time.Second, "job lock duration")
	flag.DurationVar(&cfg.PollInterval, "p", 1*time.Second, "pause between empty job fetches")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}
	if envWorkerID != "" {
		cfg.WorkerID = envWorkerID
	}
	if envLockDuration != 0 {
		cfg.LockDuration = envLockDuration
	}
	if envPollInterval != 0 {
		cfg.PollInterval = envPollInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8090"
	}

	return cfg, nil
}
