// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	// Service
	ServiceName string
	ListenAddr  string
	Port        int
	MetricsPort int
	Workers     int

	// Redis event sink; disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventStream   string
}

func Load() *Config {
	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "skoll"),
		ListenAddr:  getEnv("LISTEN_ADDR", "0.0.0.0"),
		Port:        getEnvInt("PORT", 9001),
		MetricsPort: getEnvInt("METRICS_PORT", 9090),
		Workers:     getEnvInt("WORKERS", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		EventStream:   getEnv("EVENT_STREAM", "skoll:events"),
	}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics port collide: %d", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
