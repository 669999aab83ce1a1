package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the backend reads from the environment.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Runtime RuntimeConfig
	Bus     BusConfig
	CastURL string
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// StoreConfig describes the durable message log location.
type StoreConfig struct {
	Path string
}

// RuntimeConfig describes how the reconciler reaches the container runtime.
type RuntimeConfig struct {
	PollInterval time.Duration
	DockerBin    string
}

// BusConfig describes realtime fan-out tuning.
type BusConfig struct {
	HistoryLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseDurationEnv("POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	historyLimit := 50
	if override, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return nil, err
	} else if override != nil {
		if *override < 1 {
			return nil, fmt.Errorf("HISTORY_LIMIT must be at least 1, got %d", *override)
		}
		historyLimit = *override
	}

	return &Config{
		Server: server,
		Store: StoreConfig{
			Path: getEnvOrDefault("MESSAGE_DB_PATH", "data/messages.db"),
		},
		Runtime: RuntimeConfig{
			PollInterval: pollInterval,
			DockerBin:    getEnvOrDefault("DOCKER_BIN", "docker"),
		},
		Bus: BusConfig{
			HistoryLimit: historyLimit,
		},
		CastURL: getEnvOrDefault("CAST_SERVER_URL", "http://localhost:3000"),
	}, nil
}

// loadServerConfig parses the listen address.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Accept bare seconds for parity with the deployment manifests.
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 1 {
			return 0, fmt.Errorf("invalid %s value %q: must be at least 1 second", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < time.Second {
		return 0, fmt.Errorf("invalid %s value %q: must be at least 1 second", key, raw)
	}
	return val, nil
}
