package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Backend      BackendConfig
	Gateway      GatewayConfig
	Connectivity ConnectivityConfig
	Queue        QueueConfig
	Recording    RecordingConfig
	Geocoder     GeocoderConfig
	Worker       WorkerConfig
	Logging      LoggingConfig
}

// ServerConfig is the relay's local intake API, the one the device form
// posts to.
type ServerConfig struct {
	Host string
	Port int
}

// BackendConfig is the dispatch backend binary's own listener and storage.
type BackendConfig struct {
	Host   string
	Port   int
	DBPath string
}

type GatewayConfig struct {
	BaseURL     string
	SendTimeout time.Duration
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration
}

type QueueConfig struct {
	Path string
}

type RecordingConfig struct {
	Dir string
}

type GeocoderConfig struct {
	URL       string
	CachePath string
	Timeout   time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Backend: BackendConfig{
			Host:   getEnv("BACKEND_HOST", "localhost"),
			Port:   getEnvInt("BACKEND_PORT", 5000),
			DBPath: getEnv("BACKEND_DB_PATH", "./data/emergency-calls.db"),
		},
		Gateway: GatewayConfig{
			BaseURL:     getEnv("GATEWAY_URL", "http://localhost:5000"),
			SendTimeout: getEnvDuration("GATEWAY_SEND_TIMEOUT", 10*time.Second),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 15*time.Second),
		},
		Queue: QueueConfig{
			Path: getEnv("QUEUE_PATH", "./data/offline-queue.db"),
		},
		Recording: RecordingConfig{
			Dir: getEnv("RECORDING_DIR", "./data/recordings"),
		},
		Geocoder: GeocoderConfig{
			URL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org/reverse"),
			CachePath: getEnv("GEOCODER_CACHE_PATH", "./data/location-cache.json"),
			Timeout:   getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		return fmt.Errorf("invalid backend port: %d", c.Backend.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Connectivity.ProbeInterval < time.Second {
		return fmt.Errorf("connectivity probe interval must be at least 1 second")
	}
	if c.Gateway.SendTimeout < time.Second {
		return fmt.Errorf("gateway send timeout must be at least 1 second")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
