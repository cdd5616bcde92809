package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	DB       DatabaseConfig
	Logging  LoggingConfig
	Geocoder GeocoderConfig
	Matcher  MatcherConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second across all clients
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type GeocoderConfig struct {
	URL         string
	UserAgent   string
	Timeout     time.Duration
	MinInterval time.Duration
	Retries     int
	Fallback    bool
}

type MatcherConfig struct {
	CatalogPath string // empty uses the built-in catalog
	RadiusKm    float64
	Limit       int
}

type PipelineConfig struct {
	MaxHops int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8000),
			RateLimit: getEnvInt("API_RATE_LIMIT", 20),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/relief.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Geocoder: GeocoderConfig{
			URL:         getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			UserAgent:   getEnv("GEOCODER_USER_AGENT", "relief-pipeline/1.0"),
			Timeout:     getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
			MinInterval: getEnvDuration("GEOCODER_MIN_INTERVAL", time.Second),
			Retries:     getEnvInt("GEOCODER_RETRIES", 2),
			Fallback:    getEnvBool("GEOCODER_FALLBACK", true),
		},
		Matcher: MatcherConfig{
			CatalogPath: getEnv("CATALOG_PATH", ""),
			RadiusKm:    getEnvFloat("MATCH_RADIUS_KM", 50),
			Limit:       getEnvInt("MATCH_LIMIT", 5),
		},
		Pipeline: PipelineConfig{
			MaxHops: getEnvInt("PIPELINE_MAX_HOPS", 8),
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
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("API rate limit must be at least 1, got %d", c.Server.RateLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size must not be negative, got %d", c.Worker.BufferSize)
	}

	if c.Geocoder.Retries < 0 {
		return fmt.Errorf("geocoder retries must not be negative, got %d", c.Geocoder.Retries)
	}
	if c.Geocoder.Timeout <= 0 {
		return fmt.Errorf("geocoder timeout must be positive")
	}

	if c.Matcher.RadiusKm <= 0 {
		return fmt.Errorf("match radius must be positive, got %g", c.Matcher.RadiusKm)
	}
	if c.Matcher.Limit < 1 {
		return fmt.Errorf("match limit must be at least 1, got %d", c.Matcher.Limit)
	}

	if c.Pipeline.MaxHops < 4 {
		return fmt.Errorf("pipeline max hops must be at least 4 to complete a traversal, got %d", c.Pipeline.MaxHops)
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

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
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
