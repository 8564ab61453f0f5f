package config

import (
	"fmt"
	"os"
	"strconv"

	"llmap/internal/logger"
)

type Config struct {
	// Geocoding Configuration
	GoogleMapsAPIKey   string
	NominatimBaseURL   string
	NominatimUserAgent string
	GeocodeCacheDB     string // DuckDB file path; empty keeps the cache in memory

	// OpenAI Configuration (query enhancement)
	OpenAIAPIKey string
	OpenAIModel  string

	// OCR Engine Configuration
	TesseractLanguages string
	DocAIProjectID     string
	DocAILocation      string
	DocAIProcessorID   string

	// Processing Configuration
	BatchWorkers int
	MaxBatchSize int

	// HTTP Server Configuration
	ServerAddr string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	workers, err := getEnvInt("BATCH_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	maxBatch, err := getEnvInt("MAX_BATCH_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config := &Config{
		GoogleMapsAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
		NominatimBaseURL:   getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: getEnv("NOMINATIM_USER_AGENT", "llmap/1.0"),
		GeocodeCacheDB:     getEnv("GEOCODE_CACHE_DB", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		TesseractLanguages: getEnv("TESSERACT_LANGUAGES", "eng"),
		DocAIProjectID:     getEnv("DOCAI_PROJECT_ID", ""),
		DocAILocation:      getEnv("DOCAI_LOCATION", "us"),
		DocAIProcessorID:   getEnv("DOCAI_PROCESSOR_ID", ""),
		BatchWorkers:       workers,
		MaxBatchSize:       maxBatch,
		ServerAddr:         getEnv("SERVER_ADDR", ":8000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:      getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:          getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1")
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("MAX_BATCH_SIZE cannot be negative")
	}
	if c.NominatimBaseURL == "" {
		return fmt.Errorf("NOMINATIM_BASE_URL cannot be empty")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
