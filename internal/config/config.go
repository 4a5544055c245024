package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	ModelPath        string
	MetadataPath     string
	ORTLibraryPath   string
	BrandFactorsPath string
	RedisAddr        string
	DamageCacheTTL   time.Duration
	MaxUploadBytes   int64
	ShutdownTimeout  time.Duration
	LogLevel         string
	GinMode          string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		ModelPath:        getEnv("MODEL_PATH", "models/damaged_car_classifier.onnx"),
		MetadataPath:     getEnv("MODEL_METADATA_PATH", "models/model_metadata.json"),
		ORTLibraryPath:   os.Getenv("ORT_LIBRARY_PATH"),
		BrandFactorsPath: os.Getenv("BRAND_FACTORS_PATH"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		GinMode:          getEnv("GIN_MODE", "release"),
	}

	var err error
	if cfg.DamageCacheTTL, err = durationEnv("DAMAGE_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = int64Env("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("PORT must be a TCP port, got %q", cfg.Port)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}
	if cfg.DamageCacheTTL <= 0 {
		return nil, fmt.Errorf("DAMAGE_CACHE_TTL must be positive, got %s", cfg.DamageCacheTTL)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
