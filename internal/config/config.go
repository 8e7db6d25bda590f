package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	DataDir string

	StorageBackend string // "sqlite" or "bolt"

	GroqAPIKey  string
	GroqChatURL string
	GroqTimeout time.Duration
}

func Load() (*Config, error) {
	// .env is optional — env vars may already be set (e.g. in production)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           os.Getenv("PORT"),
		DataDir:        os.Getenv("DATA_DIR"),
		StorageBackend: os.Getenv("STORAGE_BACKEND"),
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqChatURL:    os.Getenv("GROQ_CHAT_COMPLETIONS_URL"),
		GroqTimeout:    time.Duration(intEnvOrDefault("GROQ_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "sqlite"
	}
	if cfg.GroqChatURL == "" {
		cfg.GroqChatURL = "https://api.groq.com/openai/v1/chat/completions"
	}

	if cfg.GroqAPIKey == "" {
		return nil, fmt.Errorf("required env var GROQ_API_KEY is not set")
	}

	switch cfg.StorageBackend {
	case "sqlite", "bolt":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q (want sqlite or bolt)", cfg.StorageBackend)
	}

	return cfg, nil
}

func intEnvOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
