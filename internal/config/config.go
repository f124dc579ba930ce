package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	DatabaseURL   string
	NatsURL       string
	NatsToken     string
	LogLevel      string
	OpenAIAPIKey  string
	Model         string
	EmbedModel    string
	Concurrency   int
	ChunkSize     int
	ChunkOverlap  int
	LLMTimeout    time.Duration
}

// Load reads configuration from the environment, honoring a local .env
// file when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:         envInt("PRISM_PORT", 8800),
		DatabaseURL:  envStr("DATABASE_URL", ""),
		NatsURL:      envStr("NATS_URL", ""),
		NatsToken:    envStr("NATS_TOKEN", ""),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		OpenAIAPIKey: envStr("OPENAI_API_KEY", ""),
		Model:        envStr("PRISM_MODEL", "gpt-3.5-turbo"),
		EmbedModel:   envStr("PRISM_EMBED_MODEL", "text-embedding-3-small"),
		Concurrency:  envInt("PRISM_CONCURRENCY", 4),
		ChunkSize:    envInt("PRISM_CHUNK_SIZE", 1000),
		ChunkOverlap: envInt("PRISM_CHUNK_OVERLAP", 200),
		LLMTimeout:   envDur("PRISM_LLM_TIMEOUT", 120*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
