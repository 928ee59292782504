package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-derived setting for the memory service.
// All fields have defaults; only DatabaseURL is required.
type Config struct {
	Port        int
	DatabaseURL string
	RedisURL    string

	EmbeddingModel string
	EmbeddingDim   int
	OllamaBaseURL  string

	DefaultCacheTTL time.Duration
	LongCacheTTL    time.Duration

	MaxContentSize       int
	MaxTags              int
	MaxTagLength          int
	MaxUserContextLength int

	DefaultSearchLimit          int
	DefaultSimilarityThreshold float64

	EnableAsyncProcessing bool
	EnableClustering      bool
	EmbeddingWorkers      int
	BatchWorkers          int
	ConsolidationWorkers  int
	ClusteringWorkers     int
	DecayWorkers          int

	BaseDecayRate       float64
	AccessBoost         float64
	ArchivalThreshold   float64
	ExpirationThreshold float64
	PreservationTags    []string
	RelationshipBoost   float64
	RetentionDays       int

	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        envInt("PORT", 8741),
		DatabaseURL: envStr("DATABASE_URL", ""),
		RedisURL:    envStr("REDIS_URL", ""),

		EmbeddingModel: envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:   envInt("EMBEDDING_DIMENSION", 768),
		OllamaBaseURL:  envStr("OLLAMA_BASE_URL", "http://localhost:11434"),

		DefaultCacheTTL: envDuration("DEFAULT_CACHE_TTL", 3600*time.Second),
		LongCacheTTL:    envDuration("LONG_CACHE_TTL", 86400*time.Second),

		MaxContentSize:       envInt("MAX_CONTENT_SIZE", 1<<20),
		MaxTags:              envInt("MAX_TAGS", 20),
		MaxTagLength:         envInt("MAX_TAG_LENGTH", 50),
		MaxUserContextLength: envInt("MAX_USER_CONTEXT_LENGTH", 100),

		DefaultSearchLimit:         envInt("DEFAULT_SEARCH_LIMIT", 10),
		DefaultSimilarityThreshold: envFloat("DEFAULT_SIMILARITY_THRESHOLD", 0.7),

		EnableAsyncProcessing: envBool("ENABLE_ASYNC_PROCESSING", true),
		EnableClustering:      envBool("ENABLE_CLUSTERING", true),
		EmbeddingWorkers:      envInt("EMBEDDING_WORKERS", 3),
		BatchWorkers:          envInt("BATCH_WORKERS", 2),
		ConsolidationWorkers:  envInt("CONSOLIDATION_WORKERS", 1),
		ClusteringWorkers:     envInt("CLUSTERING_WORKERS", 1),
		DecayWorkers:          envInt("DECAY_WORKERS", 2),

		BaseDecayRate:       envFloat("BASE_DECAY_RATE", 0.01),
		AccessBoost:         envFloat("ACCESS_BOOST", 0.1),
		ArchivalThreshold:   envFloat("ARCHIVAL_THRESHOLD", 0.1),
		ExpirationThreshold: envFloat("EXPIRATION_THRESHOLD", 0.01),
		PreservationTags:    envList("PRESERVATION_TAGS", []string{"permanent", "important", "bookmark", "favorite", "pinned", "preserved"}),
		RelationshipBoost:   envFloat("RELATIONSHIP_BOOST", 0.05),
		RetentionDays:       envInt("RETENTION_DAYS", 30),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDim)
	}
	if c.MaxContentSize < 1 {
		return fmt.Errorf("MAX_CONTENT_SIZE must be positive")
	}
	if c.MaxTags < 1 {
		return fmt.Errorf("MAX_TAGS must be positive")
	}
	if c.DefaultSimilarityThreshold < 0 || c.DefaultSimilarityThreshold > 1 {
		return fmt.Errorf("DEFAULT_SIMILARITY_THRESHOLD must be in [0,1], got %f", c.DefaultSimilarityThreshold)
	}
	if c.BaseDecayRate < 0 {
		return fmt.Errorf("BASE_DECAY_RATE must be non-negative")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
