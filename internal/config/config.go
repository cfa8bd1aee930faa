package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Embedding EmbeddingConfig
	Rerank    RerankConfig
	Indexing  IndexingConfig
	Search    SearchConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type EmbeddingConfig struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration // model registry re-read period
}

type RerankConfig struct {
	Provider       string // "openai", "anthropic", or "" to disable
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	TopK           int
}

type IndexingConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	PollTimeout    time.Duration
	LockTTL        time.Duration
	SchedulerTick  time.Duration
	SweepBatchSize int
	Concurrency    int
}

type SearchConfig struct {
	CandidateLimit int
	DefaultLimit   int
	CacheTTL       time.Duration
}

// Load reads configuration from the environment, layering a local .env
// file underneath when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	chunkSize, err := getEnvInt("INDEX_CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid INDEX_CHUNK_SIZE: %w", err)
	}
	chunkOverlap, err := getEnvInt("INDEX_CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid INDEX_CHUNK_OVERLAP: %w", err)
	}
	sweepBatch, err := getEnvInt("MIGRATION_SWEEP_BATCH", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATION_SWEEP_BATCH: %w", err)
	}
	concurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}
	candidateLimit, err := getEnvInt("SEARCH_CANDIDATE_LIMIT", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_CANDIDATE_LIMIT: %w", err)
	}
	defaultLimit, err := getEnvInt("SEARCH_DEFAULT_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_DEFAULT_LIMIT: %w", err)
	}
	rerankTopK, err := getEnvInt("RERANK_TOP_K", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RERANK_TOP_K: %w", err)
	}

	pollTimeout, err := getEnvDuration("INDEX_POLL_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid INDEX_POLL_TIMEOUT: %w", err)
	}
	lockTTL, err := getEnvDuration("INDEX_LOCK_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid INDEX_LOCK_TTL: %w", err)
	}
	schedulerTick, err := getEnvDuration("SCHEDULER_TICK", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TICK: %w", err)
	}
	embedTimeout, err := getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_TIMEOUT: %w", err)
	}
	registryRefresh, err := getEnvDuration("MODEL_REFRESH_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_REFRESH_INTERVAL: %w", err)
	}
	cacheTTL, err := getEnvDuration("SEARCH_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Embedding: EmbeddingConfig{
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("EMBEDDING_OPENAI_BASE_URL", ""),
			RequestTimeout:  embedTimeout,
			RefreshInterval: registryRefresh,
		},
		Rerank: RerankConfig{
			Provider:       getEnv("RERANK_PROVIDER", ""),
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:    getEnv("RERANK_OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel: getEnv("RERANK_ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			TopK:           rerankTopK,
		},
		Indexing: IndexingConfig{
			ChunkSize:      chunkSize,
			ChunkOverlap:   chunkOverlap,
			PollTimeout:    pollTimeout,
			LockTTL:        lockTTL,
			SchedulerTick:  schedulerTick,
			SweepBatchSize: sweepBatch,
			Concurrency:    concurrency,
		},
		Search: SearchConfig{
			CandidateLimit: candidateLimit,
			DefaultLimit:   defaultLimit,
			CacheTTL:       cacheTTL,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Embedding.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
