package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type StorageConfig struct {
	Dir            string `yaml:"dir"`
	ChunkBackend   string `yaml:"chunk_backend"`   // "json" or "postgres"
	SessionBackend string `yaml:"session_backend"` // "json" or "redis"
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int    `yaml:"max_conns"`
	MinConns       int    `yaml:"min_conns"`
	MigrationsPath string `yaml:"migrations_path"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type EmbeddingConfig struct {
	Provider string        `yaml:"provider"` // "huggingface", "openai" or "ollama"
	HFAPIKey string        `yaml:"hf_api_key"`
	HFURL    string        `yaml:"hf_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	GroqKey          string        `yaml:"groq_key"`
	GroqBaseURL      string        `yaml:"groq_base_url"`
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicKey     string        `yaml:"anthropic_key"`
	OllamaURL        string        `yaml:"ollama_url"`
	DefaultProvider  string        `yaml:"default_provider"`
	DefaultModel     string        `yaml:"default_model"`
	FallbackProvider string        `yaml:"fallback_provider"`
	MaxRetries       int           `yaml:"max_retries"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RAGConfig holds the retrieval policy constants.
type RAGConfig struct {
	ChunkSize            int     `yaml:"chunk_size"`
	ChunkOverlap         int     `yaml:"chunk_overlap"`
	MinChunkChars        int     `yaml:"min_chunk_chars"`
	MinChunkWords        int     `yaml:"min_chunk_words"`
	TopK                 int     `yaml:"top_k"`
	MinScore             float64 `yaml:"min_score"`
	MaxChunksPerDocument int     `yaml:"max_chunks_per_document"`
	OCRMinChars          int     `yaml:"ocr_min_chars"`
}

type HTTPConfig struct {
	CORSOrigins    []string `yaml:"cors_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	EmbeddingHuggingFace = "huggingface"

	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Defaults returns the configuration used when neither CONFIG_FILE nor the
// environment say otherwise.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     5000,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Dir:            "storage",
			ChunkBackend:   BackendJSON,
			SessionBackend: BackendJSON,
		},
		Database: DatabaseConfig{
			MaxConns:       10,
			MinConns:       1,
			MigrationsPath: "migrations",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "pdfchat:session:",
		},
		Embedding: EmbeddingConfig{
			Provider: EmbeddingHuggingFace,
			HFURL:    "https://api-inference.huggingface.co/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2",
			Timeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			GroqBaseURL:     "https://api.groq.com/openai/v1",
			DefaultProvider: ProviderGroq,
			DefaultModel:    "llama3-8b-8192",
			MaxRetries:      1,
			Temperature:     0.2,
			MaxTokens:       512,
			Timeout:         60 * time.Second,
		},
		RAG: RAGConfig{
			ChunkSize:            180,
			ChunkOverlap:         40,
			MinChunkChars:        40,
			MinChunkWords:        30,
			TopK:                 8,
			MinScore:             0.28,
			MaxChunksPerDocument: 20000,
			OCRMinChars:          40,
		},
		HTTP: HTTPConfig{
			CORSOrigins: []string{
				"https://chatwithpdfai.netlify.app",
				"http://localhost:5500",
				"http://127.0.0.1:5500",
			},
			MaxBodyBytes:   500 << 20,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, and finally the environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	if cfg.Server.Port, err = getEnvInt("PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)

	cfg.Storage.Dir = getEnv("STORAGE_DIR", cfg.Storage.Dir)
	cfg.Storage.ChunkBackend = getEnv("CHUNK_BACKEND", cfg.Storage.ChunkBackend)
	cfg.Storage.SessionBackend = getEnv("SESSION_BACKEND", cfg.Storage.SessionBackend)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if cfg.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", cfg.Database.MinConns); err != nil {
		return fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", cfg.Redis.KeyPrefix)

	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.HFAPIKey = getEnv("HF_API_KEY", cfg.Embedding.HFAPIKey)
	cfg.Embedding.HFURL = getEnv("HF_EMBED_URL", cfg.Embedding.HFURL)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	if cfg.Embedding.Timeout, err = getEnvDuration("EMBEDDING_TIMEOUT", cfg.Embedding.Timeout); err != nil {
		return fmt.Errorf("invalid EMBEDDING_TIMEOUT: %w", err)
	}

	cfg.LLM.GroqKey = getEnv("GROQ_API_KEY", cfg.LLM.GroqKey)
	cfg.LLM.GroqBaseURL = getEnv("GROQ_BASE_URL", cfg.LLM.GroqBaseURL)
	cfg.LLM.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.LLM.OpenAIKey)
	cfg.LLM.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.AnthropicKey = getEnv("ANTHROPIC_API_KEY", cfg.LLM.AnthropicKey)
	cfg.LLM.OllamaURL = getEnv("OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.DefaultProvider = getEnv("LLM_DEFAULT_PROVIDER", cfg.LLM.DefaultProvider)
	cfg.LLM.DefaultModel = getEnv("LLM_DEFAULT_MODEL", cfg.LLM.DefaultModel)
	cfg.LLM.FallbackProvider = getEnv("LLM_FALLBACK_PROVIDER", cfg.LLM.FallbackProvider)
	if cfg.LLM.MaxRetries, err = getEnvInt("LLM_MAX_RETRIES", cfg.LLM.MaxRetries); err != nil {
		return fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}
	if cfg.LLM.Temperature, err = getEnvFloat("LLM_TEMPERATURE", cfg.LLM.Temperature); err != nil {
		return fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}
	if cfg.LLM.MaxTokens, err = getEnvInt("LLM_MAX_TOKENS", cfg.LLM.MaxTokens); err != nil {
		return fmt.Errorf("invalid LLM_MAX_TOKENS: %w", err)
	}
	if cfg.LLM.Timeout, err = getEnvDuration("LLM_TIMEOUT", cfg.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}

	if cfg.RAG.ChunkSize, err = getEnvInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize); err != nil {
		return fmt.Errorf("invalid RAG_CHUNK_SIZE: %w", err)
	}
	if cfg.RAG.ChunkOverlap, err = getEnvInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap); err != nil {
		return fmt.Errorf("invalid RAG_CHUNK_OVERLAP: %w", err)
	}
	if cfg.RAG.MinChunkChars, err = getEnvInt("RAG_MIN_CHUNK_CHARS", cfg.RAG.MinChunkChars); err != nil {
		return fmt.Errorf("invalid RAG_MIN_CHUNK_CHARS: %w", err)
	}
	if cfg.RAG.MinChunkWords, err = getEnvInt("RAG_MIN_CHUNK_WORDS", cfg.RAG.MinChunkWords); err != nil {
		return fmt.Errorf("invalid RAG_MIN_CHUNK_WORDS: %w", err)
	}
	if cfg.RAG.TopK, err = getEnvInt("RAG_TOP_K", cfg.RAG.TopK); err != nil {
		return fmt.Errorf("invalid RAG_TOP_K: %w", err)
	}
	if cfg.RAG.MinScore, err = getEnvFloat("RAG_MIN_SCORE", cfg.RAG.MinScore); err != nil {
		return fmt.Errorf("invalid RAG_MIN_SCORE: %w", err)
	}
	if cfg.RAG.MaxChunksPerDocument, err = getEnvInt("RAG_MAX_CHUNKS_PER_DOCUMENT", cfg.RAG.MaxChunksPerDocument); err != nil {
		return fmt.Errorf("invalid RAG_MAX_CHUNKS_PER_DOCUMENT: %w", err)
	}
	if cfg.RAG.OCRMinChars, err = getEnvInt("OCR_MIN_CHARS", cfg.RAG.OCRMinChars); err != nil {
		return fmt.Errorf("invalid OCR_MIN_CHARS: %w", err)
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	maxBody, err := getEnvInt("MAX_BODY_BYTES", int(cfg.HTTP.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("invalid MAX_BODY_BYTES: %w", err)
	}
	cfg.HTTP.MaxBodyBytes = int64(maxBody)
	if cfg.HTTP.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", cfg.HTTP.RateLimitRPS); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if cfg.HTTP.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", cfg.HTTP.RateLimitBurst); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) DocumentsFile() string {
	return filepath.Join(c.Storage.Dir, "documents.json")
}

func (c *Config) SessionsFile() string {
	return filepath.Join(c.Storage.Dir, "chat_history.json")
}

// CredentialEnv names the environment variable holding the key of the
// default generation provider.
func (c *Config) CredentialEnv() string {
	switch c.LLM.DefaultProvider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOllama:
		return "OLLAMA_URL"
	default:
		return "GROQ_API_KEY"
	}
}

func (c *Config) Validate() error {
	var problems []string

	if c.RAG.ChunkSize <= 0 {
		problems = append(problems, "RAG_CHUNK_SIZE must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		problems = append(problems, "RAG_CHUNK_OVERLAP must be in [0, RAG_CHUNK_SIZE)")
	}
	if c.RAG.MinChunkChars < 0 {
		problems = append(problems, "RAG_MIN_CHUNK_CHARS must not be negative")
	}
	if c.RAG.MinChunkWords < 0 {
		problems = append(problems, "RAG_MIN_CHUNK_WORDS must not be negative")
	}
	if c.RAG.OCRMinChars < 0 {
		problems = append(problems, "OCR_MIN_CHARS must not be negative")
	}
	if c.RAG.TopK <= 0 {
		problems = append(problems, "RAG_TOP_K must be positive")
	}
	if c.RAG.MinScore < -1 || c.RAG.MinScore > 1 {
		problems = append(problems, "RAG_MIN_SCORE must be within [-1, 1]")
	}
	if c.RAG.MaxChunksPerDocument <= 0 {
		problems = append(problems, "RAG_MAX_CHUNKS_PER_DOCUMENT must be positive")
	}

	switch c.Storage.ChunkBackend {
	case BackendJSON:
	case BackendPostgres:
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required when CHUNK_BACKEND=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown CHUNK_BACKEND %q", c.Storage.ChunkBackend))
	}

	switch c.Storage.SessionBackend {
	case BackendJSON, BackendRedis:
	default:
		problems = append(problems, fmt.Sprintf("unknown SESSION_BACKEND %q", c.Storage.SessionBackend))
	}

	switch c.Embedding.Provider {
	case EmbeddingHuggingFace, ProviderOpenAI, ProviderOllama:
	default:
		problems = append(problems, fmt.Sprintf("unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider))
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
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

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
