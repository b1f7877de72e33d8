package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tieubaoca/knowledge-be/types"
)

type Config struct {
	Port           string        `mapstructure:"port"`
	UploadDir      string        `mapstructure:"upload_dir"`
	MaxUploadSize  int64         `mapstructure:"max_upload_size"`
	AllowedOrigin  string        `mapstructure:"allowed_origin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TopK           int           `mapstructure:"top_k"`

	Log         LogConfig           `mapstructure:"log"`
	Chunker     types.ChunkerConfig `mapstructure:"chunker"`
	Provider    string              `mapstructure:"provider"`
	Gemini      GeminiConfig        `mapstructure:"gemini"`
	OpenAI      OpenAIConfig        `mapstructure:"openai"`
	Embedding   EmbeddingConfig     `mapstructure:"embedding"`
	VectorStore VectorStoreConfig   `mapstructure:"vector_store"`
	Registry    RegistryConfig      `mapstructure:"registry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GeminiConfig struct {
	APIKeys        []string `mapstructure:"api_keys"`
	Model          string   `mapstructure:"model"`
	EmbeddingModel string   `mapstructure:"embedding_model"`
}

type OpenAIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type EmbeddingConfig struct {
	BatchSize   int `mapstructure:"batch_size"`
	Concurrency int `mapstructure:"concurrency"`
}

type VectorStoreConfig struct {
	Backend    string         `mapstructure:"backend"`
	Collection string         `mapstructure:"collection"`
	Weaviate   WeaviateConfig `mapstructure:"weaviate"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

type WeaviateConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type RegistryConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("max_upload_size", 10<<20)
	v.SetDefault("allowed_origin", "http://localhost:3000")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("top_k", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("chunker.chunk_size", 1000)
	v.SetDefault("chunker.chunk_overlap", 200)

	v.SetDefault("provider", "gemini")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.embedding_model", "text-embedding-004")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")

	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.concurrency", 4)

	v.SetDefault("vector_store.backend", "weaviate")
	v.SetDefault("vector_store.collection", "CompanyKnowledge")
	v.SetDefault("vector_store.weaviate.host", "http://localhost:8080")
	v.SetDefault("vector_store.postgres.table", "company_knowledge")

	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.redis.addr", "localhost:6379")
	v.SetDefault("registry.redis.key", "knowledge:uploaded_files")
}

// LoadConfig reads the yaml file at configPath, if any, and applies
// environment overrides. VECTOR_STORE_BACKEND overrides vector_store.backend.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set up Viper to read from environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets keep their conventional names
	v.BindEnv("gemini.api_keys", "GEMINI_API_KEY")
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("vector_store.weaviate.api_key", "WEAVIATE_APIKEY")
	v.BindEnv("vector_store.postgres.dsn", "DATABASE_URL")
	v.BindEnv("registry.redis.password", "REDIS_PASSWORD")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Gemini.APIKeys = splitKeys(config.Gemini.APIKeys)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// splitKeys accepts both a yaml list and a comma separated env value.
func splitKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	switch c.VectorStore.Backend {
	case "weaviate", "pgvector", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown vector store backend %q", c.VectorStore.Backend))
	}
	switch c.Registry.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown registry backend %q", c.Registry.Backend))
	}
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("top_k must be at least 1, got %d", c.TopK))
	}
	if c.Chunker.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize))
	}
	if c.MaxUploadSize < 1 {
		errs = append(errs, fmt.Errorf("max_upload_size must be positive, got %d", c.MaxUploadSize))
	}
	return errors.Join(errs...)
}
