// Package config loads service settings from defaults, an optional .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks variables that map onto config paths, e.g.
// KGQA_LLM_API_KEY -> llm.api_key.
const EnvPrefix = "KGQA_"

type Config struct {
	LLM    LLMConfig    `koanf:"llm"`
	Graph  GraphConfig  `koanf:"graph"`
	Redis  RedisConfig  `koanf:"redis"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	QA     QAConfig     `koanf:"qa"`
}

type LLMConfig struct {
	Provider       string        `koanf:"provider"        validate:"oneof=groq openai ollama"`
	Model          string        `koanf:"model"           validate:"required"`
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"        validate:"omitempty,url"`
	Temperature    float64       `koanf:"temperature"     validate:"gte=0,lte=2"`
	MaxTokens      int           `koanf:"max_tokens"      validate:"gte=0"`
	Timeout        time.Duration `koanf:"timeout"         validate:"gte=0"`
	MaxRetries     int           `koanf:"max_retries"     validate:"gte=0,lte=10"`
	EmbeddingModel string        `koanf:"embedding_model"`
	EmbeddingURL   string        `koanf:"embedding_url"   validate:"omitempty,url"`
}

type GraphConfig struct {
	Backend       string `koanf:"backend"        validate:"oneof=neo4j postgres"`
	Neo4jURI      string `koanf:"neo4j_uri"`
	Neo4jUser     string `koanf:"neo4j_user"`
	Neo4jPassword string `koanf:"neo4j_password"`
	Neo4jDatabase string `koanf:"neo4j_database"`
	DatabaseURL   string `koanf:"database_url"`
	// Embeddings enables the vector strategy of the Postgres backend.
	Embeddings bool `koanf:"embeddings"`
}

type RedisConfig struct {
	// Addr accepts host:port or a redis:// URL, so REDIS_URL can be used as is.
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"       validate:"gte=0"`
	TTL      time.Duration `koanf:"ttl"      validate:"gte=0"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"min=1,max=65535"`
	RequestTimeout  time.Duration `koanf:"request_timeout"  validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level     string `koanf:"level"      validate:"oneof=debug info warn error disabled"`
	JSON      bool   `koanf:"json"`
	AddSource bool   `koanf:"add_source"`
}

type QAConfig struct {
	MaxResults int `koanf:"max_results" validate:"min=1"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "meta-llama/llama-4-scout-17b-16e-instruct",
			Temperature: 0,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Graph: GraphConfig{
			Backend:   "neo4j",
			Neo4jURI:  "bolt://localhost:7687",
			Neo4jUser: "neo4j",
		},
		Redis: RedisConfig{
			TTL: 10 * time.Minute,
		},
		Server: ServerConfig{
			Port:            8080,
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		QA: QAConfig{
			MaxResults: 100,
		},
	}
}

// legacyEnv maps the variable names used by existing deployments.
var legacyEnv = map[string]string{
	"GROQ_API_KEY":    "llm.api_key",
	"GROQ_MODEL_NAME": "llm.model",
	"NEO4J_URI":       "graph.neo4j_uri",
	"NEO4J_USER":      "graph.neo4j_user",
	"NEO4J_PASSWORD":  "graph.neo4j_password",
	"DATABASE_URL":    "graph.database_url",
	"REDIS_URL":       "redis.addr",
	"REDIS_PASSWORD":  "redis.password",
	"REDIS_DB":        "redis.db",
	"PORT":            "server.port",
}

// Load reads .env files (missing files are ignored), then applies defaults,
// legacy variables and KGQA_ variables in increasing precedence.
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotenv(envFiles...); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	legacy := env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return legacyEnv[key], value
		},
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	prefixed := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: func(key, value string) (string, any) { return transformEnvKey(key), value },
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read %s: %w", f, err)
		}
	}
	return nil
}

// transformEnvKey turns KGQA_LLM_API_KEY into llm.api_key. The first segment
// names the section and the rest is the field.
func transformEnvKey(key string) string {
	parts := strings.FieldsFunc(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), func(r rune) bool {
		return r == '_'
	})
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	var errs []error
	switch c.Graph.Backend {
	case "neo4j":
		if c.Graph.Neo4jURI == "" {
			errs = append(errs, errors.New("graph.neo4j_uri is required for the neo4j backend"))
		}
	case "postgres":
		if c.Graph.DatabaseURL == "" {
			errs = append(errs, errors.New("graph.database_url is required for the postgres backend"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateLLM reports settings needed only by commands that call the model.
func (c *Config) ValidateLLM() error {
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("configuration validation failed: llm.api_key is required for provider %q", c.LLM.Provider)
	}
	return nil
}
