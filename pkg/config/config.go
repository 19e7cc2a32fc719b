package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NathanLabbe/local-rag/pkg/processor"
)

const DefaultSystemPrompt = "You are a helpful assistant that answers questions using the user's documents."

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Processor ProcessorConfig `yaml:"processor"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Drive     DriveConfig     `yaml:"drive"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// explicit records the settings where zero is a meaningful value, so a 0
// written in the file is not mistaken for an unset field.
type explicit struct {
	LLM struct {
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"llm"`
	Processor struct {
		ChunkOverlap *int `yaml:"chunk_overlap"`
	} `yaml:"processor"`
	Scraper struct {
		MaxDepth *int `yaml:"max_depth"`
	} `yaml:"scraper"`
}

type LLMConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
}

type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Concurrency int    `yaml:"concurrency"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"`
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	Path       string `yaml:"path"`
	BatchSize  int    `yaml:"batch_size"`
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

type ScraperConfig struct {
	MaxDepth          int           `yaml:"max_depth"`
	RateLimit         float64       `yaml:"rate_limit"`
	Timeout           time.Duration `yaml:"timeout"`
	IgnorePatterns    []string      `yaml:"ignore_patterns"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
}

type DriveConfig struct {
	CredentialsFile string  `yaml:"credentials_file"`
	TokenFile       string  `yaml:"token_file"`
	PageSize        int     `yaml:"page_size"`
	RateLimit       float64 `yaml:"rate_limit"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/local-rag/config.yaml"),
			"/etc/local-rag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	var set explicit
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config, set)

	return &config, nil
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config, explicit{})
	return config
}

// Default returns a config with every default applied and no environment overrides.
func Default() *Config {
	config := &Config{}
	applyDefaults(config, explicit{})
	return config
}

func applyDefaults(config *Config, set explicit) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if set.LLM.Temperature == nil && config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	// Local inference is slow; anything shorter causes spurious timeouts.
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 4 * time.Minute
	}
	if config.LLM.SystemPrompt == "" {
		config.LLM.SystemPrompt = DefaultSystemPrompt
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text"
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = 768
	}
	if config.Embedding.APIKeyEnv == "" {
		config.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if config.Embedding.Concurrency == 0 {
		config.Embedding.Concurrency = 4
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "bolt"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "document_chunks"
	}
	if config.Store.Path == "" {
		config.Store.Path = "./data/rag.db"
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = processor.DefaultChunkSize
	}
	if set.Processor.ChunkOverlap == nil && config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = processor.DefaultOverlap(config.Processor.ChunkSize)
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}

	if set.Scraper.MaxDepth == nil && config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Drive.PageSize == 0 {
		config.Drive.PageSize = 50
	}
	if config.Drive.RateLimit == 0 {
		config.Drive.RateLimit = 5
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if prompt := os.Getenv("SYSTEM_PROMPT"); prompt != "" {
		config.LLM.SystemPrompt = prompt
	}
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		config.Embedding.Provider = provider
	}
	if u := os.Getenv("TRANSFORMERS_URL"); u != "" {
		config.Embedding.BaseURL = u
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if backend := os.Getenv("VECTOR_STORE"); backend != "" {
		config.Store.Backend = backend
	}
	if f := os.Getenv("GOOGLE_CREDENTIALS_FILE"); f != "" {
		config.Drive.CredentialsFile = f
	}
	if f := os.Getenv("GOOGLE_TOKEN_FILE"); f != "" {
		config.Drive.TokenFile = f
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}
