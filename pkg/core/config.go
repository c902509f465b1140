// Package core provides the Mnemo query coordinator and memory data model.
package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the complete configuration for a coordinator instance: storage
// backend, embedding provider, optional content cipher, and the lifecycle
// sweep settings (see LifecycleConfig).
type Config struct {
	Storage   StorageConfig    `json:"storage"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Cipher    *CipherConfig    `json:"cipher,omitempty"`
	Lifecycle LifecycleConfig  `json:"lifecycle"`
	Auth      AuthConfig       `json:"auth"`
	Summarizer *SummarizerConfig `json:"summarizer,omitempty"`

	// IndexDir, when non-empty, is the directory Engine persists its
	// in-memory vector and full-text indices to on Close and reloads them
	// from on NewEngine (spec.md §5 graceful shutdown).
	IndexDir string `json:"index_dir,omitempty"`
}

// StorageConfig selects and configures the storage backend.
//
// Supported providers: sqlite, postgres, oceanbase (the latter used as the
// archive/cold tier rather than primary storage).
type StorageConfig struct {
	Provider string                 `json:"provider"`
	Config   map[string]interface{} `json:"config"`
}

// EmbeddingConfig selects and configures the embedding provider.
//
// Supported providers: noop, openai.
type EmbeddingConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key,omitempty"`
	Model      string `json:"model,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// CipherConfig enables content-at-rest encryption.
type CipherConfig struct {
	Enabled bool   `json:"enabled"`
	KeyHex  string `json:"key_hex,omitempty"`
}

// SummarizerConfig selects and configures the optional LLM-backed
// consolidation summarizer.
//
// Supported providers: openai, anthropic, deepseek, ollama, qwen.
type SummarizerConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// LifecycleConfig holds the lifecycle settings (spec.md §4.7). NewEngine
// reads only Enabled and SweepIntervalSeconds, which control the background
// decay/consolidation/TTL sweep. DecayFloor, AccessBoost,
// ConsolidationThreshold, AnomalyThreshold and QuarantineOnAnomaly are not
// read: decay, consolidation and anomaly scoring run with the lifecycle
// package's DefaultDecayConfig, DefaultConsolidationConfig and
// DefaultAnomalyConfig values.
type LifecycleConfig struct {
	Enabled                bool    `json:"enabled"`
	DecayFloor             float64 `json:"decay_floor"`
	AccessBoost            float64 `json:"access_boost"`
	ConsolidationThreshold float64 `json:"consolidation_threshold"`
	AnomalyThreshold       float64 `json:"anomaly_threshold"`
	QuarantineOnAnomaly    bool    `json:"quarantine_on_anomaly"`

	// SweepIntervalSeconds is how often the background decay/consolidation/
	// TTL sweep runs (spec.md §5, §9's "Background lifecycle tasks are
	// spawned by the constructor and stopped by shutdown"). Defaults to 300
	// when Enabled and left at zero.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty"`
}

// AuthConfig tunes authorization resolution (spec.md §4.6).
type AuthConfig struct {
	MaxDelegationDepth int `json:"max_delegation_depth"`
}

// LoadConfigFromEnv loads configuration from environment variables,
// optionally after locating and loading a .env file.
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("STORAGE_PROVIDER", "sqlite")
	storageConfig := make(map[string]interface{})

	switch provider {
	case "oceanbase":
		port, _ := strconv.Atoi(getEnvOrDefault("OCEANBASE_PORT", "2881"))
		storageConfig = map[string]interface{}{
			"host":     getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("OCEANBASE_USER", "root@sys"),
			"password": os.Getenv("OCEANBASE_PASSWORD"),
			"db_name":  getEnvOrDefault("OCEANBASE_DATABASE", "mnemo_archive"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storageConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "mnemo"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	default:
		storageConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./mnemo.db"),
		}
	}

	embeddingProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "noop")
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "256"))

	cfg := &Config{
		Storage: StorageConfig{Provider: provider, Config: storageConfig},
		Embedding: EmbeddingConfig{
			Provider:   embeddingProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		Lifecycle: LifecycleConfig{
			Enabled:                getEnvOrDefault("LIFECYCLE_ENABLED", "true") == "true",
			DecayFloor:             0.05,
			AccessBoost:            0.05,
			ConsolidationThreshold: 0.6,
			AnomalyThreshold:       0.75,
			QuarantineOnAnomaly:    true,
			SweepIntervalSeconds:   300,
		},
		Auth: AuthConfig{
			MaxDelegationDepth: 3,
		},
		IndexDir: os.Getenv("INDEX_DIR"),
	}

	if os.Getenv("CIPHER_ENABLED") == "true" {
		cfg.Cipher = &CipherConfig{Enabled: true, KeyHex: os.Getenv("CIPHER_KEY_HEX")}
	}

	if summarizerProvider := os.Getenv("SUMMARIZER_PROVIDER"); summarizerProvider != "" {
		cfg.Summarizer = &SummarizerConfig{
			Provider: summarizerProvider,
			APIKey:   os.Getenv("SUMMARIZER_API_KEY"),
			Model:    os.Getenv("SUMMARIZER_MODEL"),
			BaseURL:  os.Getenv("SUMMARIZER_BASE_URL"),
		}
	}

	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration after loading env vars from a
// specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewEngineError("LoadConfigFromEnvFile", KindValidation, err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", KindValidation, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", KindValidation, err)
	}
	return &cfg, nil
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Storage.Provider == "" {
		return NewEngineError("Validate", KindValidation, errMissingField("storage.provider"))
	}
	if c.Embedding.Provider == "" {
		return NewEngineError("Validate", KindValidation, errMissingField("embedding.provider"))
	}
	if c.Auth.MaxDelegationDepth <= 0 {
		c.Auth.MaxDelegationDepth = 3
	}
	if c.Lifecycle.Enabled && c.Lifecycle.SweepIntervalSeconds <= 0 {
		c.Lifecycle.SweepIntervalSeconds = 300
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// FindEnvFile searches the current directory, then up to five parent
// directories, for a .env or .env.example file.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		examplePath := filepath.Join(dir, ".env.example")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(examplePath); err == nil {
			return examplePath, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
