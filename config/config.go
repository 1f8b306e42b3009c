package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the embedding tool.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Export    ExportConfig    `yaml:"export"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig describes where reports come from and how rows are parsed.
type SourceConfig struct {
	URL      string        `yaml:"url"`      // http(s) URL or local path to a zip archive
	Member   string        `yaml:"member"`   // glob selecting exactly one archive member
	Sentinel string        `yaml:"sentinel"` // end-of-text marker; empty takes the rest of the row
	Reindex  bool          `yaml:"reindex"`  // dense indexes instead of row positions
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider       string        `yaml:"provider"` // "gemini", "openai", "mock"
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`  // Environment variable for API key
	APIKeyFile     string        `yaml:"api_key_file"` // Fallback file holding the key
	Dimension      int           `yaml:"dimension"`
	TaskType       string        `yaml:"task_type"`
	ChunkSize      int           `yaml:"chunk_size"`
	Concurrency    int           `yaml:"concurrency"`
	Spacing        time.Duration `yaml:"spacing"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	ShortResult    string        `yaml:"short_result"` // "fail" or "pad"
	MemoSize       int           `yaml:"memo_size"`
}

// CacheConfig holds local embedding cache configuration.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // "bolt", "sqlite", "memory"
	Path    string `yaml:"path"`    // empty uses .pathembed/cache.db under the root dir
}

// ExportConfig holds result export configuration.
type ExportConfig struct {
	Format string `yaml:"format"` // "tsv" or "json"
	Path   string `yaml:"path"`
}

// AnalysisConfig holds correlation analysis configuration.
type AnalysisConfig struct {
	Metric           string `yaml:"metric"` // "pearson" or "spearman"
	EmbeddingsURL    string `yaml:"embeddings_url"`
	EmbeddingsMember string `yaml:"embeddings_member"`
	LabelsURL        string `yaml:"labels_url"`
	LabelColumn      int    `yaml:"label_column"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:      "https://epiverse.github.io/tcgapath/TCGA_Reports.csv.zip",
			Member:   "*.csv",
			Sentinel: ";;",
			Timeout:  2 * time.Minute,
			MaxBytes: 256 << 20,
		},
		Embedding: EmbeddingConfig{
			Provider:       "gemini",
			Model:          "text-embedding-004",
			APIKeyEnv:      "GEMINI_API_KEY",
			Dimension:      768,
			ChunkSize:      50,
			Concurrency:    1,
			RequestTimeout: 60 * time.Second,
			MaxAttempts:    1,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			ShortResult:    "fail",
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "bolt",
		},
		Export: ExportConfig{
			Format: "tsv",
			Path:   "embeddings_with_identifiers.tsv",
		},
		Analysis: AnalysisConfig{
			Metric:           "pearson",
			EmbeddingsURL:    "https://raw.githubusercontent.com/epiverse/tcgapath/main/embeddings.tsv.zip",
			EmbeddingsMember: "embeddings.tsv",
			LabelsURL:        "https://raw.githubusercontent.com/epiverse/tcgapath/main/cancer_type_meta.tsv",
			LabelColumn:      1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for pathembed.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "pathembed.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".pathembed", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// LoadEnv loads dir/.env into the process environment. Variables that are
// already set are left alone.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var problems []string

	switch c.Embedding.Provider {
	case "gemini", "openai", "mock":
	default:
		problems = append(problems, fmt.Sprintf("unsupported embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.ChunkSize <= 0 {
		problems = append(problems, "embedding.chunk_size must be > 0")
	}
	if c.Embedding.Concurrency <= 0 {
		problems = append(problems, "embedding.concurrency must be > 0")
	}
	if c.Embedding.MaxAttempts <= 0 {
		problems = append(problems, "embedding.max_attempts must be > 0")
	}
	switch c.Embedding.ShortResult {
	case "fail", "pad":
	default:
		problems = append(problems, fmt.Sprintf("unsupported embedding.short_result %q", c.Embedding.ShortResult))
	}
	switch c.Cache.Backend {
	case "bolt", "sqlite", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unsupported cache backend %q", c.Cache.Backend))
	}
	switch c.Export.Format {
	case "tsv", "json":
	default:
		problems = append(problems, fmt.Sprintf("unsupported export format %q", c.Export.Format))
	}
	switch c.Analysis.Metric {
	case "pearson", "spearman":
	default:
		problems = append(problems, fmt.Sprintf("unsupported analysis metric %q", c.Analysis.Metric))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ResolveAPIKey returns the key from the configured environment variable,
// falling back to the contents of APIKeyFile.
func (e EmbeddingConfig) ResolveAPIKey() (string, error) {
	if e.APIKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(e.APIKeyEnv)); key != "" {
			return key, nil
		}
	}
	if e.APIKeyFile != "" {
		data, err := os.ReadFile(e.APIKeyFile)
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read api key file: %w", err)
		}
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("no key in $%s or %q", e.APIKeyEnv, e.APIKeyFile)
}

// Fingerprint hashes the settings that decide what a cached embedding means.
// A change in any of them makes earlier cache entries stale.
func Fingerprint(cfg *Config) string {
	relevant := struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		Dimension int    `json:"dimension"`
		TaskType  string `json:"task_type"`
		SourceURL string `json:"source_url"`
		Member    string `json:"member"`
		Sentinel  string `json:"sentinel"`
		Reindex   bool   `json:"reindex"`
	}{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		TaskType:  cfg.Embedding.TaskType,
		SourceURL: cfg.Source.URL,
		Member:    cfg.Source.Member,
		Sentinel:  cfg.Source.Sentinel,
		Reindex:   cfg.Source.Reindex,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// CacheDBPath returns the path to the cache database.
func CacheDBPath(dir string) string {
	return filepath.Join(dir, ".pathembed", "cache.db")
}

// EnsureDataDir ensures the .pathembed directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".pathembed"), 0755)
}
