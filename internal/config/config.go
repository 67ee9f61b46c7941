// Package config provides configuration loading and structs for docrag.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Extract   ExtractConfig   `yaml:"extract"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Workers   WorkersConfig   `yaml:"workers"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StoreConfig holds the on-disk layout of project indices and the resource ledger.
type StoreConfig struct {
	// Root holds one project_<id> directory per project.
	Root       string `yaml:"root"`
	LedgerPath string `yaml:"ledger_path"`
	// IndexType is "flat" (exact search) or "hnsw" (approximate).
	IndexType    string `yaml:"index_type"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search"`
}

// CacheConfig bounds the in-memory project index cache.
type CacheConfig struct {
	MaxProjects     int           `yaml:"max_projects"`
	TTL             time.Duration `yaml:"ttl"`
	// RevalidateAfter is how long a query may trust a cached index without re-reading
	// its manifest. Negative checks on every query.
	RevalidateAfter time.Duration `yaml:"revalidate_after"`
}

// ChunkingConfig holds splitter settings. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

// ExtractConfig holds native extraction and OCR fallback settings.
type ExtractConfig struct {
	PageLimit      int           `yaml:"page_limit"` // 0 = all pages
	OCREnabled     *bool         `yaml:"ocr_enabled"`
	OCRLanguages   []string      `yaml:"ocr_languages"`
	OCRDPI         int           `yaml:"ocr_dpi"`
	OCRTimeout     time.Duration `yaml:"ocr_timeout"`
	DetectLanguage bool          `yaml:"detect_language"`
	PdftoppmPath   string        `yaml:"pdftoppm_path"`
	TesseractPath  string        `yaml:"tesseract_path"`
}

// OCREnabledOrDefault returns whether the OCR fallback runs; defaults to true when unset.
func (e *ExtractConfig) OCREnabledOrDefault() bool {
	if e.OCREnabled != nil {
		return *e.OCREnabled
	}
	return true
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "onnx", "openai", "ollama", "mock".
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	ModelPath  string        `yaml:"model_path"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	BatchSize  int           `yaml:"batch_size"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds query defaults.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
}

// WorkersConfig sizes the batch ingestion pool.
type WorkersConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// WatchConfig holds inbox watcher settings. Files dropped into <inbox>/<project_id>/ are ingested.
type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults, expands paths, and validates.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.Root = expandPath(cfg.Store.Root, configDir)
	cfg.Store.LedgerPath = expandPath(cfg.Store.LedgerPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Watch.Inbox != "" {
		cfg.Watch.Inbox = expandPath(cfg.Watch.Inbox, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size)")
	}
	switch c.Store.IndexType {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("unknown store.index_type %q (supported: flat, hnsw)", c.Store.IndexType)
	}
	switch c.Embedding.Provider {
	case "onnx", "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unknown embedding.provider %q (supported: onnx, openai, ollama, mock)", c.Embedding.Provider)
	}
	if c.Cache.MaxProjects <= 0 {
		return fmt.Errorf("cache.max_projects must be positive")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir,
// "~/" is the home directory, and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
