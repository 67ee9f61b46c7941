package config

import "time"

// DefaultSeparators is the splitter priority list: paragraph, line, sentence end, comma,
// space, and finally single characters.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Store.Root == "" {
		cfg.Store.Root = "~/.docrag/vector_stores"
	}
	if cfg.Store.LedgerPath == "" {
		cfg.Store.LedgerPath = "~/.docrag/ledger.db"
	}
	if cfg.Store.IndexType == "" {
		cfg.Store.IndexType = "flat"
	}
	if cfg.Store.HNSWM == 0 {
		cfg.Store.HNSWM = 16
	}
	if cfg.Store.HNSWEfSearch == 0 {
		cfg.Store.HNSWEfSearch = 64
	}
	if cfg.Cache.MaxProjects == 0 {
		cfg.Cache.MaxProjects = 64
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Minute
	}
	if cfg.Cache.RevalidateAfter == 0 {
		cfg.Cache.RevalidateAfter = time.Second
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if len(cfg.Chunking.Separators) == 0 {
		cfg.Chunking.Separators = append([]string(nil), DefaultSeparators...)
	}
	if len(cfg.Extract.OCRLanguages) == 0 {
		cfg.Extract.OCRLanguages = []string{"eng", "hin"}
	}
	if cfg.Extract.OCRDPI == 0 {
		cfg.Extract.OCRDPI = 300
	}
	if cfg.Extract.OCRTimeout == 0 {
		cfg.Extract.OCRTimeout = 2 * time.Minute
	}
	if cfg.Extract.PdftoppmPath == "" {
		cfg.Extract.PdftoppmPath = "pdftoppm"
	}
	if cfg.Extract.TesseractPath == "" {
		cfg.Extract.TesseractPath = "tesseract"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "~/.docrag/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		case "ollama":
			cfg.Embedding.Model = "nomic-embed-text"
		default:
			cfg.Embedding.Model = "all-MiniLM-L6-v2"
		}
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Dimensions = 1536
		case "ollama":
			cfg.Embedding.Dimensions = 768
		default:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 3
	}
	if cfg.Workers.PoolSize == 0 {
		cfg.Workers.PoolSize = 4
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
