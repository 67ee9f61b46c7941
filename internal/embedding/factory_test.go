package embedding

import (
	"testing"

	"github.com/hyperjump/docrag/internal/config"
)

func TestFromConfig(t *testing.T) {
	e, err := FromConfig(config.EmbeddingConfig{Provider: "mock", Dimensions: 12, CacheSize: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Dimensions() != 12 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected a cached embedder, got %T", e)
	}
}

func TestFromConfig_errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EmbeddingConfig
	}{
		{"unknown provider", config.EmbeddingConfig{Provider: "cohere"}},
		{"openai without key", config.EmbeddingConfig{Provider: "openai", APIKeyEnv: "DOCRAG_TEST_UNSET_KEY", Dimensions: 8}},
		{"ollama without url", config.EmbeddingConfig{Provider: "ollama", Dimensions: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromConfig(tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
