package models

import (
	"testing"
)

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *Query
		wantErr bool
		wantK   int
	}{
		{"missing project", &Query{Text: "hello"}, true, 0},
		{"path traversal project", &Query{Text: "x", ProjectID: "../etc"}, true, 0},
		{"defaults k", &Query{Text: "x", ProjectID: "42"}, false, DefaultK},
		{"caps k", &Query{Text: "x", ProjectID: "42", K: 500}, false, MaxK},
		{"keeps k", &Query{Text: "x", ProjectID: "p_1", K: 7}, false, 7},
		{"empty text is allowed", &Query{ProjectID: "42"}, false, DefaultK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.K != tt.wantK {
				t.Errorf("K = %d, want %d", tt.query.K, tt.wantK)
			}
		})
	}
}

func TestSourceTag(t *testing.T) {
	if got := SourceTag(4); got != "chunk_4" {
		t.Errorf("SourceTag(4) = %q", got)
	}
}

func TestChunk_WithResource(t *testing.T) {
	c := Chunk{Text: "a", ChunkIndex: 1, SourceTag: "chunk_1"}
	d := c.WithResource("r1")
	if c.ResourceID != "" {
		t.Error("original chunk must not change")
	}
	if d.ResourceID != "r1" || d.Text != "a" {
		t.Errorf("got %+v", d)
	}
}
