package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i] * b[i])
	}
	return s
}

func TestMockEmbedder_deterministicUnitVectors(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "The quick brown fox")
	b, _ := e.Embed(ctx, "The quick brown fox")
	if math.Abs(dot(a, b)-1) > 1e-5 {
		t.Errorf("identical texts should have similarity 1, got %f", dot(a, b))
	}
	if len(a) != 64 || e.Dimensions() != 64 {
		t.Errorf("dimensions = %d", len(a))
	}
}

func TestMockEmbedder_sharedWordsScoreHigher(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "invoice payment terms")
	near, _ := e.Embed(ctx, "payment terms for the invoice are thirty days")
	far, _ := e.Embed(ctx, "mountain weather forecast")
	if dot(q, near) <= dot(q, far) {
		t.Errorf("near=%f far=%f", dot(q, near), dot(q, far))
	}
}

func TestMockEmbedder_cancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(8).EmbedBatch(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}
