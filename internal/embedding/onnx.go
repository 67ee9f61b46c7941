//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/docrag/pkg/utils"
)

// ONNXEmbedder runs a sentence-transformer model (all-MiniLM-L6-v2 by default) locally
// through ONNX Runtime. Requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex // one inference at a time; the tensors are reused
	session    *ort.AdvancedSession
	tensors    *sessionTensors
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// sessionTensors are allocated once and overwritten on every run.
type sessionTensors struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newSessionTensors(maxTokens, dimensions int) (*sessionTensors, error) {
	st := &sessionTensors{}
	shape := ort.NewShape(1, int64(maxTokens))
	var err error
	if st.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	if st.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		st.destroy()
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	if st.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		st.destroy()
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if st.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		st.destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return st, nil
}

func (st *sessionTensors) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{st.inputIDs, st.attentionMask, st.tokenTypeIDs}
}

func (st *sessionTensors) destroy() {
	if st.inputIDs != nil {
		_ = st.inputIDs.Destroy()
	}
	if st.attentionMask != nil {
		_ = st.attentionMask.Destroy()
	}
	if st.tokenTypeIDs != nil {
		_ = st.tokenTypeIDs.Destroy()
	}
	if st.output != nil {
		_ = st.output.Destroy()
	}
}

// NewONNXEmbedder loads the model at modelPath. The runtime environment is initialized on first use.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	tensors, err := newSessionTensors(maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		tensors.inputs(),
		[]ort.ArbitraryTensor{tensors.output},
		nil,
	)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("create onnx session for %s: %w", modelPath, err)
	}
	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  &SimpleTokenizer{},
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

// Embed runs the model on text and returns the normalized sentence embedding.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder closed")
	}
	copy(e.tensors.inputIDs.GetData(), ids)
	copy(e.tensors.attentionMask.GetData(), mask)
	copy(e.tensors.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	return utils.Normalized(e.tensors.output.GetData()[:e.dimensions]), nil
}

// EmbedBatch runs Embed for each text; the session has a fixed batch dimension of 1.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.tensors.destroy()
	return err
}
