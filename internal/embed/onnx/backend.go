// Package onnx runs a sentence-embedding model locally through ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/tiroq/qacut/internal/embed"
)

// Pooling strategies for turning token states into one vector.
const (
	PoolingCLS  = "cls"
	PoolingMean = "mean"
)

// Config locates the model files.
type Config struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string // shared onnxruntime library; empty uses the default search
	MaxLength     int    // tokens per input, default 256
	Pooling       string // PoolingCLS (default) or PoolingMean
}

// Backend is an embed.Backend running a BERT-style encoder. The session is
// not shared across concurrent Run calls.
type Backend struct {
	cfg     Config
	tok     *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

var envOnce sync.Once
var envErr error

// New loads the tokenizer and model and initializes the runtime once per
// process.
func New(cfg Config) (*Backend, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx: model_path and tokenizer_path are required")
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 256
	}
	if cfg.Pooling == "" {
		cfg.Pooling = PoolingCLS
	}

	tok, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to load tokenizer: %w", err)
	}

	envOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("onnx: failed to initialize environment: %w", envErr)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("onnx: failed to set graph optimization: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &Backend{cfg: cfg, tok: tok, session: session}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "onnx" }

// Embed tokenizes text, runs the encoder and pools the hidden states.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := b.tok.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("onnx: tokenization failed: %w", err)
	}
	ids, mask, types := buildInputs(enc.GetIds(), enc.GetAttentionMask(), b.cfg.MaxLength)
	seqLen := int64(len(ids))
	if seqLen == 0 {
		return nil, errors.New("onnx: empty token sequence")
	}

	shape := ort.NewShape(1, seqLen)
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typesT, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	defer typesT.Destroy()

	outputs := make([]ort.Value, 1)
	b.mu.Lock()
	err = b.session.Run([]ort.Value{idsT, maskT, typesT}, outputs)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("onnx: output tensor is not float32")
	}
	dims := out.GetShape()
	if len(dims) != 3 {
		return nil, fmt.Errorf("onnx: unexpected output shape %v", dims)
	}

	if b.cfg.Pooling == PoolingMean {
		return meanPool(out.GetData(), mask, dims[1], dims[2]), nil
	}
	return clsVector(out.GetData(), dims[2]), nil
}

// HealthCheck embeds a probe string.
func (b *Backend) HealthCheck(ctx context.Context) (*embed.HealthStatus, error) {
	start := time.Now()
	status := &embed.HealthStatus{Backend: b.Name()}
	vec, err := b.Embed(ctx, "ping")
	status.Latency = time.Since(start)
	if err != nil {
		status.Message = err.Error()
		return status, nil
	}
	status.OK = true
	status.Message = fmt.Sprintf("healthy (dim %d)", len(vec))
	return status, nil
}

// Close releases the session.
func (b *Backend) Close() error {
	if b.session != nil {
		return b.session.Destroy()
	}
	return nil
}

// buildInputs truncates to maxLen and widens to int64. Token type ids are
// all zero for single-sequence input.
func buildInputs(ids, mask []int, maxLen int) ([]int64, []int64, []int64) {
	n := len(ids)
	if maxLen > 0 && n > maxLen {
		n = maxLen
	}
	outIDs := make([]int64, n)
	outMask := make([]int64, n)
	for i := 0; i < n; i++ {
		outIDs[i] = int64(ids[i])
		if i < len(mask) {
			outMask[i] = int64(mask[i])
		} else {
			outMask[i] = 1
		}
	}
	return outIDs, outMask, make([]int64, n)
}

// clsVector copies the first token's hidden state.
func clsVector(data []float32, hidden int64) []float32 {
	out := make([]float32, hidden)
	copy(out, data[:hidden])
	return out
}

// meanPool averages hidden states over positions where mask is set.
func meanPool(data []float32, mask []int64, seqLen, hidden int64) []float32 {
	sum := make([]float64, hidden)
	var count float64
	for t := int64(0); t < seqLen; t++ {
		if t < int64(len(mask)) && mask[t] == 0 {
			continue
		}
		row := data[t*hidden : (t+1)*hidden]
		for d, v := range row {
			sum[d] += float64(v)
		}
		count++
	}
	out := make([]float32, hidden)
	if count == 0 {
		return out
	}
	for d := range sum {
		out[d] = float32(sum[d] / count)
	}
	return out
}
