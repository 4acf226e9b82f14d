// Package openaiemb implements an embed.Backend on the OpenAI embeddings API
// (or any compatible endpoint).
package openaiemb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tiroq/qacut/internal/embed"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-small"

// Config configures the backend.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for compatible gateways
	Model      string
	MaxRetries int // SDK-level retries; 0 leaves retrying to the caller
}

// Backend calls the embeddings endpoint through openai-go.
type Backend struct {
	client openai.Client
	model  string
}

// New creates a backend. An API key is required.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key not set (config embedding.openai.api_key or OPENAI_API_KEY)")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Backend{client: openai.NewClient(opts...), model: model}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "openai" }

// Embed returns the embedding of text.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(b.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai: response contained no embedding")
	}
	return embed.Float64To32(resp.Data[0].Embedding), nil
}

// HealthCheck embeds a short probe string.
func (b *Backend) HealthCheck(ctx context.Context) (*embed.HealthStatus, error) {
	start := time.Now()
	status := &embed.HealthStatus{Backend: b.Name()}
	_, err := b.Embed(ctx, "ping")
	status.Latency = time.Since(start)
	if err != nil {
		status.Message = fmt.Sprintf("health check failed: %v", err)
		return status, nil
	}
	status.OK = true
	status.Message = "healthy (model " + b.model + ")"
	return status, nil
}
