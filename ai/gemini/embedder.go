// Package gemini provides an encoder backed by Google's Gemini embedding models.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/thinkdocs/ai"
	"google.golang.org/api/option"
)

// maxBatch is the per-request limit of BatchEmbedContents.
const maxBatch = 100

// Embedder implements ai.Embedder and ai.AIProvider on a genai client.
type Embedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	logger *slog.Logger
}

// NewProvider creates a Gemini backed provider. An empty Config.APIKey
// falls back to the GEMINI_API_KEY environment variable.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if config.EmbeddingHost != "" {
		opts = append(opts, option.WithEndpoint(config.EmbeddingHost))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	model := client.EmbeddingModel(config.EmbeddingModel)
	model.TaskType = genai.TaskTypeRetrievalDocument

	return &Embedder{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "gemini-embedder", "model", config.EmbeddingModel),
	}, nil
}

// Embedder returns the provider itself.
func (e *Embedder) Embedder() ai.Embedder {
	return e
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return resp.Embedding.Values, nil
}

// EmbedTexts embeds texts with as few BatchEmbedContents calls as the API allows.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		batch := e.model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			e.logger.Error("failed to generate embeddings", "count", end-start, "err", err)
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

var (
	_ ai.Embedder   = (*Embedder)(nil)
	_ ai.AIProvider = (*Embedder)(nil)
)
