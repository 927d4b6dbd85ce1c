package gemini

import (
	"context"
	"testing"

	"github.com/poiesic/thinkdocs/ai"
	"github.com/stretchr/testify/assert"
)

func TestNewProvider_RejectsInvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), ai.NewConfig(
		ai.WithProvider(ai.ProviderGemini),
		ai.WithEmbeddingModel(""),
	))
	assert.ErrorContains(t, err, "EmbeddingModel")
}

func TestEmbedTexts_Empty(t *testing.T) {
	e := &Embedder{}
	out, err := e.EmbedTexts(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, out)
}
