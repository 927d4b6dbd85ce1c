package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "all-minilm", cfg.EmbeddingModel)
	assert.Equal(t, 384, cfg.Dimension)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, 384, cfg.Dimension)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithEmbeddingHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithProvider(ProviderGemini),
			WithEmbeddingModel("text-embedding-004"),
			WithAPIKey("secret"),
			WithDimension(768),
		)

		assert.Equal(t, ProviderGemini, cfg.Provider)
		assert.Equal(t, "text-embedding-004", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, 768, cfg.Dimension)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		host     string
		expected string
	}{
		{name: "missing v1", provider: ProviderOpenAI, host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", provider: ProviderOpenAI, host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "has v1", provider: ProviderOpenAI, host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "empty host", provider: ProviderOpenAI, host: "", expected: ""},
		{name: "gemini host untouched", provider: ProviderGemini, host: "http://proxy:8080", expected: "http://proxy:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, EmbeddingHost: tt.host}

			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
		})
	}

	t.Run("provider defaults and case", func(t *testing.T) {
		cfg := &Config{}
		cfg.Normalize()
		assert.Equal(t, ProviderOpenAI, cfg.Provider)

		cfg = &Config{Provider: " Gemini "}
		cfg.Normalize()
		assert.Equal(t, ProviderGemini, cfg.Provider)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{
			Provider:       ProviderOpenAI,
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: "all-minilm",
			Dimension:      384,
		}

		err := cfg.Validate()
		assert.NoError(t, err)
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	t.Run("missing embedding host", func(t *testing.T) {
		cfg := &Config{Provider: ProviderOpenAI, EmbeddingModel: "all-minilm", Dimension: 384}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingHost")
	})

	t.Run("gemini needs no host", func(t *testing.T) {
		cfg := &Config{Provider: ProviderGemini, EmbeddingModel: "text-embedding-004", Dimension: 768}

		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing embedding model", func(t *testing.T) {
		cfg := &Config{Provider: ProviderOpenAI, EmbeddingHost: "http://localhost:11434/v1", Dimension: 384}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingModel")
	})

	t.Run("mock needs no model", func(t *testing.T) {
		cfg := &Config{Provider: ProviderMock, Dimension: 16}

		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := &Config{Provider: "bert", EmbeddingModel: "x", Dimension: 384}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Provider")
	})

	t.Run("dimension must be positive", func(t *testing.T) {
		cfg := NewConfig(WithDimension(0))

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Dimension")
	})
}

func TestConfigValidate_Integration(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
}
