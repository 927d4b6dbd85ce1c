// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder returns deterministic vectors derived from an FNV hash of the
// input, so the same text always embeds to the same vector. Tests can
// override behavior through EmbedTextFunc / EmbedTextsFunc and inspect
// CallCount and Batches afterwards.
//
//	embedder := mock.NewMockEmbedderWithDimension(8)
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("encoder offline")
//	}
//
// The "mock" provider is also selectable from configuration, which runs
// the full pipeline without a model server.
package mock
