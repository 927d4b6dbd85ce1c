// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides the encoder abstraction used by ThinkDocs.
//
// The ingestion pipeline never talks to a model directly. It depends on
// the Embedder interface defined here, and an implementation package is
// chosen at startup from Config.Provider:
//
//   - ai/openai: OpenAI-compatible APIs (OpenAI, Ollama, LocalAI, vLLM) via langchaingo
//   - ai/gemini: Google Gemini embedding models via generative-ai-go
//   - ai/mock: deterministic test doubles
//
// Public constructors return interface types (ai.Embedder, ai.AIProvider).
// The mock constructors return concrete types so tests can inject behavior
// and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"first chunk", "second chunk"})
package ai
