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

// Package storage provides the storage abstraction layer for thinkdocs.
//
// This package defines repository interfaces that decouple storage implementation
// from the ingestion pipeline. Two backends implement them:
//
//   - storage/badger: embedded BadgerDB, used for single-node deployments and tests
//   - storage/postgres: PostgreSQL with the pgvector extension
//
// # Sessions
//
// The pipeline never holds a store across runs. Each run asks an Opener
// for a Store session and a VectorOpener for a VectorStore session and
// closes both when the run ends, whatever the outcome:
//
//	store, err := opener.Open(ctx)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// # Conditional updates
//
// Document status only moves from processing to completed or failed.
// CompleteDocument and FailDocument report false instead of overwriting a
// terminal status, so the first terminal write wins when a finalize and a
// sweep race.
//
// # Values
//
// Records are stored as JSON (see serialization.go). ProcessingJob.Stats is
// an open map, so numeric stats read back as float64.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
