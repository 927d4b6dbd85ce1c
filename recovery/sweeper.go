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

package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// DefaultStaleAfter is how long a document may stay in processing.
const DefaultStaleAfter = 30 * time.Minute

// ErrStoreRequired is returned when no store opener is provided.
var ErrStoreRequired = errors.New("store opener required")

// Recovered identifies a document failed by a sweep.
type Recovered struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Report describes one sweep.
type Report struct {
	Cutoff    time.Time   `json:"cutoff"`
	Documents []Recovered `json:"documents"`
	Jobs      []string    `json:"jobs"`
}

// DocumentIDs returns the IDs of the recovered documents.
func (r *Report) DocumentIDs() []string {
	ids := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		ids[i] = d.ID
	}
	return ids
}

// Sweeper recovers stale processing documents.
type Sweeper struct {
	stores     storage.Opener
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithStaleAfter sets the processing age after which a document is stale.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSweeper creates a Sweeper.
func NewSweeper(stores storage.Opener, opts ...Option) (*Sweeper, error) {
	if stores == nil {
		return nil, ErrStoreRequired
	}
	s := &Sweeper{
		stores:     stores,
		staleAfter: DefaultStaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s, nil
}

// Sweep fails every processing document uploaded before now minus the stale
// age, then every running job started before the same cutoff. Documents
// that reach a terminal state concurrently are skipped. Per-document errors
// do not stop the sweep; they are joined into the returned error alongside
// a partial report.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	store, err := s.stores.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open store: %w", core.ErrStorage, err)
	}
	defer store.Close()

	now := s.now()
	report := &Report{Cutoff: now.Add(-s.staleAfter)}

	stale, err := store.FindStaleDocuments(ctx, report.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: find stale documents: %w", core.ErrStorage, err)
	}

	var errs []error
	for _, doc := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		changed, err := store.FailDocument(ctx, doc.ID, now)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			s.logger.Error("failed to recover document", "document_id", doc.ID, "error", err)
			errs = append(errs, fmt.Errorf("document %s: %w", doc.ID, err))
			continue
		}
		if !changed {
			continue
		}
		s.logger.Warn("recovered stuck document",
			"document_id", doc.ID,
			"filename", doc.Filename,
			"uploaded_at", doc.UploadedAt)
		report.Documents = append(report.Documents, Recovered{ID: doc.ID, Filename: doc.Filename})
	}

	jobs, err := store.FailStaleJobs(ctx, report.Cutoff, core.ErrStaleJobRecovered.Error(), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("fail stale jobs: %w", err))
	}
	for _, job := range jobs {
		report.Jobs = append(report.Jobs, job.TaskID)
	}

	if len(report.Documents) > 0 || len(report.Jobs) > 0 {
		s.logger.Info("sweep recovered stale work", "documents", len(report.Documents), "jobs", len(report.Jobs))
	} else {
		s.logger.Debug("sweep found nothing stale")
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("%w: %w", core.ErrStorage, errors.Join(errs...))
	}
	return report, nil
}

// Run sweeps immediately and then every interval until ctx is done.
// Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
