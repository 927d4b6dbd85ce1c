package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/thinkdocs/ai"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

const (
	// DefaultMinSimilarity is the cosine similarity below which chunks are ignored.
	DefaultMinSimilarity float32 = 0.60

	// VerbatimBoost is added to chunks containing every query word.
	VerbatimBoost float32 = 0.3

	// candidateFactor is how many candidates are fetched per requested hit
	// so owner filtering and reranking have room to work.
	candidateFactor = 3
)

// Query describes one search.
type Query struct {
	Text    string
	MaxHits int

	// OwnerID restricts results to one owner's documents when set.
	OwnerID string
}

// Searcher ranks stored chunks against text queries.
type Searcher struct {
	vectors       storage.VectorOpener
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the similarity floor.
// Default is DefaultMinSimilarity.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		if min < -1 || min > 1 {
			return fmt.Errorf("min similarity must be in [-1, 1], got %v", min)
		}
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(vectors storage.VectorOpener, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		vectors:       vectors,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// FindSimilar searches for chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.Search(ctx, Query{Text: query, MaxHits: maxHits}, nil)
}

// Search runs q with monitoring. The monitor receives callbacks at each
// stage of the search process and may be nil.
func (s *Searcher) Search(ctx context.Context, q Query, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.MaxHits <= 0 {
		return []*core.SearchResult{}, nil
	}

	monitor.Start(q.Text)

	embedding, err := s.embedder.EmbedText(ctx, q.Text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", q.Text, "err", err)
		return nil, err
	}

	vs, err := s.vectors.OpenVectors(ctx)
	if err != nil {
		return nil, err
	}
	defer vs.Close()

	matches, err := vs.FindSimilar(ctx, embedding, s.minSimilarity, q.MaxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(matches)

	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		if q.OwnerID != "" && match.Record.OwnerID != q.OwnerID {
			monitor.SkippedOwner(match.Record)
			continue
		}

		score := match.Score
		if containsAllQueryWords(match.Record.Content, q.Text) {
			score += VerbatimBoost
			monitor.VerbatimHit(match.Record)
		}
		results = append(results, &core.SearchResult{Record: match.Record, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.MaxHits {
		results = results[:q.MaxHits]
	}
	monitor.Finish(results)

	s.logger.Debug("search finished", "query", q.Text, "candidates", len(matches), "results", len(results))
	return results, nil
}
