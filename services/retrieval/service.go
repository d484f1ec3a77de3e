package retrieval

import (
	"context"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/farbook/far-chat/internal/observability"
	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/services"
	"github.com/farbook/far-chat/services/vectorstore"
)

// sectionPattern matches explicit FAR section references in a question,
// e.g. "15.203" or "52.212-4".
var sectionPattern = regexp.MustCompile(`\b(\d{1,2}\.\d{1,3}(?:-\d{1,3})?)\b`)

// Config holds the retrieval policy
type Config struct {
	TopK           int
	ScoreThreshold float64
	Timeout        time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
}

// DefaultConfig returns the default retrieval policy
func DefaultConfig() Config {
	return Config{
		TopK:           5,
		ScoreThreshold: 0.6,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		RetryDelay:     500 * time.Millisecond,
	}
}

// RetrievalService ranks corpus chunks against a query vector
type RetrievalService struct {
	store   vectorstore.Store
	cfg     Config
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(store vectorstore.Store, cfg Config, metrics *observability.Collector, logger *zap.Logger) *RetrievalService {
	return &RetrievalService{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Retrieve returns up to TopK candidates scoring at least ScoreThreshold,
// ordered descending by score. When the question contains explicit section
// references, a search scoped to each referenced section is tried first and
// its results are used if any clear the threshold. An empty result set is a
// valid outcome meaning the corpus holds nothing relevant, not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, vector []float32) ([]models.RetrievalCandidate, error) {
	for _, section := range sectionPattern.FindAllString(question, -1) {
		results, err := s.searchWithRetry(ctx, vector, &vectorstore.SearchFilter{Section: section})
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			s.logger.Debug("section-scoped retrieval hit",
				zap.String("section", section),
				zap.Int("candidates", len(results)))
			return toCandidates(results), nil
		}
	}

	results, err := s.searchWithRetry(ctx, vector, nil)
	if err != nil {
		return nil, err
	}
	return toCandidates(results), nil
}

// searchWithRetry runs a single search with a per-attempt timeout, retrying
// transient failures with exponential backoff up to MaxAttempts.
func (s *RetrievalService) searchWithRetry(ctx context.Context, vector []float32, filter *vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.cfg.RetryDelay * time.Duration(1<<(attempt-2))
			s.logger.Debug("retrying vector search",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			s.metrics.RecordProviderRetry(observability.StageRetrieve)
			time.Sleep(delay)
		}

		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		results, err := s.store.Search(searchCtx, vector, s.cfg.TopK, s.cfg.ScoreThreshold, filter)
		cancel()
		if err == nil {
			return results, nil
		}

		lastErr = err
		s.logger.Warn("vector search failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !vectorstore.IsRetryable(err) {
			break
		}
	}

	return nil, services.WrapExternal("vector index unreachable", lastErr)
}

func toCandidates(results []vectorstore.SearchResult) []models.RetrievalCandidate {
	candidates := make([]models.RetrievalCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, models.RetrievalCandidate{
			ChunkID: r.ID,
			Score:   r.Score,
			Text:    r.Payload.Text,
			Chapter: r.Payload.Chapter,
			Section: r.Payload.Section,
			Page:    r.Payload.Page,
		})
	}
	// The index returns neighbors ranked already; keep the ordering invariant
	// locally regardless.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}
