package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/services"
)

// Config holds the sliding-window admission policy
type Config struct {
	MaxRequests   int
	WindowMinutes int
}

// DefaultConfig returns the default admission policy
func DefaultConfig() Config {
	return Config{
		MaxRequests:   20,
		WindowMinutes: 60,
	}
}

// RateLimitService enforces a per-conversation sliding-window limit on questions.
// State is process-local: a restart resets all counters, which is acceptable
// for an abuse guard. Conversations are fully independent keys.
type RateLimitService struct {
	mu     sync.Mutex
	hits   map[uuid.UUID][]time.Time
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewRateLimitService creates a rate limit service using the wall clock
func NewRateLimitService(cfg Config, logger *zap.Logger) *RateLimitService {
	return NewRateLimitServiceWithClock(cfg, time.Now, logger)
}

// NewRateLimitServiceWithClock creates a rate limit service with an injected clock
func NewRateLimitServiceWithClock(cfg Config, now func() time.Time, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		hits:   make(map[uuid.UUID][]time.Time),
		cfg:    cfg,
		now:    now,
		logger: logger,
	}
}

// Window returns the configured window duration
func (s *RateLimitService) Window() time.Duration {
	return time.Duration(s.cfg.WindowMinutes) * time.Minute
}

// CheckAndAdmit records a hit for the conversation, failing with a rate
// limit error when the trailing window already holds the configured maximum.
// Entries older than the window are pruned lazily on each check. A rejected
// request is not recorded, so rejections do not extend the lockout.
func (s *RateLimitService) CheckAndAdmit(conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	windowStart := now.Add(-s.Window())

	kept := s.hits[conversationID][:0]
	for _, t := range s.hits[conversationID] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= s.cfg.MaxRequests {
		s.hits[conversationID] = kept

		oldest := kept[0]
		retryAfter := int(oldest.Add(s.Window()).Sub(now).Minutes()) + 1

		s.logger.Warn("rate limit exceeded",
			zap.String("conversation_id", conversationID.String()),
			zap.Int("hits_in_window", len(kept)),
			zap.Int("retry_after_minutes", retryAfter))

		message := fmt.Sprintf("You've reached the limit of %d messages per %d minutes. Please try again in %d minute(s).",
			s.cfg.MaxRequests, s.cfg.WindowMinutes, retryAfter)
		return services.NewDomainError(services.ErrorTypeRateLimit, message, nil).
			WithDetail("retry_after_minutes", retryAfter).
			WithDetail("limit", s.cfg.MaxRequests).
			WithDetail("window_minutes", s.cfg.WindowMinutes)
	}

	s.hits[conversationID] = append(kept, now)
	return nil
}

// StartSweeper starts a background worker that drops conversations with no
// hits inside the window, keeping the hit log bounded. Per-check pruning
// only touches conversations that stay active, so idle ones are cleaned
// up here.
func (s *RateLimitService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit sweeper", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				s.logger.Debug("swept idle conversations", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit sweeper")
			return
		}
	}
}

func (s *RateLimitService) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	windowStart := s.now().Add(-s.Window())
	removed := 0
	for id, hits := range s.hits {
		active := false
		for _, t := range hits {
			if t.After(windowStart) {
				active = true
				break
			}
		}
		if !active {
			delete(s.hits, id)
			removed++
		}
	}
	return removed
}
