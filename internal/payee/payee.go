// Package payee tracks per-user transaction history and derives the
// behavioral facts consumed by the anomaly analyzer.
package payee

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Multiplier over the typical payee amount beyond which a transaction
// counts as unusual.
const unusualAmountFactor = 3.0

// Hours outside which a transaction counts as off-hours.
const (
	quietHourStart = 23
	quietHourEnd   = 6
)

// Service computes behavior hints from payee history and velocity counters.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	logger *slog.Logger
}

// NewService creates a new payee history service.
func NewService(repo domain.Repository, cache domain.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// Observe derives behavior hints for a pending transaction and bumps the
// user's velocity counter. Hints supplied by the caller win over derived
// ones; only unset fields are filled in.
func (s *Service) Observe(ctx context.Context, userID, payeeAddr string, amount float64, at time.Time, supplied *domain.BehaviorHints) (*domain.BehaviorHints, error) {
	if userID == "" || payeeAddr == "" {
		return nil, fmt.Errorf("userID and payee are required")
	}

	hints := &domain.BehaviorHints{}
	if supplied != nil {
		*hints = *supplied
	}

	if s.repo != nil && !hints.NewPayee && hints.TypicalAmount == 0 {
		stats, err := s.repo.GetPayeeStats(ctx, userID, payeeAddr)
		if err != nil {
			s.logger.Warn("payee stats lookup failed",
				"user_id", userID,
				"error", err,
			)
		} else {
			hints.NewPayee = stats.Count == 0
			hints.TypicalAmount = stats.AverageAmount
			if stats.AverageAmount > 0 && amount > unusualAmountFactor*stats.AverageAmount {
				hints.UnusualAmount = true
			}
		}
	}

	if !hints.UnusualTime {
		hour := at.Hour()
		hints.UnusualTime = hour >= quietHourStart || hour < quietHourEnd
	}

	if s.cache != nil && hints.Velocity == 0 {
		count, err := s.cache.IncrementCounter(ctx, "velocity:"+userID, time.Hour)
		if err != nil {
			s.logger.Warn("velocity counter failed",
				"user_id", userID,
				"error", err,
			)
		} else {
			hints.Velocity = int(count)
		}
	}

	return hints, nil
}

// Record appends a completed transaction to the user's payee history.
func (s *Service) Record(ctx context.Context, userID, payeeAddr string, amount float64, at time.Time) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.RecordPayeeTransaction(ctx, userID, payeeAddr, amount, at)
}
