// Package worker provides background maintenance for the learning state.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/learning"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Flusher periodically persists the learning state so adaptive weights,
// lists and metrics survive restarts.
type Flusher struct {
	store    *learning.Store
	repo     domain.Repository
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFlusher creates a learning-state flush worker. A non-positive
// interval disables periodic flushing; Stop still writes a final
// snapshot.
func NewFlusher(store *learning.Store, repo domain.Repository, interval time.Duration, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Flusher{
		store:    store,
		repo:     repo,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Restore loads the persisted learning state into the store. A missing
// state is not an error; the store keeps its defaults.
func (f *Flusher) Restore(ctx context.Context) error {
	state, err := f.repo.LoadLearningState(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		f.logger.Info("no persisted learning state, starting fresh")
		return nil
	}
	if err != nil {
		return err
	}

	f.store.Restore(state)
	f.logger.Info("learning state restored",
		"updated_at", state.UpdatedAt,
	)
	return nil
}

// Start begins periodic flushing.
func (f *Flusher) Start() {
	if f.interval <= 0 {
		f.logger.Info("periodic learning-state flush disabled")
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-f.ctx.Done():
				return
			case <-ticker.C:
				f.Flush(f.ctx)
			}
		}
	}()

	f.logger.Info("learning-state flush worker started",
		"interval", f.interval.String(),
	)
}

// Flush persists one snapshot now.
func (f *Flusher) Flush(ctx context.Context) {
	state := f.store.Snapshot()
	if err := f.repo.SaveLearningState(ctx, state); err != nil {
		f.logger.Error("failed to persist learning state", "error", err)
		return
	}
	f.logger.Debug("learning state persisted",
		"updated_at", state.UpdatedAt,
	)
}

// Stop halts the worker and writes a final snapshot.
func (f *Flusher) Stop() {
	f.cancel()
	f.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.Flush(ctx)
}
