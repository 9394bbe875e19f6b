package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/learning"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "flusher-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestFlushAndRestore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	store := learning.NewStore(50, nil)
	store.RecordFeedback(domain.FeedbackEvent{
		UserID:        "user-001",
		Verdict:       domain.VerdictFraud,
		Entity:        "fraud@paytm",
		EntityType:    domain.EntityUPIIDs,
		OriginalScore: 10,
	})

	flusher := NewFlusher(store, repo, 0, nil)
	flusher.Flush(ctx)

	// A fresh store restored from the snapshot sees the blacklist entry.
	restored := learning.NewStore(50, nil)
	flusher2 := NewFlusher(restored, repo, 0, nil)
	if err := flusher2.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if !restored.IsBlacklisted("fraud@paytm", domain.EntityUPIIDs) {
		t.Error("expected blacklist entry to survive the round trip")
	}

	metrics := restored.Metrics()
	if metrics.TotalFeedback != 1 {
		t.Errorf("expected 1 feedback event after restore, got %d", metrics.TotalFeedback)
	}
}

func TestRestoreFreshDatabase(t *testing.T) {
	repo := newTestRepo(t)

	store := learning.NewStore(50, nil)
	flusher := NewFlusher(store, repo, 0, nil)

	if err := flusher.Restore(context.Background()); err != nil {
		t.Fatalf("Restore on empty database should not error: %v", err)
	}
}

func TestPeriodicFlush(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	store := learning.NewStore(50, nil)
	flusher := NewFlusher(store, repo, 20*time.Millisecond, nil)
	flusher.Start()

	time.Sleep(60 * time.Millisecond)
	flusher.Stop()

	if _, err := repo.LoadLearningState(ctx); err != nil {
		t.Fatalf("expected persisted state after periodic flush: %v", err)
	}
}

func TestStopFlushesFinalSnapshot(t *testing.T) {
	repo := newTestRepo(t)

	store := learning.NewStore(50, nil)
	flusher := NewFlusher(store, repo, 0, nil) // periodic flush disabled
	flusher.Start()
	flusher.Stop()

	if _, err := repo.LoadLearningState(context.Background()); err != nil {
		t.Fatalf("expected final snapshot on stop: %v", err)
	}
}
