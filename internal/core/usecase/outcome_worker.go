package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
)

const (
	defaultPurgeInterval  = time.Hour
	defaultPersistTimeout = 5 * time.Second
)

// OutcomeWorker is the single writer of the retrieval memory: it persists
// outcome events from the subscriber and purges expired rows on a ticker.
type OutcomeWorker struct {
	recorder      ports.OutcomeRecorder
	subscriber    ports.OutcomeSubscriber
	observer      ports.OutcomeWorkerObserver
	purgeInterval time.Duration
}

// NewOutcomeWorker builds a worker. subscriber and observer may be nil; a
// worker without a subscriber only runs the purge loop.
func NewOutcomeWorker(
	recorder ports.OutcomeRecorder,
	subscriber ports.OutcomeSubscriber,
	observer ports.OutcomeWorkerObserver,
	purgeInterval time.Duration,
) *OutcomeWorker {
	if purgeInterval <= 0 {
		purgeInterval = defaultPurgeInterval
	}
	return &OutcomeWorker{
		recorder:      recorder,
		subscriber:    subscriber,
		observer:      observer,
		purgeInterval: purgeInterval,
	}
}

// Run blocks until ctx is done or the subscription fails.
func (w *OutcomeWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.purgeLoop(ctx)
		return nil
	})
	if w.subscriber != nil {
		g.Go(func() error {
			return w.subscriber.SubscribeOutcomes(ctx, w.HandleOutcome)
		})
	}
	return g.Wait()
}

// HandleOutcome persists one outcome event.
func (w *OutcomeWorker) HandleOutcome(ctx context.Context, feedback domain.OutcomeFeedback) error {
	if w.observer != nil {
		w.observer.StartOutcome()
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, defaultPersistTimeout)
	defer cancel()
	err := w.recorder.Record(ctx, feedback)

	if w.observer != nil {
		w.observer.FinishOutcome(time.Since(start), err)
	}
	if err != nil && domain.IsKind(err, domain.ErrInvalidInput) {
		slog.Warn("outcome_rejected", "query_type", string(feedback.QueryType), "error", err)
		return nil
	}
	return err
}

// PurgeOnce removes rows older than the retention window.
func (w *OutcomeWorker) PurgeOnce(ctx context.Context) (int64, error) {
	rows, err := w.recorder.Purge(ctx)
	if err != nil {
		return 0, err
	}
	if w.observer != nil {
		w.observer.ObservePurged(rows)
	}
	return rows, nil
}

func (w *OutcomeWorker) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	for {
		rows, err := w.PurgeOnce(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			slog.Warn("memory_purge_failed", "error", err)
		case rows > 0:
			slog.Info("memory_purged", "rows", rows)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
