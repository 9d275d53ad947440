package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

type recorderFake struct {
	mu        sync.Mutex
	recorded  []domain.OutcomeFeedback
	recordErr error
	purges    int
	purged    int64
	purgeErr  error
}

func (f *recorderFake) Record(_ context.Context, feedback domain.OutcomeFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, feedback)
	return nil
}

func (f *recorderFake) Purge(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return f.purged, f.purgeErr
}

func (f *recorderFake) snapshot() ([]domain.OutcomeFeedback, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OutcomeFeedback(nil), f.recorded...), f.purges
}

type subscriberFake struct {
	events    []domain.OutcomeFeedback
	delivered chan struct{}
	err       error
}

func (f *subscriberFake) SubscribeOutcomes(ctx context.Context, handler func(context.Context, domain.OutcomeFeedback) error) error {
	if f.err != nil {
		return f.err
	}
	for _, event := range f.events {
		_ = handler(ctx, event)
	}
	close(f.delivered)
	<-ctx.Done()
	return nil
}

type workerObserverFake struct {
	mu       sync.Mutex
	started  int
	finished []error
	purged   []int64
}

func (f *workerObserverFake) StartOutcome() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *workerObserverFake) FinishOutcome(_ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, err)
}

func (f *workerObserverFake) ObservePurged(rows int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, rows)
}

func TestOutcomeWorkerRunPersistsAndPurges(t *testing.T) {
	recorder := &recorderFake{purged: 3}
	subscriber := &subscriberFake{
		events: []domain.OutcomeFeedback{
			{Query: "what is entropy", QueryType: domain.QueryConceptual, OutcomeQuality: 0.9},
			{Query: "compare a and b", QueryType: domain.QueryComparative, OutcomeQuality: 0.4},
		},
		delivered: make(chan struct{}),
	}
	observer := &workerObserverFake{}
	worker := NewOutcomeWorker(recorder, subscriber, observer, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	select {
	case <-subscriber.delivered:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for deliveries")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for worker to stop")
	}

	recorded, purges := recorder.snapshot()
	if len(recorded) != 2 || recorded[1].QueryType != domain.QueryComparative {
		t.Fatalf("unexpected recorded outcomes %+v", recorded)
	}
	if purges < 1 {
		t.Fatalf("expected purge at startup")
	}
	observer.mu.Lock()
	defer observer.mu.Unlock()
	if observer.started != 2 || len(observer.finished) != 2 || observer.finished[0] != nil {
		t.Fatalf("unexpected observer state %+v", observer)
	}
	if len(observer.purged) < 1 || observer.purged[0] != 3 {
		t.Fatalf("expected purged rows to be observed, got %v", observer.purged)
	}
}

func TestOutcomeWorkerRunReturnsSubscribeError(t *testing.T) {
	worker := NewOutcomeWorker(&recorderFake{}, &subscriberFake{err: errors.New("nats down")}, nil, time.Hour)
	err := worker.Run(context.Background())
	if err == nil || err.Error() != "nats down" {
		t.Fatalf("expected subscribe error, got %v", err)
	}
}

func TestOutcomeWorkerHandleOutcomeErrors(t *testing.T) {
	invalid := &recorderFake{recordErr: domain.WrapError(domain.ErrInvalidInput, "record outcome", errors.New("query is required"))}
	observer := &workerObserverFake{}
	if err := NewOutcomeWorker(invalid, nil, observer, 0).HandleOutcome(context.Background(), domain.OutcomeFeedback{}); err != nil {
		t.Fatalf("expected invalid outcomes to be dropped, got %v", err)
	}
	if len(observer.finished) != 1 || observer.finished[0] == nil {
		t.Fatalf("expected failure to be observed, got %v", observer.finished)
	}

	unavailable := &recorderFake{recordErr: domain.WrapError(domain.ErrStoreUnavailable, "record outcome", errors.New("locked"))}
	err := NewOutcomeWorker(unavailable, nil, nil, 0).HandleOutcome(context.Background(), domain.OutcomeFeedback{Query: "q"})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOutcomeWorkerPurgeOnceError(t *testing.T) {
	observer := &workerObserverFake{}
	recorder := &recorderFake{purgeErr: errors.New("disk io")}
	if _, err := NewOutcomeWorker(recorder, nil, observer, 0).PurgeOnce(context.Background()); err == nil {
		t.Fatalf("expected purge error")
	}
	if len(observer.purged) != 0 {
		t.Fatalf("expected no purge observation on error")
	}
}

func TestOutcomeWorkerWithRealMemory(t *testing.T) {
	repo := &outcomeRepoFake{}
	memory := NewRetrievalMemory(repo, 24*time.Hour, time.Minute)
	worker := NewOutcomeWorker(memory, nil, nil, 0)

	err := worker.HandleOutcome(context.Background(), domain.OutcomeFeedback{
		Query:          "what is entropy",
		QueryType:      domain.QueryConceptual,
		ChunkTypes:     []string{"definition"},
		OutcomeQuality: 0.8,
	})
	if err != nil {
		t.Fatalf("HandleOutcome() error = %v", err)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.inserted) != 1 || repo.inserted[0].QueryHash != HashQuery("what is entropy") {
		t.Fatalf("expected 1 hashed insert, got %+v", repo.inserted)
	}
}
