package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

type outcomeRepoFake struct {
	mu         sync.Mutex
	rows       []domain.MemoryOutcome
	inserted   []domain.MemoryOutcome
	queryCalls int
	purgeCalls int
	purged     int64
	insertErr  error
	queryErr   error
	queries    []domain.OutcomeQuery

	// loadStarted and releaseLoad, when set, pause the next boosts query.
	loadStarted chan struct{}
	releaseLoad chan struct{}
}

func (f *outcomeRepoFake) InsertOutcome(_ context.Context, outcome domain.MemoryOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, outcome)
	return nil
}

// QueryRecent counts one call per snapshot load: the unfiltered boosts query.
func (f *outcomeRepoFake) QueryRecent(_ context.Context, q domain.OutcomeQuery) ([]domain.MemoryOutcome, error) {
	f.mu.Lock()
	started, release := f.loadStarted, f.releaseLoad
	if q.QualityAbove == 0 {
		f.queryCalls++
		f.loadStarted, f.releaseLoad = nil, nil
	}
	f.mu.Unlock()
	if q.QualityAbove == 0 && started != nil {
		close(started)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]domain.MemoryOutcome, 0, len(f.rows))
	for _, row := range f.rows {
		if q.QualityAbove > 0 && row.OutcomeQuality <= q.QualityAbove {
			continue
		}
		out = append(out, row)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *outcomeRepoFake) PurgeOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeCalls++
	return f.purged, nil
}

func (f *outcomeRepoFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls
}

func newTestMemory(repo *outcomeRepoFake, ttl time.Duration, now time.Time) *RetrievalMemory {
	m := NewRetrievalMemory(repo, 30*24*time.Hour, ttl)
	m.now = func() time.Time { return now }
	return m
}

func TestRetrievalMemoryBoostsNeedHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &outcomeRepoFake{rows: []domain.MemoryOutcome{
		{ChunkTypes: []string{"definition"}, OutcomeQuality: 1, Timestamp: now},
		{ChunkTypes: []string{"definition"}, OutcomeQuality: 1, Timestamp: now},
	}}
	boosts, err := newTestMemory(repo, 0, now).Boosts(context.Background(), domain.QueryConceptual)
	if err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if len(boosts) != 0 {
		t.Fatalf("expected no boosts with two rows, got %v", boosts)
	}
}

func TestRetrievalMemoryBoosts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &outcomeRepoFake{rows: []domain.MemoryOutcome{
		{ChunkTypes: []string{"definition", "body"}, OutcomeQuality: 1, Timestamp: now},
		{ChunkTypes: []string{"definition", "definition"}, OutcomeQuality: 1, Timestamp: now.Add(-time.Hour)},
		{ChunkTypes: []string{"body", "definition"}, OutcomeQuality: 0.5, Timestamp: now.Add(-2 * time.Hour)},
		{ChunkTypes: []string{"results"}, OutcomeQuality: 1, Timestamp: now.Add(-3 * time.Hour)},
	}}
	boosts, err := newTestMemory(repo, 0, now).Boosts(context.Background(), domain.QueryConceptual)
	if err != nil {
		t.Fatalf("boosts: %v", err)
	}
	// definition 2.5, body 1.5, results 1.0 -> avg 5/3
	if boosts["definition"] != 1.5 {
		t.Fatalf("expected definition boost capped at 1.5, got %v", boosts)
	}
	if boosts["body"] != 0.9 {
		t.Fatalf("expected body boost 0.9, got %v", boosts)
	}
	if _, ok := boosts["results"]; ok {
		t.Fatalf("expected single-use chunk type to be skipped, got %v", boosts)
	}
}

func TestRetrievalMemoryBoostsDecayWithAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-30 * 24 * time.Hour)
	repo := &outcomeRepoFake{rows: []domain.MemoryOutcome{
		{ChunkTypes: []string{"definition", "body"}, OutcomeQuality: 1, Timestamp: now},
		{ChunkTypes: []string{"definition"}, OutcomeQuality: 1, Timestamp: now},
		{ChunkTypes: []string{"body"}, OutcomeQuality: 1, Timestamp: old},
	}}
	boosts, err := newTestMemory(repo, 0, now).Boosts(context.Background(), domain.QueryGeneral)
	if err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if boosts["definition"] <= boosts["body"] {
		t.Fatalf("expected older body outcomes to weigh less, got %v", boosts)
	}
}

func TestRetrievalMemoryThresholdHints(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]domain.MemoryOutcome, 0, 6)
	for i := 0; i < 4; i++ {
		rows = append(rows, domain.MemoryOutcome{Confidence: 0.8, OutcomeQuality: 0.9, Timestamp: now})
	}
	rows = append(rows, domain.MemoryOutcome{Confidence: 0.1, OutcomeQuality: 0.2, Timestamp: now})
	repo := &outcomeRepoFake{rows: rows}

	hints, err := newTestMemory(repo, 0, now).ThresholdHints(context.Background(), domain.QueryGeneral)
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if hints != nil {
		t.Fatalf("expected nil hints with four successful rows, got %+v", hints)
	}

	repo.rows = append(repo.rows, domain.MemoryOutcome{Confidence: 0.8, OutcomeQuality: 0.9, Timestamp: now})
	hints, err = newTestMemory(repo, 0, now).ThresholdHints(context.Background(), domain.QueryGeneral)
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if hints == nil || hints.High != 0.76 || hints.Low != 0.38 {
		t.Fatalf("expected (0.76, 0.38), got %+v", hints)
	}
}

func TestRetrievalMemoryRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &outcomeRepoFake{}
	m := newTestMemory(repo, 0, now)

	err := m.Record(context.Background(), domain.OutcomeFeedback{
		Query:          "  What IS Entropy ",
		QueryType:      "Conceptual",
		ChunkTypes:     []string{"definition"},
		Confidence:     0.7,
		Recommendation: domain.RecommendProceed,
		OutcomeQuality: 1.4,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one inserted row, got %d", len(repo.inserted))
	}
	row := repo.inserted[0]
	if row.QueryHash != HashQuery("what is entropy") || row.QueryType != domain.QueryConceptual {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.OutcomeQuality != 1 || !row.Timestamp.Equal(now) {
		t.Fatalf("expected clamped quality and injected clock, got %+v", row)
	}
}

func TestRetrievalMemoryRecordErrors(t *testing.T) {
	repo := &outcomeRepoFake{insertErr: errors.New("disk full")}
	m := NewRetrievalMemory(repo, 0, 0)

	err := m.Record(context.Background(), domain.OutcomeFeedback{Query: "q"})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	err = m.Record(context.Background(), domain.OutcomeFeedback{Query: "   "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	var disabled *RetrievalMemory
	if err := disabled.Record(context.Background(), domain.OutcomeFeedback{Query: "q"}); !errors.Is(err, errMemoryDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestRetrievalMemoryCache(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &outcomeRepoFake{}
	m := newTestMemory(repo, time.Minute, now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Boosts(ctx, domain.QueryGeneral); err != nil {
			t.Fatalf("boosts: %v", err)
		}
	}
	if repo.calls() != 1 {
		t.Fatalf("expected cached snapshot, got %d queries", repo.calls())
	}

	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := m.ThresholdHints(ctx, domain.QueryGeneral); err != nil {
		t.Fatalf("hints: %v", err)
	}
	if repo.calls() != 2 {
		t.Fatalf("expected reload after ttl, got %d queries", repo.calls())
	}

	m.Refresh()
	if _, err := m.Boosts(ctx, domain.QueryGeneral); err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if repo.calls() != 3 {
		t.Fatalf("expected reload after refresh, got %d queries", repo.calls())
	}

	if err := m.Record(ctx, domain.OutcomeFeedback{Query: "q", QueryType: domain.QueryGeneral}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := m.Boosts(ctx, domain.QueryGeneral); err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if repo.calls() != 4 {
		t.Fatalf("expected reload after record, got %d queries", repo.calls())
	}
}

func TestRetrievalMemoryQueriesAreBounded(t *testing.T) {
	repo := &outcomeRepoFake{}
	if _, err := NewRetrievalMemory(repo, time.Hour, 0).Boosts(context.Background(), domain.QueryTemporal); err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if len(repo.queries) != 2 {
		t.Fatalf("expected boosts and hints queries, got %+v", repo.queries)
	}
	recent, successful := repo.queries[0], repo.queries[1]
	if recent.Limit != boostRowLimit || recent.QualityAbove != 0 || recent.QueryType != domain.QueryTemporal || recent.Window != time.Hour {
		t.Fatalf("unexpected boosts query %+v", recent)
	}
	if successful.Limit != hintRowLimit || successful.QualityAbove != hintSuccessQuality {
		t.Fatalf("unexpected hints query %+v", successful)
	}
}

func TestRetrievalMemoryDropsSnapshotLoadedAcrossRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &outcomeRepoFake{
		loadStarted: make(chan struct{}),
		releaseLoad: make(chan struct{}),
	}
	started, release := repo.loadStarted, repo.releaseLoad
	m := newTestMemory(repo, time.Hour, now)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.Boosts(ctx, domain.QueryGeneral)
		done <- err
	}()

	<-started
	if err := m.Record(ctx, domain.OutcomeFeedback{Query: "q", QueryType: domain.QueryGeneral}); err != nil {
		t.Fatalf("record: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("boosts: %v", err)
	}

	if _, err := m.Boosts(ctx, domain.QueryGeneral); err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if repo.calls() != 2 {
		t.Fatalf("expected the load that raced Record not to be cached, got %d loads", repo.calls())
	}
	if _, err := m.Boosts(ctx, domain.QueryGeneral); err != nil {
		t.Fatalf("boosts: %v", err)
	}
	if repo.calls() != 2 {
		t.Fatalf("expected the fresh load to be cached, got %d loads", repo.calls())
	}
}

func TestRetrievalMemoryConcurrentAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]domain.MemoryOutcome, 0, 6)
	for i := 0; i < 6; i++ {
		rows = append(rows, domain.MemoryOutcome{ChunkTypes: []string{"definition", "body"}, Confidence: 0.8, OutcomeQuality: 0.9, Timestamp: now})
	}
	repo := &outcomeRepoFake{rows: rows}
	m := newTestMemory(repo, time.Minute, now)
	ctx := context.Background()
	types := []domain.QueryType{domain.QueryGeneral, domain.QueryConceptual, domain.QueryTemporal}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 50; i++ {
		qt := types[i%len(types)]
		wg.Add(4)
		go func() {
			defer wg.Done()
			if _, err := m.Boosts(ctx, qt); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := m.ThresholdHints(ctx, qt); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			errs <- m.Record(ctx, domain.OutcomeFeedback{Query: "q", QueryType: qt, OutcomeQuality: 0.9})
		}()
		go func() {
			defer wg.Done()
			m.Refresh()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent memory access: %v", err)
		}
	}

	repo.mu.Lock()
	inserted := len(repo.inserted)
	repo.mu.Unlock()
	if inserted != 50 {
		t.Fatalf("expected 50 recorded outcomes, got %d", inserted)
	}
	boosts, err := m.Boosts(ctx, domain.QueryGeneral)
	if err != nil || boosts["definition"] == 0 {
		t.Fatalf("expected boosts after concurrent use, got %v (%v)", boosts, err)
	}
}

func TestRetrievalMemoryQueryError(t *testing.T) {
	repo := &outcomeRepoFake{queryErr: errors.New("locked")}
	boosts, err := NewRetrievalMemory(repo, 0, 0).Boosts(context.Background(), domain.QueryGeneral)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if boosts == nil || len(boosts) != 0 {
		t.Fatalf("expected empty non-nil boosts, got %v", boosts)
	}
}

func TestRetrievalMemoryPurge(t *testing.T) {
	repo := &outcomeRepoFake{purged: 4}
	n, err := NewRetrievalMemory(repo, time.Hour, 0).Purge(context.Background())
	if err != nil || n != 4 || repo.purgeCalls != 1 {
		t.Fatalf("unexpected purge result n=%d err=%v calls=%d", n, err, repo.purgeCalls)
	}
}

func TestHashQuery(t *testing.T) {
	a := HashQuery("  What is Entropy?")
	b := HashQuery("what is entropy?")
	if a != b {
		t.Fatalf("expected normalized hashes to match: %s %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex characters, got %q", a)
	}
}
