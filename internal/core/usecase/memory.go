package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
)

const (
	boostMinRows       = 3
	boostRowLimit      = 100
	boostMinTypeCount  = 2
	hintMinRows        = 5
	hintRowLimit       = 50
	hintSuccessQuality = 0.5
	purgeWindowFactor  = 3
)

var errMemoryDisabled = errors.New("retrieval memory disabled")

type memorySnapshot struct {
	boosts   map[string]float64
	hints    *domain.Thresholds
	loadedAt time.Time
}

// RetrievalMemory learns chunk-type boosts and threshold hints from past
// outcomes. Derived values are cached per query type for a TTL; Refresh drops
// the cache.
type RetrievalMemory struct {
	repo   ports.OutcomeRepository
	window time.Duration
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[domain.QueryType]memorySnapshot
	// gens and epoch advance on Record and Refresh; a load only caches its
	// snapshot if neither moved while it ran.
	gens  map[domain.QueryType]uint64
	epoch uint64
	group singleflight.Group
}

func NewRetrievalMemory(repo ports.OutcomeRepository, decayWindow, cacheTTL time.Duration) *RetrievalMemory {
	if decayWindow <= 0 {
		decayWindow = 30 * 24 * time.Hour
	}
	return &RetrievalMemory{
		repo:   repo,
		window: decayWindow,
		ttl:    cacheTTL,
		now:    time.Now,
		cache:  make(map[domain.QueryType]memorySnapshot),
		gens:   make(map[domain.QueryType]uint64),
	}
}

func (m *RetrievalMemory) enabled() bool {
	return m != nil && m.repo != nil
}

// Record appends one outcome row.
func (m *RetrievalMemory) Record(ctx context.Context, feedback domain.OutcomeFeedback) error {
	if !m.enabled() {
		return errMemoryDisabled
	}
	if strings.TrimSpace(feedback.Query) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record outcome", errors.New("query is required"))
	}

	qt := domain.ParseQueryType(string(feedback.QueryType))
	outcome := domain.MemoryOutcome{
		QueryHash:      HashQuery(feedback.Query),
		QueryType:      qt,
		ChunkTypes:     append([]string(nil), feedback.ChunkTypes...),
		Confidence:     feedback.Confidence,
		Recommendation: feedback.Recommendation,
		OutcomeQuality: clamp(feedback.OutcomeQuality, 0, 1),
		Timestamp:      m.now().UTC(),
	}
	if outcome.ChunkTypes == nil {
		outcome.ChunkTypes = []string{}
	}
	if err := m.repo.InsertOutcome(ctx, outcome); err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "record outcome", err)
	}

	m.mu.Lock()
	delete(m.cache, qt)
	m.gens[qt]++
	m.mu.Unlock()
	return nil
}

// Boosts returns per-chunk-type multipliers in [0.5, 1.5]. An empty map
// means there is not enough history.
func (m *RetrievalMemory) Boosts(ctx context.Context, qt domain.QueryType) (map[string]float64, error) {
	snap, err := m.snapshot(ctx, qt)
	if err != nil {
		return map[string]float64{}, err
	}
	return snap.boosts, nil
}

// ThresholdHints returns learned (high, low) thresholds, or nil without
// enough successful history.
func (m *RetrievalMemory) ThresholdHints(ctx context.Context, qt domain.QueryType) (*domain.Thresholds, error) {
	snap, err := m.snapshot(ctx, qt)
	if err != nil {
		return nil, err
	}
	return snap.hints, nil
}

// Refresh drops every cached snapshot.
func (m *RetrievalMemory) Refresh() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cache = make(map[domain.QueryType]memorySnapshot)
	m.epoch++
	m.mu.Unlock()
}

// Purge removes rows older than three decay windows.
func (m *RetrievalMemory) Purge(ctx context.Context) (int64, error) {
	if !m.enabled() {
		return 0, nil
	}
	n, err := m.repo.PurgeOlderThan(ctx, purgeWindowFactor*m.window)
	if err != nil {
		return 0, domain.WrapError(domain.ErrStoreUnavailable, "purge outcomes", err)
	}
	if n > 0 {
		m.Refresh()
	}
	return n, nil
}

func (m *RetrievalMemory) snapshot(ctx context.Context, qt domain.QueryType) (memorySnapshot, error) {
	if !m.enabled() {
		return memorySnapshot{boosts: map[string]float64{}}, nil
	}

	m.mu.RLock()
	snap, ok := m.cache[qt]
	gen := m.epoch + m.gens[qt]
	m.mu.RUnlock()
	if ok && m.ttl > 0 && m.now().Sub(snap.loadedAt) < m.ttl {
		return snap, nil
	}

	// Keying on the generation keeps callers arriving after a Record from
	// joining a load that started before it.
	key := fmt.Sprintf("%s/%d", qt, gen)
	v, err, _ := m.group.Do(key, func() (any, error) {
		loaded, err := m.load(ctx, qt)
		if err != nil {
			return memorySnapshot{}, err
		}
		if m.ttl > 0 {
			m.mu.Lock()
			if m.epoch+m.gens[qt] == gen {
				m.cache[qt] = loaded
			}
			m.mu.Unlock()
		}
		return loaded, nil
	})
	if err != nil {
		return memorySnapshot{boosts: map[string]float64{}}, err
	}
	return v.(memorySnapshot), nil
}

// load reads the newest rows for boosts and the newest successful rows for
// hints, each capped at what the computation uses.
func (m *RetrievalMemory) load(ctx context.Context, qt domain.QueryType) (memorySnapshot, error) {
	recent, err := m.repo.QueryRecent(ctx, domain.OutcomeQuery{QueryType: qt, Window: m.window, Limit: boostRowLimit})
	if err != nil {
		return memorySnapshot{}, domain.WrapError(domain.ErrStoreUnavailable, "query recent outcomes", err)
	}
	successful, err := m.repo.QueryRecent(ctx, domain.OutcomeQuery{
		QueryType:    qt,
		Window:       m.window,
		QualityAbove: hintSuccessQuality,
		Limit:        hintRowLimit,
	})
	if err != nil {
		return memorySnapshot{}, domain.WrapError(domain.ErrStoreUnavailable, "query successful outcomes", err)
	}
	now := m.now()
	return memorySnapshot{
		boosts:   m.computeBoosts(recent, now),
		hints:    computeThresholdHints(successful),
		loadedAt: now,
	}, nil
}

// computeBoosts expects rows newest first.
func (m *RetrievalMemory) computeBoosts(rows []domain.MemoryOutcome, now time.Time) map[string]float64 {
	boosts := map[string]float64{}
	rows = limitOutcomes(rows, boostRowLimit)
	if len(rows) < boostMinRows {
		return boosts
	}

	windowDays := math.Max(m.window.Hours()/24, 1)
	scores := make(map[string]float64)
	counts := make(map[string]int)
	for _, row := range rows {
		ageDays := math.Floor(now.Sub(row.Timestamp).Hours() / 24)
		if ageDays < 0 {
			ageDays = 0
		}
		weight := row.OutcomeQuality * math.Exp(-ageDays/windowDays)

		seen := make(map[string]struct{}, len(row.ChunkTypes))
		for _, ct := range row.ChunkTypes {
			if _, dup := seen[ct]; dup {
				continue
			}
			seen[ct] = struct{}{}
			scores[ct] += weight
			counts[ct]++
		}
	}
	if len(scores) == 0 {
		return boosts
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	avg := math.Max(total/float64(len(scores)), 0.01)
	for ct, s := range scores {
		if counts[ct] < boostMinTypeCount {
			continue
		}
		boosts[ct] = round(clamp(s/avg, 0.5, 1.5), 3)
	}
	return boosts
}

func computeThresholdHints(rows []domain.MemoryOutcome) *domain.Thresholds {
	successful := make([]domain.MemoryOutcome, 0, len(rows))
	for _, row := range rows {
		if row.OutcomeQuality > hintSuccessQuality {
			successful = append(successful, row)
		}
	}
	successful = limitOutcomes(successful, hintRowLimit)
	if len(successful) < hintMinRows {
		return nil
	}

	sum := 0.0
	for _, row := range successful {
		sum += row.Confidence
	}
	avg := sum / float64(len(successful))
	high := round(clamp(avg*0.95, 0.50, 0.85), 3)
	low := round(math.Max(0.20, high*0.50), 3)
	return &domain.Thresholds{High: high, Low: low}
}

func limitOutcomes(rows []domain.MemoryOutcome, limit int) []domain.MemoryOutcome {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}

// HashQuery is the first 16 hex characters of SHA-256 over the trimmed,
// lower-cased query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])[:16]
}
