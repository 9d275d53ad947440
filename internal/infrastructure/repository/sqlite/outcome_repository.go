package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

// Fixed width so lexical order in TEXT columns matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS retrieval_outcomes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	query_hash      TEXT NOT NULL,
	query_type      TEXT NOT NULL DEFAULT 'general',
	chunk_types     TEXT NOT NULL DEFAULT '[]',
	confidence      REAL NOT NULL DEFAULT 0.0,
	recommendation  TEXT NOT NULL DEFAULT 'proceed',
	outcome_quality REAL NOT NULL DEFAULT 0.0,
	timestamp       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ro_query_type ON retrieval_outcomes(query_type);
CREATE INDEX IF NOT EXISTS idx_ro_timestamp ON retrieval_outcomes(timestamp);
`

// OutcomeRepository is the embedded retrieval memory store. Reads run
// concurrently under WAL; writes go through a single mutex.
type OutcomeRepository struct {
	db       *sql.DB
	executor *resilience.Executor
	now      func() time.Time

	writeMu sync.Mutex
}

// Open creates the database file (and its directory) when missing and runs
// the schema migration.
func Open(path string, executor *resilience.Executor) (*OutcomeRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &OutcomeRepository{db: db, executor: executor, now: time.Now}, nil
}

func (r *OutcomeRepository) Close() error {
	return r.db.Close()
}

func (r *OutcomeRepository) InsertOutcome(ctx context.Context, outcome domain.MemoryOutcome) error {
	chunkTypes := outcome.ChunkTypes
	if chunkTypes == nil {
		chunkTypes = []string{}
	}
	chunkTypesJSON, err := json.Marshal(chunkTypes)
	if err != nil {
		return fmt.Errorf("marshal chunk types: %w", err)
	}
	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.executor.Execute(ctx, "sqlite.insert_outcome", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO retrieval_outcomes (query_hash, query_type, chunk_types, confidence, recommendation, outcome_quality, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			outcome.QueryHash, string(outcome.QueryType), string(chunkTypesJSON), outcome.Confidence,
			string(outcome.Recommendation), outcome.OutcomeQuality, ts.UTC().Format(timestampLayout),
		)
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
		return nil
	}, classifySQLiteError)
}

// QueryRecent returns outcomes of one query type newer than now-window, newest first.
func (r *OutcomeRepository) QueryRecent(ctx context.Context, query domain.OutcomeQuery) ([]domain.MemoryOutcome, error) {
	cutoff := r.now().Add(-query.Window).UTC().Format(timestampLayout)
	limit := query.Limit
	if limit <= 0 {
		limit = -1
	}
	return resilience.Do(ctx, r.executor, "sqlite.query_recent", func(ctx context.Context) ([]domain.MemoryOutcome, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT query_hash, query_type, chunk_types, confidence, recommendation, outcome_quality, timestamp
FROM retrieval_outcomes
WHERE query_type = ? AND timestamp >= ? AND outcome_quality > ?
ORDER BY timestamp DESC, id DESC
LIMIT ?`, string(query.QueryType), cutoff, query.QualityFloor(), limit)
		if err != nil {
			return nil, fmt.Errorf("query recent outcomes: %w", err)
		}
		defer rows.Close()

		out := make([]domain.MemoryOutcome, 0)
		for rows.Next() {
			var (
				item           domain.MemoryOutcome
				qt, rec, ts    string
				chunkTypesJSON string
			)
			if err := rows.Scan(&item.QueryHash, &qt, &chunkTypesJSON, &item.Confidence, &rec, &item.OutcomeQuality, &ts); err != nil {
				return nil, fmt.Errorf("scan outcome: %w", err)
			}
			item.QueryType = domain.QueryType(qt)
			item.Recommendation = domain.Recommendation(rec)
			if err := json.Unmarshal([]byte(chunkTypesJSON), &item.ChunkTypes); err != nil {
				item.ChunkTypes = []string{}
			}
			item.Timestamp, err = time.Parse(timestampLayout, ts)
			if err != nil {
				return nil, fmt.Errorf("parse outcome timestamp %q: %w", ts, err)
			}
			out = append(out, item)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate outcomes: %w", err)
		}
		return out, nil
	}, classifySQLiteError)
}

func (r *OutcomeRepository) PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := r.now().Add(-window).UTC().Format(timestampLayout)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return resilience.Do(ctx, r.executor, "sqlite.purge_outcomes", func(ctx context.Context) (int64, error) {
		res, err := r.db.ExecContext(ctx, `DELETE FROM retrieval_outcomes WHERE timestamp < ?`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("purge outcomes: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("purge rows affected: %w", err)
		}
		return n, nil
	}, classifySQLiteError)
}

// Busy and locked errors clear once the other writer commits.
func classifySQLiteError(err error) resilience.ErrorClassification {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.DomainClassifier(err)
}
