package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

const schemaLockID = int64(2026031501)

// OutcomeRepository keeps retrieval outcomes in Postgres so several API
// replicas and workers share one memory.
type OutcomeRepository struct {
	db       *sql.DB
	executor *resilience.Executor
	now      func() time.Time
}

func NewOutcomeRepository(db *sql.DB, executor *resilience.Executor) *OutcomeRepository {
	return &OutcomeRepository{db: db, executor: executor, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *OutcomeRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS retrieval_outcomes (
	id BIGSERIAL PRIMARY KEY,
	query_hash TEXT NOT NULL,
	query_type TEXT NOT NULL DEFAULT 'general',
	chunk_types JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	recommendation TEXT NOT NULL DEFAULT 'proceed',
	outcome_quality DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_outcomes_type_time ON retrieval_outcomes(query_type, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_retrieval_outcomes_recorded_at ON retrieval_outcomes(recorded_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
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

	return r.executor.Execute(ctx, "postgres.insert_outcome", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO retrieval_outcomes (query_hash, query_type, chunk_types, confidence, recommendation, outcome_quality, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, outcome.QueryHash, string(outcome.QueryType), chunkTypesJSON, outcome.Confidence,
			string(outcome.Recommendation), outcome.OutcomeQuality, ts.UTC())
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
		return nil
	}, classifyPostgresError)
}

func (r *OutcomeRepository) QueryRecent(ctx context.Context, query domain.OutcomeQuery) ([]domain.MemoryOutcome, error) {
	cutoff := r.now().Add(-query.Window).UTC()
	// LIMIT NULL is LIMIT ALL.
	var limit any
	if query.Limit > 0 {
		limit = query.Limit
	}
	return resilience.Do(ctx, r.executor, "postgres.query_recent", func(ctx context.Context) ([]domain.MemoryOutcome, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT query_hash, query_type, chunk_types, confidence, recommendation, outcome_quality, recorded_at
FROM retrieval_outcomes
WHERE query_type = $1 AND recorded_at >= $2 AND outcome_quality > $3
ORDER BY recorded_at DESC, id DESC
LIMIT $4
`, string(query.QueryType), cutoff, query.QualityFloor(), limit)
		if err != nil {
			return nil, fmt.Errorf("query recent outcomes: %w", err)
		}
		defer rows.Close()

		out := make([]domain.MemoryOutcome, 0)
		for rows.Next() {
			var (
				item           domain.MemoryOutcome
				qt, rec        string
				chunkTypesJSON []byte
			)
			if err := rows.Scan(&item.QueryHash, &qt, &chunkTypesJSON, &item.Confidence, &rec, &item.OutcomeQuality, &item.Timestamp); err != nil {
				return nil, fmt.Errorf("scan outcome: %w", err)
			}
			item.QueryType = domain.QueryType(qt)
			item.Recommendation = domain.Recommendation(rec)
			if err := json.Unmarshal(chunkTypesJSON, &item.ChunkTypes); err != nil || item.ChunkTypes == nil {
				item.ChunkTypes = []string{}
			}
			out = append(out, item)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate outcomes: %w", err)
		}
		return out, nil
	}, classifyPostgresError)
}

func (r *OutcomeRepository) PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := r.now().Add(-window).UTC()
	return resilience.Do(ctx, r.executor, "postgres.purge_outcomes", func(ctx context.Context) (int64, error) {
		res, err := r.db.ExecContext(ctx, `DELETE FROM retrieval_outcomes WHERE recorded_at < $1`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("purge outcomes: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("purge rows affected: %w", err)
		}
		return n, nil
	}, classifyPostgresError)
}

// Connection class (08), serialization failure and deadlock are retried.
func classifyPostgresError(err error) resilience.ErrorClassification {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08",
			pgErr.Code == "40001",
			pgErr.Code == "40P01":
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.DomainClassifier(err)
}
