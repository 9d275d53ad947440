package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

func newRepoWithMock(t *testing.T) (*OutcomeRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewOutcomeRepository(db, resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}))
	repo.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS retrieval_outcomes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertOutcome(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	ts := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO retrieval_outcomes").
		WithArgs("abc", "conceptual", []byte(`["definition"]`), 0.8, "proceed", 0.9, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertOutcome(context.Background(), domain.MemoryOutcome{
		QueryHash:      "abc",
		QueryType:      domain.QueryConceptual,
		ChunkTypes:     []string{"definition"},
		Confidence:     0.8,
		Recommendation: domain.RecommendProceed,
		OutcomeQuality: 0.9,
		Timestamp:      ts,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertOutcomeRetriesConnectionFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO retrieval_outcomes").WillReturnError(&pgconn.PgError{Code: "08006"})
	mock.ExpectExec("INSERT INTO retrieval_outcomes").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.InsertOutcome(context.Background(), domain.MemoryOutcome{QueryHash: "abc", QueryType: domain.QueryGeneral}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertOutcomeDoesNotRetryConstraintViolation(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO retrieval_outcomes").WillReturnError(&pgconn.PgError{Code: "23502"})

	err := repo.InsertOutcome(context.Background(), domain.MemoryOutcome{QueryHash: "abc"})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23502" {
		t.Fatalf("expected not-null violation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryRecentBindsQualityAndLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"query_hash", "query_type", "chunk_types", "confidence", "recommendation", "outcome_quality", "recorded_at"})
	mock.ExpectQuery("LIMIT \\$4").
		WithArgs("temporal", sqlmock.AnyArg(), 0.5, int64(50)).
		WillReturnRows(rows)

	got, err := repo.QueryRecent(context.Background(), domain.OutcomeQuery{
		QueryType:    domain.QueryTemporal,
		Window:       24 * time.Hour,
		QualityAbove: 0.5,
		Limit:        50,
	})
	if err != nil {
		t.Fatalf("query recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryRecent(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	newer := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	older := time.Date(2026, 2, 20, 11, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"query_hash", "query_type", "chunk_types", "confidence", "recommendation", "outcome_quality", "recorded_at"}).
		AddRow("b", "conceptual", []byte(`["body","definition"]`), 0.4, "expand", 0.3, newer).
		AddRow("a", "conceptual", []byte(`null`), 0.8, "proceed", 0.9, older)
	mock.ExpectQuery("SELECT query_hash, query_type, chunk_types").
		WithArgs("conceptual", time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC), -1.0, nil).
		WillReturnRows(rows)

	got, err := repo.QueryRecent(context.Background(), domain.OutcomeQuery{QueryType: domain.QueryConceptual, Window: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("query recent: %v", err)
	}
	if len(got) != 2 || got[0].QueryHash != "b" || len(got[0].ChunkTypes) != 2 {
		t.Fatalf("unexpected rows %+v", got)
	}
	if got[1].ChunkTypes == nil || len(got[1].ChunkTypes) != 0 {
		t.Fatalf("expected empty chunk types for null json, got %v", got[1].ChunkTypes)
	}
	if got[0].Recommendation != domain.RecommendExpand || !got[1].Timestamp.Equal(older) {
		t.Fatalf("unexpected decoded rows %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM retrieval_outcomes").
		WithArgs(time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.PurgeOlderThan(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
