package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/veilproof/riskscope/internal/core/domain"
)

func TestRecordInferencePersistsAnonymousFieldsOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewInferenceRepository(db)
	observed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO model_inferences").
		WithArgs("heuristic-v1", 42.5, 0.85, true, observed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.RecordInference(context.Background(), domain.ModelInference{
		ModelVersion: "heuristic-v1",
		LatencyMS:    42.5,
		Confidence:   0.85,
		Success:      true,
		ObservedAt:   observed,
	})
	if err != nil {
		t.Fatalf("RecordInference() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordInferenceDefaultsObservedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewInferenceRepository(db)
	mock.ExpectExec("INSERT INTO model_inferences").
		WithArgs("heuristic-v1", 1.0, 0.5, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.RecordInference(context.Background(), domain.ModelInference{
		ModelVersion: "heuristic-v1",
		LatencyMS:    1.0,
		Confidence:   0.5,
	})
	if err != nil {
		t.Fatalf("RecordInference() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatsAggregatesWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewInferenceRepository(db)
	since := time.Now().Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{"count", "success_rate", "avg_latency", "avg_confidence"}).
		AddRow(120, 0.975, 38.2, 0.81)
	mock.ExpectQuery("FROM model_inferences").
		WithArgs("heuristic-v1", since).
		WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), "heuristic-v1", since)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Count != 120 || stats.SuccessRate != 0.975 {
		t.Fatalf("stats = %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
