// Package postgres persists anonymous model-inference metrics. Records carry
// latency and confidence only; wallet addresses, commitments, and scores are
// deliberately absent from the schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
)

type InferenceRepository struct {
	db *sql.DB
}

func NewInferenceRepository(db *sql.DB) *InferenceRepository {
	return &InferenceRepository{db: db}
}

// EnsureSchema creates the metrics table on startup. Idempotent.
func (r *InferenceRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS model_inferences (
    id BIGSERIAL PRIMARY KEY,
    model_version TEXT NOT NULL,
    latency_ms DOUBLE PRECISION NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    success BOOLEAN NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL
)
`)
	if err != nil {
		return fmt.Errorf("ensure model_inferences schema: %w", err)
	}
	return nil
}

func (r *InferenceRepository) RecordInference(ctx context.Context, rec domain.ModelInference) error {
	observedAt := rec.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO model_inferences (model_version, latency_ms, confidence, success, observed_at)
VALUES ($1,$2,$3,$4,$5)
`, rec.ModelVersion, rec.LatencyMS, rec.Confidence, rec.Success, observedAt)
	if err != nil {
		return fmt.Errorf("record inference: %w", err)
	}
	return nil
}

// InferenceStats aggregates the monitoring view over a trailing window.
type InferenceStats struct {
	Count         int64
	SuccessRate   float64
	AvgLatencyMS  float64
	AvgConfidence float64
}

func (r *InferenceRepository) Stats(ctx context.Context, modelVersion string, since time.Time) (*InferenceStats, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0),
       COALESCE(AVG(latency_ms), 0),
       COALESCE(AVG(confidence), 0)
FROM model_inferences
WHERE model_version = $1 AND observed_at >= $2
`, modelVersion, since)

	var stats InferenceStats
	if err := row.Scan(&stats.Count, &stats.SuccessRate, &stats.AvgLatencyMS, &stats.AvgConfidence); err != nil {
		return nil, fmt.Errorf("inference stats: %w", err)
	}
	return &stats, nil
}
