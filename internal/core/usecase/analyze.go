package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
)

// Stage progress values for the risk pipeline. Stages run sequentially, so
// progress for one task is strictly ordered.
const (
	progressSubmitted = 10
	progressCollected = 40
	progressScored    = 60
	progressPassport  = 80
	progressFinal     = 100
)

// RiskAnalysisUseCase is the worker-side pipeline for one risk-analysis task.
//
// The wallet address arrives in the queue message, lives in locals for the
// duration of the handler, and is never written to the cache, the result
// payload, or logs beyond a redacted prefix.
type RiskAnalysisUseCase struct {
	cache     ports.TaskCache
	tracker   *StatusTracker
	results   ports.ResultPublisher
	indexer   ports.ChainIndexer
	scorer    ports.RiskScorer
	passports ports.PassportIssuer
	metrics   ports.ModelMetricsRecorder
	ttls      ResultTTLs
}

// ResultTTLs sets the cache lifetime of the two result namespaces
// independently: the task result serves pollers, the commitment analysis
// serves future cache hits.
type ResultTTLs struct {
	Result   time.Duration
	Analysis time.Duration
}

func (t ResultTTLs) normalize() ResultTTLs {
	if t.Result <= 0 {
		t.Result = time.Hour
	}
	if t.Analysis <= 0 {
		t.Analysis = 30 * time.Minute
	}
	return t
}

func NewRiskAnalysisUseCase(
	cache ports.TaskCache,
	tracker *StatusTracker,
	results ports.ResultPublisher,
	indexer ports.ChainIndexer,
	scorer ports.RiskScorer,
	passports ports.PassportIssuer,
	metrics ports.ModelMetricsRecorder,
	ttls ResultTTLs,
) *RiskAnalysisUseCase {
	return &RiskAnalysisUseCase{
		cache:     cache,
		tracker:   tracker,
		results:   results,
		indexer:   indexer,
		scorer:    scorer,
		passports: passports,
		metrics:   metrics,
		ttls:      ttls.normalize(),
	}
}

// ProcessRiskTask runs the staged pipeline. A returned error means "do not
// commit the offset": the queue redelivers and the pipeline re-runs. A nil
// return with a FAILED status is a terminal computation failure.
func (uc *RiskAnalysisUseCase) ProcessRiskTask(ctx context.Context, msg domain.RiskTaskMessage) error {
	log := slog.With(
		"task_id", msg.TaskID,
		"commitment", domain.Redact(msg.Commitment),
	)

	// Redelivery short-circuit: a terminal task is done, commit and move on.
	if state, err := uc.cache.TaskState(ctx, msg.TaskID); err != nil {
		return fmt.Errorf("read task state: %w", err)
	} else if state != nil && state.Status.Terminal() {
		log.Info("risk_task_already_terminal", "status", state.Status)
		return nil
	}

	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, progressSubmitted, "request submitted"); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	startedAt := time.Now()
	summary, err := uc.indexer.WalletActivity(ctx, msg.WalletAddress)
	if err != nil {
		if ctx.Err() != nil {
			// Timeout or shutdown: no commit, the queue redelivers.
			return fmt.Errorf("collect wallet activity: %w", err)
		}
		log.Error("risk_data_collection_failed", "error", err)
		return uc.fail(ctx, msg.TaskID, progressSubmitted, domain.WrapError(domain.ErrComputation, "collect wallet activity", err))
	}
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, progressCollected, "blockchain data collected"); err != nil {
		return fmt.Errorf("set progress=%d: %w", progressCollected, err)
	}
	log.Info("risk_activity_collected",
		"tx_count", summary.TotalTransactions,
		"wallet_age_days", summary.WalletAgeDays,
	)

	assessment := uc.scorer.Score(*summary)
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, progressScored, "risk score calculated"); err != nil {
		return fmt.Errorf("set progress=%d: %w", progressScored, err)
	}
	log.Info("risk_score_calculated", "band", assessment.RiskBand)

	passport, perr := uc.passports.IssuePassport(ctx, msg.Commitment, assessment.RiskScore)
	if perr != nil {
		// Partial-success policy: an assessment without a claimable
		// credential is still useful.
		log.Warn("passport_generation_failed", "error", perr)
		assessment.Passport = domain.Passport{
			Status: domain.PassportGenerationFailed,
			Error:  perr.Error(),
		}
	} else {
		assessment.Passport = *passport
	}
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, progressPassport, "generating passport"); err != nil {
		return fmt.Errorf("set progress=%d: %w", progressPassport, err)
	}

	payload, err := json.Marshal(assessment)
	if err != nil {
		return uc.fail(ctx, msg.TaskID, progressPassport, domain.WrapError(domain.ErrComputation, "encode assessment", err))
	}

	if err := uc.results.PublishRiskResult(ctx, domain.TaskResultMessage{
		TaskID:      msg.TaskID,
		Status:      domain.TaskCompleted,
		Result:      payload,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		// Losing the terminal write would strand the task in PROCESSING;
		// leave the offset uncommitted so the pipeline re-runs.
		return fmt.Errorf("publish risk result: %w", err)
	}

	if err := uc.cache.SetTaskResult(ctx, msg.TaskID, payload, uc.ttls.Result); err != nil {
		return fmt.Errorf("store task result: %w", err)
	}
	if err := uc.cache.SetCommitmentAnalysis(ctx, msg.Commitment, payload, uc.ttls.Analysis); err != nil {
		return fmt.Errorf("store commitment analysis: %w", err)
	}
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskCompleted, progressFinal, "analysis complete"); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}

	uc.recordInference(assessment, time.Since(startedAt))

	log.Info("risk_analysis_completed",
		"passport_status", assessment.Passport.Status,
		"duration_ms", float64(time.Since(startedAt).Microseconds())/1000.0,
	)
	return nil
}

// fail records a terminal FAILED state. Progress keeps its last reported
// value so pollers never observe it moving backwards.
func (uc *RiskAnalysisUseCase) fail(ctx context.Context, taskID string, progress int, cause error) error {
	if err := uc.results.PublishRiskResult(ctx, domain.TaskResultMessage{
		TaskID:      taskID,
		Status:      domain.TaskFailed,
		Error:       cause.Error(),
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		return errors.Join(cause, fmt.Errorf("publish failure result: %w", err))
	}
	if err := uc.tracker.Set(ctx, taskID, domain.TaskFailed, progress, "analysis failed: "+cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("set status=failed: %w", err))
	}
	return nil
}

// recordInference persists anonymous model metrics off the hot path.
// Failures are invisible to the task.
func (uc *RiskAnalysisUseCase) recordInference(assessment domain.RiskAssessment, elapsed time.Duration) {
	if uc.metrics == nil {
		return
	}
	rec := domain.ModelInference{
		ModelVersion: "heuristic-v1",
		LatencyMS:    float64(elapsed.Microseconds()) / 1000.0,
		Confidence:   assessment.Confidence,
		Success:      true,
		ObservedAt:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.metrics.RecordInference(ctx, rec); err != nil {
			slog.Debug("model_metrics_record_failed", "error", err)
		}
	}()
}
