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

// Stage progress values for the strategy pipeline.
const (
	strategySubmitted = 10
	strategyCollected = 30
	strategyChecked   = 50
	strategyProfiled  = 70
	strategyBacktest  = 90
)

// StrategyValidationUseCase is the worker-side pipeline for one
// strategy-validation task. Same ephemeral-wallet and redelivery semantics
// as the risk pipeline.
type StrategyValidationUseCase struct {
	cache    ports.TaskCache
	tracker  *StatusTracker
	results  ports.ResultPublisher
	indexer  ports.ChainIndexer
	analyzer ports.StrategyAnalyzer
	ttls     ResultTTLs
}

func NewStrategyValidationUseCase(
	cache ports.TaskCache,
	tracker *StatusTracker,
	results ports.ResultPublisher,
	indexer ports.ChainIndexer,
	analyzer ports.StrategyAnalyzer,
	ttls ResultTTLs,
) *StrategyValidationUseCase {
	return &StrategyValidationUseCase{
		cache:    cache,
		tracker:  tracker,
		results:  results,
		indexer:  indexer,
		analyzer: analyzer,
		ttls:     ttls.normalize(),
	}
}

func (uc *StrategyValidationUseCase) ProcessStrategyTask(ctx context.Context, msg domain.StrategyTaskMessage) error {
	log := slog.With(
		"task_id", msg.TaskID,
		"commitment", domain.Redact(msg.Commitment),
		"strategy_type", msg.Parameters.StrategyType,
	)

	if state, err := uc.cache.TaskState(ctx, msg.TaskID); err != nil {
		return fmt.Errorf("read task state: %w", err)
	} else if state != nil && state.Status.Terminal() {
		log.Info("strategy_task_already_terminal", "status", state.Status)
		return nil
	}

	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, strategySubmitted, "request submitted"); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	summary, err := uc.indexer.WalletActivity(ctx, msg.WalletAddress)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("collect wallet metrics: %w", err)
		}
		log.Error("strategy_data_collection_failed", "error", err)
		return uc.fail(ctx, msg.TaskID, strategySubmitted, domain.WrapError(domain.ErrComputation, "collect wallet metrics", err))
	}
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, strategyCollected, "wallet metrics collected"); err != nil {
		return fmt.Errorf("set progress=%d: %w", strategyCollected, err)
	}

	checks, profile, recommendations := uc.analyzer.Validate(msg.Parameters, *summary)
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, strategyChecked, "validation checks complete"); err != nil {
		return fmt.Errorf("set progress=%d: %w", strategyChecked, err)
	}
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, strategyProfiled, "strategy profile generated"); err != nil {
		return fmt.Errorf("set progress=%d: %w", strategyProfiled, err)
	}

	backtest := uc.analyzer.Backtest(msg.Parameters, *summary, msg.BacktestDays)
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskProcessing, strategyBacktest, "backtest simulation complete"); err != nil {
		return fmt.Errorf("set progress=%d: %w", strategyBacktest, err)
	}

	report := domain.StrategyReport{
		SchemaVersion:   domain.ResultSchemaVersion,
		Parameters:      msg.Parameters,
		Checks:          checks,
		Profile:         profile,
		Recommendations: recommendations,
		Backtest:        backtest,
		ValidatedAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return uc.fail(ctx, msg.TaskID, strategyBacktest, domain.WrapError(domain.ErrComputation, "encode report", err))
	}

	if err := uc.results.PublishStrategyResult(ctx, domain.TaskResultMessage{
		TaskID:      msg.TaskID,
		Status:      domain.TaskCompleted,
		Result:      payload,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("publish strategy result: %w", err)
	}

	if err := uc.cache.SetTaskResult(ctx, msg.TaskID, payload, uc.ttls.Result); err != nil {
		return fmt.Errorf("store task result: %w", err)
	}
	if err := uc.cache.SetStrategyReport(ctx, msg.Commitment, msg.Parameters.StrategyType, payload, uc.ttls.Analysis); err != nil {
		return fmt.Errorf("store strategy report: %w", err)
	}
	if err := uc.tracker.Set(ctx, msg.TaskID, domain.TaskCompleted, progressFinal, "validation complete"); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}

	log.Info("strategy_validation_completed", "checks", len(checks))
	return nil
}

func (uc *StrategyValidationUseCase) fail(ctx context.Context, taskID string, progress int, cause error) error {
	if err := uc.results.PublishStrategyResult(ctx, domain.TaskResultMessage{
		TaskID:      taskID,
		Status:      domain.TaskFailed,
		Error:       cause.Error(),
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		return errors.Join(cause, fmt.Errorf("publish failure result: %w", err))
	}
	if err := uc.tracker.Set(ctx, taskID, domain.TaskFailed, progress, "validation failed: "+cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("set status=failed: %w", err))
	}
	return nil
}
