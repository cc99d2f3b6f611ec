package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
)

// SubmitRiskAnalysisUseCase accepts a signed analysis request: verify
// ownership, serve from the commitment cache when possible, otherwise hand
// the task to the queue and record its initial state.
type SubmitRiskAnalysisUseCase struct {
	verifier ports.OwnershipVerifier
	cache    ports.TaskCache
	queue    ports.RequestPublisher
	tracker  *StatusTracker
}

func NewSubmitRiskAnalysisUseCase(
	verifier ports.OwnershipVerifier,
	cache ports.TaskCache,
	queue ports.RequestPublisher,
	tracker *StatusTracker,
) *SubmitRiskAnalysisUseCase {
	return &SubmitRiskAnalysisUseCase{
		verifier: verifier,
		cache:    cache,
		queue:    queue,
		tracker:  tracker,
	}
}

func (uc *SubmitRiskAnalysisUseCase) SubmitRiskAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.TaskReceipt, error) {
	if err := validateProofShape(req.Commitment, req.WalletAddress, req.Signature); err != nil {
		return nil, err
	}
	if err := uc.verifier.VerifyOwnership(req.WalletAddress, req.Signature, req.Message, req.Timestamp); err != nil {
		return nil, err
	}

	if !req.ForceRefresh {
		cached, err := uc.cache.CommitmentAnalysis(ctx, req.Commitment)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			slog.Info("analysis_cache_hit", "commitment", domain.Redact(req.Commitment))
			return &domain.TaskReceipt{
				TaskID:   domain.CachedTaskID,
				Status:   domain.TaskCompleted,
				Progress: 100,
				Message:  "returned from cache",
				Result:   cached,
			}, nil
		}
	}

	taskID := uuid.NewString()
	msg := domain.RiskTaskMessage{
		TaskID:        taskID,
		Commitment:    req.Commitment,
		WalletAddress: strings.ToLower(req.WalletAddress),
		ForceRefresh:  req.ForceRefresh,
		Timestamp:     time.Now().UTC(),
		CorrelationID: taskID,
	}
	if err := uc.queue.PublishRiskRequest(ctx, msg); err != nil {
		return nil, fmt.Errorf("publish risk request: %w", err)
	}

	if err := uc.tracker.Set(ctx, taskID, domain.TaskPending, 0, "request submitted to analysis queue"); err != nil {
		return nil, fmt.Errorf("record initial status: %w", err)
	}
	if err := uc.cache.LinkTaskCommitment(ctx, taskID, req.Commitment, uc.tracker.TTL()); err != nil {
		return nil, fmt.Errorf("link task to commitment: %w", err)
	}

	slog.Info("analysis_task_created",
		"task_id", taskID,
		"commitment", domain.Redact(req.Commitment),
	)
	return &domain.TaskReceipt{
		TaskID:   taskID,
		Status:   domain.TaskPending,
		Progress: 0,
		Message:  "analysis request submitted, poll with task_id",
	}, nil
}

// SubmitStrategyValidationUseCase is the strategy-topic counterpart.
type SubmitStrategyValidationUseCase struct {
	verifier ports.OwnershipVerifier
	cache    ports.TaskCache
	queue    ports.RequestPublisher
	tracker  *StatusTracker
}

func NewSubmitStrategyValidationUseCase(
	verifier ports.OwnershipVerifier,
	cache ports.TaskCache,
	queue ports.RequestPublisher,
	tracker *StatusTracker,
) *SubmitStrategyValidationUseCase {
	return &SubmitStrategyValidationUseCase{
		verifier: verifier,
		cache:    cache,
		queue:    queue,
		tracker:  tracker,
	}
}

func (uc *SubmitStrategyValidationUseCase) SubmitStrategyValidation(ctx context.Context, req domain.StrategyRequest) (*domain.TaskReceipt, error) {
	if err := validateProofShape(req.Commitment, req.WalletAddress, req.Signature); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Parameters.StrategyType) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("strategy_type is required"))
	}
	if err := uc.verifier.VerifyOwnership(req.WalletAddress, req.Signature, req.Message, req.Timestamp); err != nil {
		return nil, err
	}

	cached, err := uc.cache.StrategyReport(ctx, req.Commitment, req.Parameters.StrategyType)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return &domain.TaskReceipt{
			TaskID:   domain.CachedTaskID,
			Status:   domain.TaskCompleted,
			Progress: 100,
			Message:  "returned from cache",
			Result:   cached,
		}, nil
	}

	taskID := uuid.NewString()
	backtestDays := req.BacktestDays
	if backtestDays <= 0 {
		backtestDays = 30
	}
	msg := domain.StrategyTaskMessage{
		TaskID:        taskID,
		Commitment:    req.Commitment,
		WalletAddress: strings.ToLower(req.WalletAddress),
		Parameters:    req.Parameters,
		BacktestDays:  backtestDays,
		Timestamp:     time.Now().UTC(),
		CorrelationID: taskID,
	}
	if err := uc.queue.PublishStrategyRequest(ctx, msg); err != nil {
		return nil, fmt.Errorf("publish strategy request: %w", err)
	}

	if err := uc.tracker.Set(ctx, taskID, domain.TaskPending, 0, "request submitted to validation queue"); err != nil {
		return nil, fmt.Errorf("record initial status: %w", err)
	}
	if err := uc.cache.LinkTaskCommitment(ctx, taskID, req.Commitment, uc.tracker.TTL()); err != nil {
		return nil, fmt.Errorf("link task to commitment: %w", err)
	}

	return &domain.TaskReceipt{
		TaskID:   taskID,
		Status:   domain.TaskPending,
		Progress: 0,
		Message:  "strategy validation submitted, poll with task_id",
	}, nil
}

func validateProofShape(commitment, wallet, signature string) error {
	if !isHexPayload(commitment, 32) {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("commitment must be a 32-byte hex value"))
	}
	if !isHexPayload(wallet, 20) {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("wallet_address must be a 20-byte hex value"))
	}
	if !isHexPayload(signature, 65) {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("signature must be a 65-byte hex value"))
	}
	return nil
}

// isHexPayload requires the 0x prefix: the signature decoder downstream
// rejects unprefixed input, so accepting it here would turn a shape defect
// into an ownership failure.
func isHexPayload(s string, byteLen int) bool {
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	s = s[2:]
	if len(s) != byteLen*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
