package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
)

// TaskStatusUseCase answers status polls from the commitment cache.
// An absent task and an expired task are indistinguishable on purpose.
type TaskStatusUseCase struct {
	cache ports.TaskCache
}

func NewTaskStatusUseCase(cache ports.TaskCache) *TaskStatusUseCase {
	return &TaskStatusUseCase{cache: cache}
}

// resultExpiredNotice points the caller at the permanent on-chain record once
// the cached copy has aged out. Expiry forcing recomputation is policy.
const resultExpiredNotice = "result has expired from cache; query the vault contract directly using your commitment hash"

func (uc *TaskStatusUseCase) TaskStatus(ctx context.Context, taskID string) (*domain.TaskReceipt, error) {
	if taskID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "task status", errors.New("task id is required"))
	}
	if taskID == domain.CachedTaskID {
		return &domain.TaskReceipt{
			TaskID:   domain.CachedTaskID,
			Status:   domain.TaskCompleted,
			Progress: 100,
		}, nil
	}

	state, err := uc.cache.TaskState(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("read task state: %w", err)
	}
	if state == nil {
		return nil, domain.WrapError(domain.ErrTaskNotFound, "task status", errors.New("unknown or expired task"))
	}

	receipt := &domain.TaskReceipt{
		TaskID:   taskID,
		Status:   state.Status,
		Progress: state.Progress,
		Message:  state.Message,
	}
	if state.Status != domain.TaskCompleted {
		return receipt, nil
	}

	result, err := uc.cache.TaskResult(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("read task result: %w", err)
	}
	if result == nil {
		// Hand the caller the commitment so it can query the vault without
		// keeping its own task<->commitment bookkeeping.
		commitment, err := uc.cache.CommitmentByTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("read task commitment: %w", err)
		}
		receipt.Commitment = commitment
		receipt.Message = resultExpiredNotice
		return receipt, nil
	}
	receipt.Result = result
	return receipt, nil
}

// AnalysisByCommitment is the commitment-indexed read path: the cached
// analysis when present, otherwise the state of the task currently working
// on that commitment.
func (uc *TaskStatusUseCase) AnalysisByCommitment(ctx context.Context, commitment string) (*domain.TaskReceipt, error) {
	if !isHexPayload(commitment, 32) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analysis lookup", errors.New("commitment must be a 32-byte hex value"))
	}

	analysis, err := uc.cache.CommitmentAnalysis(ctx, commitment)
	if err != nil {
		return nil, fmt.Errorf("read commitment analysis: %w", err)
	}
	if analysis != nil {
		return &domain.TaskReceipt{
			TaskID:   domain.CachedTaskID,
			Status:   domain.TaskCompleted,
			Progress: 100,
			Result:   analysis,
		}, nil
	}

	taskID, err := uc.cache.TaskByCommitment(ctx, commitment)
	if err != nil {
		return nil, fmt.Errorf("read commitment link: %w", err)
	}
	if taskID == "" {
		return nil, domain.WrapError(domain.ErrTaskNotFound, "analysis lookup", errors.New("no analysis or active task for this commitment"))
	}
	return uc.TaskStatus(ctx, taskID)
}
