package ports

import (
	"context"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// AnalysisSubmitter is the inbound contract for risk-analysis submission.
type AnalysisSubmitter interface {
	SubmitRiskAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.TaskReceipt, error)
}

// StrategySubmitter is the inbound contract for strategy-validation submission.
type StrategySubmitter interface {
	SubmitStrategyValidation(ctx context.Context, req domain.StrategyRequest) (*domain.TaskReceipt, error)
}

// TaskStatusReader is the inbound read model: status polling by task id and
// the commitment-indexed analysis lookup.
type TaskStatusReader interface {
	TaskStatus(ctx context.Context, taskID string) (*domain.TaskReceipt, error)
	AnalysisByCommitment(ctx context.Context, commitment string) (*domain.TaskReceipt, error)
}

// RiskTaskProcessor handles one risk-analysis request message. Handlers must
// tolerate redelivery of the same message.
type RiskTaskProcessor interface {
	ProcessRiskTask(ctx context.Context, msg domain.RiskTaskMessage) error
}

// StrategyTaskProcessor handles one strategy-validation request message.
type StrategyTaskProcessor interface {
	ProcessStrategyTask(ctx context.Context, msg domain.StrategyTaskMessage) error
}
