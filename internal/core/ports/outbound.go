package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// OwnershipVerifier proves that a request controls the wallet it claims.
// Pure check, no external state.
type OwnershipVerifier interface {
	VerifyOwnership(walletAddress, signature, message string, timestamp int64) error
}

// TaskCache is the commitment-indexed TTL cache shared by the API and worker
// tiers. A miss and an expired entry are the same observable state: readers
// get (nil, nil) and must treat it as "recompute", never as an error.
// No key is ever derived from a wallet address.
type TaskCache interface {
	TaskState(ctx context.Context, taskID string) (*domain.TaskState, error)
	SetTaskState(ctx context.Context, taskID string, state domain.TaskState, ttl time.Duration) error

	TaskResult(ctx context.Context, taskID string) (json.RawMessage, error)
	SetTaskResult(ctx context.Context, taskID string, result json.RawMessage, ttl time.Duration) error

	// LinkTaskCommitment establishes both directions of the task<->commitment
	// link with one TTL.
	LinkTaskCommitment(ctx context.Context, taskID, commitment string, ttl time.Duration) error
	TaskByCommitment(ctx context.Context, commitment string) (string, error)
	CommitmentByTask(ctx context.Context, taskID string) (string, error)

	CommitmentAnalysis(ctx context.Context, commitment string) (json.RawMessage, error)
	SetCommitmentAnalysis(ctx context.Context, commitment string, analysis json.RawMessage, ttl time.Duration) error

	StrategyReport(ctx context.Context, commitment, strategyType string) (json.RawMessage, error)
	SetStrategyReport(ctx context.Context, commitment, strategyType string, report json.RawMessage, ttl time.Duration) error

	Ping(ctx context.Context) error
}

// RequestPublisher publishes request messages from the API tier. Publish
// returns only after the broker confirms durable replication.
type RequestPublisher interface {
	PublishRiskRequest(ctx context.Context, msg domain.RiskTaskMessage) error
	PublishStrategyRequest(ctx context.Context, msg domain.StrategyTaskMessage) error
}

// ResultPublisher publishes terminal results from the worker tier.
type ResultPublisher interface {
	PublishRiskResult(ctx context.Context, msg domain.TaskResultMessage) error
	PublishStrategyResult(ctx context.Context, msg domain.TaskResultMessage) error
}

// StatusPublisher emits ephemeral status events on the status bus.
// Delivery is best-effort; a publish failure must not fail the caller.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, update domain.StatusUpdate) error
}

// StatusListener receives status events. Implementations deliver events for
// one task in publish order; there is no cross-task ordering.
type StatusListener interface {
	OnStatusUpdate(update domain.StatusUpdate)
}

// ChainIndexer collects on-chain activity for a wallet. The address is used
// transiently for the duration of the call.
type ChainIndexer interface {
	WalletActivity(ctx context.Context, walletAddress string) (*domain.ActivitySummary, error)
	CurrentBlock(ctx context.Context) (uint64, error)
}

// RiskScorer turns an activity summary into an assessment. Pure function;
// malformed input degrades to a conservative high-risk default.
type RiskScorer interface {
	Score(summary domain.ActivitySummary) domain.RiskAssessment
}

// StrategyAnalyzer validates strategy parameters against wallet activity.
// All methods are pure.
type StrategyAnalyzer interface {
	Validate(params domain.StrategyParameters, summary domain.ActivitySummary) ([]domain.ValidationCheck, domain.StrategyProfile, []string)
	Backtest(params domain.StrategyParameters, summary domain.ActivitySummary, days int) domain.BacktestSummary
}

// PassportIssuer generates claimable credential metadata for a completed
// assessment. Failures are non-fatal to the task.
type PassportIssuer interface {
	IssuePassport(ctx context.Context, commitment string, riskScore int) (*domain.Passport, error)
}

// ModelMetricsRecorder persists anonymous inference metrics.
type ModelMetricsRecorder interface {
	RecordInference(ctx context.Context, rec domain.ModelInference) error
}
