package domain

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CachedTaskID is the synthetic task identifier returned on an immediate
// cache hit. It never has a cache entry of its own.
const CachedTaskID = "cached"

// TaskState is the cached status record for one task. Progress is
// monotonically non-decreasing over a task's lifetime.
type TaskState struct {
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
}

// StatusUpdate is the ephemeral event emitted after every status write.
// It is a latency optimization, never the source of truth.
type StatusUpdate struct {
	TaskID   string     `json:"task_id"`
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
}

// AnalysisRequest is the transient submission payload. WalletAddress lives
// in memory only for verification and worker execution; it is never written
// to a durable store.
type AnalysisRequest struct {
	Commitment    string `json:"commitment"`
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
	ForceRefresh  bool   `json:"force_refresh"`
}

// StrategyRequest carries the same ownership proof plus strategy parameters.
type StrategyRequest struct {
	Commitment    string             `json:"commitment"`
	WalletAddress string             `json:"wallet_address"`
	Signature     string             `json:"signature"`
	Message       string             `json:"message"`
	Timestamp     int64              `json:"timestamp"`
	Parameters    StrategyParameters `json:"parameters"`
	BacktestDays  int                `json:"backtest_days"`
}

// TaskReceipt is the synchronous answer to a submission or a status poll.
// Commitment is set only when the caller needs it to reach the permanent
// on-chain record, never a wallet address.
type TaskReceipt struct {
	TaskID     string          `json:"task_id"`
	Status     TaskStatus      `json:"status"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message,omitempty"`
	Commitment string          `json:"commitment,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// RiskTaskMessage is the request-topic wire payload for risk analysis.
// The partition key is always the commitment, never the wallet address.
type RiskTaskMessage struct {
	TaskID        string    `json:"task_id"`
	Commitment    string    `json:"commitment"`
	WalletAddress string    `json:"wallet_address"`
	ForceRefresh  bool      `json:"force_refresh"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
}

// StrategyTaskMessage is the request-topic wire payload for strategy validation.
type StrategyTaskMessage struct {
	TaskID        string             `json:"task_id"`
	Commitment    string             `json:"commitment"`
	WalletAddress string             `json:"wallet_address"`
	Parameters    StrategyParameters `json:"parameters"`
	BacktestDays  int                `json:"backtest_days"`
	Timestamp     time.Time          `json:"timestamp"`
	CorrelationID string             `json:"correlation_id"`
}

// TaskResultMessage is the result-topic wire payload.
type TaskResultMessage struct {
	TaskID      string          `json:"task_id"`
	Status      TaskStatus      `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}
