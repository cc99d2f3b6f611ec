package domain

import "time"

// StrategyParameters describes the trading strategy under validation.
type StrategyParameters struct {
	StrategyType string  `json:"strategy_type"`
	TakeProfit   float64 `json:"take_profit"`
	StopLoss     float64 `json:"stop_loss"`
	PositionSize float64 `json:"position_size"`
}

// ValidationCheck is one pass/fail judgment about the parameters.
type ValidationCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail,omitempty"`
	Warning bool   `json:"warning,omitempty"`
}

// StrategyProfile is the heuristic characterization of the strategy
// against the wallet's observed activity.
type StrategyProfile struct {
	RiskLevel        string  `json:"risk_level"`
	RewardRiskRatio  float64 `json:"reward_risk_ratio"`
	SuitabilityScore int     `json:"suitability_score"`
	Summary          string  `json:"summary,omitempty"`
}

// BacktestSummary is the simulated historical performance of the strategy.
type BacktestSummary struct {
	Days         int     `json:"days"`
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"`
	NetReturnPct float64 `json:"net_return_pct"`
	MaxDrawdown  float64 `json:"max_drawdown_pct"`
}

// StrategyReport is the terminal result payload of a strategy-validation task.
type StrategyReport struct {
	SchemaVersion   int                `json:"schema_version"`
	Parameters      StrategyParameters `json:"parameters"`
	Checks          []ValidationCheck  `json:"checks"`
	Profile         StrategyProfile    `json:"profile"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Backtest        BacktestSummary    `json:"backtest"`
	ValidatedAt     time.Time          `json:"validated_at"`
}
