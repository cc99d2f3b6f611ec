package domain

import "time"

// ActivitySummary is the structured output of the data-collection stage.
// It carries derived metrics only; the wallet address itself is not part of it.
type ActivitySummary struct {
	TotalTransactions uint64  `json:"total_transactions"`
	BalanceETH        float64 `json:"balance_eth"`
	FirstSeenBlock    uint64  `json:"first_seen_block"`
	WalletAgeDays     int     `json:"wallet_age_days"`
	TxPerDay          float64 `json:"tx_per_day"`
	RecentTxCount     int     `json:"recent_tx_count"`
	UniqueTokens      int     `json:"unique_tokens"`
	ContractTxRatio   float64 `json:"contract_tx_ratio"`
	IsContractUser    bool    `json:"is_contract_user"`
}

// RiskFactor is one weighted component of the overall score.
type RiskFactor struct {
	Name   string  `json:"name"`
	Score  int     `json:"score"`
	Weight float64 `json:"weight"`
	Status string  `json:"status"`
	Detail string  `json:"detail,omitempty"`
}

const (
	RiskBandLow      = "low"
	RiskBandMedium   = "medium"
	RiskBandHigh     = "high"
	RiskBandCritical = "critical"
)

// ResultSchemaVersion tags every cached result payload. Readers reject
// payloads with a different version instead of guessing at their shape.
const ResultSchemaVersion = 1

// RiskAssessment is the terminal result payload of a risk-analysis task.
type RiskAssessment struct {
	SchemaVersion   int          `json:"schema_version"`
	RiskScore       int          `json:"risk_score"`
	RiskBand        string       `json:"risk_band"`
	Confidence      float64      `json:"confidence"`
	Factors         []RiskFactor `json:"factors"`
	Recommendations []string     `json:"recommendations,omitempty"`
	Passport        Passport     `json:"passport"`
	AnalyzedAt      time.Time    `json:"analyzed_at"`
}

const (
	PassportReadyToClaim     = "ready_to_claim"
	PassportGenerationFailed = "generation_failed"
)

// Passport is the claimable credential metadata embedded in the result.
// A failed generation keeps the assessment usable: Status records the
// partial failure instead of failing the task.
type Passport struct {
	Status       string `json:"status"`
	Commitment   string `json:"commitment,omitempty"`
	Nullifier    string `json:"nullifier,omitempty"`
	VaultAddress string `json:"vault_address,omitempty"`
	BlockHeight  uint64 `json:"block_height,omitempty"`
	RiskScore    int    `json:"risk_score,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ModelInference is the anonymous per-inference record kept for model
// monitoring. It must never carry wallet, commitment, or score data.
type ModelInference struct {
	ModelVersion string
	LatencyMS    float64
	Confidence   float64
	Success      bool
	ObservedAt   time.Time
}
