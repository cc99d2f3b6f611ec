// Package heuristic scores wallet activity with weighted rule-based factors.
// Every function here is pure: same summary in, same assessment out.
package heuristic

import (
	"fmt"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// Score bands on the 0-10000 scale. Lower score means lower risk.
const (
	bandLowMax    = 2500
	bandMediumMax = 5000
	bandHighMax   = 7500
	scoreCeiling  = 10000
)

// Factor weights, summing to 1.
const (
	weightAge       = 0.25
	weightActivity  = 0.25
	weightBalance   = 0.20
	weightDiversity = 0.15
	weightCadence   = 0.15
)

const ModelVersion = "heuristic-v1"

type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score turns an activity summary into a risk assessment. Malformed input
// (negative or non-finite metrics) degrades to a conservative high-risk
// default instead of propagating an error.
func (s *Scorer) Score(summary domain.ActivitySummary) domain.RiskAssessment {
	if !wellFormed(summary) {
		return s.conservativeDefault()
	}

	factors := []domain.RiskFactor{
		ageFactor(summary),
		activityFactor(summary),
		balanceFactor(summary),
		diversityFactor(summary),
		cadenceFactor(summary),
	}

	total := 0.0
	for _, f := range factors {
		total += float64(f.Score) * f.Weight
	}
	score := clampScore(int(total))

	return domain.RiskAssessment{
		SchemaVersion:   domain.ResultSchemaVersion,
		RiskScore:       score,
		RiskBand:        Band(score),
		Confidence:      confidence(summary),
		Factors:         factors,
		Recommendations: recommendations(score, summary),
		AnalyzedAt:      s.now().UTC(),
	}
}

// Band maps a score to its named band.
func Band(score int) string {
	switch {
	case score <= bandLowMax:
		return domain.RiskBandLow
	case score <= bandMediumMax:
		return domain.RiskBandMedium
	case score <= bandHighMax:
		return domain.RiskBandHigh
	default:
		return domain.RiskBandCritical
	}
}

func wellFormed(s domain.ActivitySummary) bool {
	if s.BalanceETH < 0 || s.TxPerDay < 0 || s.ContractTxRatio < 0 || s.ContractTxRatio > 1 {
		return false
	}
	if s.WalletAgeDays < 0 || s.RecentTxCount < 0 || s.UniqueTokens < 0 {
		return false
	}
	// NaN fails every comparison, catch it explicitly.
	if s.BalanceETH != s.BalanceETH || s.TxPerDay != s.TxPerDay {
		return false
	}
	return true
}

func (s *Scorer) conservativeDefault() domain.RiskAssessment {
	return domain.RiskAssessment{
		SchemaVersion: domain.ResultSchemaVersion,
		RiskScore:     bandHighMax,
		RiskBand:      domain.RiskBandHigh,
		Confidence:    0.1,
		Factors: []domain.RiskFactor{{
			Name:   "input_quality",
			Score:  bandHighMax,
			Weight: 1,
			Status: "degraded",
			Detail: "activity summary failed validation; conservative default applied",
		}},
		Recommendations: []string{"resubmit the analysis once indexer data is available"},
		AnalyzedAt:      s.now().UTC(),
	}
}

// ageFactor: older wallets carry more history and less sybil risk.
func ageFactor(s domain.ActivitySummary) domain.RiskFactor {
	var score int
	switch {
	case s.WalletAgeDays >= 730:
		score = 500
	case s.WalletAgeDays >= 365:
		score = 2000
	case s.WalletAgeDays >= 90:
		score = 4000
	case s.WalletAgeDays >= 30:
		score = 6500
	default:
		score = 9000
	}
	return domain.RiskFactor{
		Name:   "wallet_age",
		Score:  score,
		Weight: weightAge,
		Status: statusFor(score),
		Detail: fmt.Sprintf("%d days on chain", s.WalletAgeDays),
	}
}

func activityFactor(s domain.ActivitySummary) domain.RiskFactor {
	var score int
	switch {
	case s.TotalTransactions >= 500:
		score = 1000
	case s.TotalTransactions >= 100:
		score = 2500
	case s.TotalTransactions >= 20:
		score = 5000
	case s.TotalTransactions >= 5:
		score = 7000
	default:
		score = 9000
	}
	if s.RecentTxCount == 0 && s.TotalTransactions > 0 {
		// Dormant wallets drift toward the risky end.
		score = clampScore(score + 1000)
	}
	return domain.RiskFactor{
		Name:   "transaction_history",
		Score:  score,
		Weight: weightActivity,
		Status: statusFor(score),
		Detail: fmt.Sprintf("%d total, %d recent", s.TotalTransactions, s.RecentTxCount),
	}
}

func balanceFactor(s domain.ActivitySummary) domain.RiskFactor {
	var score int
	switch {
	case s.BalanceETH >= 10:
		score = 1000
	case s.BalanceETH >= 1:
		score = 3000
	case s.BalanceETH >= 0.1:
		score = 5000
	case s.BalanceETH > 0:
		score = 7000
	default:
		score = 8500
	}
	return domain.RiskFactor{
		Name:   "balance",
		Score:  score,
		Weight: weightBalance,
		Status: statusFor(score),
	}
}

func diversityFactor(s domain.ActivitySummary) domain.RiskFactor {
	var score int
	switch {
	case s.UniqueTokens >= 10:
		score = 2000
	case s.UniqueTokens >= 3:
		score = 3500
	case s.UniqueTokens >= 1:
		score = 5000
	default:
		score = 6500
	}
	return domain.RiskFactor{
		Name:   "token_diversity",
		Score:  score,
		Weight: weightDiversity,
		Status: statusFor(score),
		Detail: fmt.Sprintf("%d tokens touched recently", s.UniqueTokens),
	}
}

// cadenceFactor flags bot-like bursts: very high tx/day on a young wallet.
func cadenceFactor(s domain.ActivitySummary) domain.RiskFactor {
	var score int
	switch {
	case s.TxPerDay > 50:
		score = 9000
	case s.TxPerDay > 20:
		score = 6000
	case s.TxPerDay > 0.1:
		score = 2500
	default:
		score = 5000
	}
	return domain.RiskFactor{
		Name:   "activity_cadence",
		Score:  score,
		Weight: weightCadence,
		Status: statusFor(score),
		Detail: fmt.Sprintf("%.2f tx/day", s.TxPerDay),
	}
}

func statusFor(score int) string {
	switch {
	case score <= bandLowMax:
		return "good"
	case score <= bandMediumMax:
		return "fair"
	default:
		return "poor"
	}
}

// confidence grows with the amount of observed history backing the score.
func confidence(s domain.ActivitySummary) float64 {
	c := 0.3
	if s.WalletAgeDays >= 90 {
		c += 0.3
	} else if s.WalletAgeDays >= 30 {
		c += 0.15
	}
	if s.TotalTransactions >= 100 {
		c += 0.25
	} else if s.TotalTransactions >= 20 {
		c += 0.15
	}
	if s.RecentTxCount > 0 {
		c += 0.15
	}
	if c > 1 {
		c = 1
	}
	return c
}

func recommendations(score int, s domain.ActivitySummary) []string {
	var out []string
	if score > bandMediumMax {
		out = append(out, "build transaction history before requesting credit-sensitive products")
	}
	if s.BalanceETH < 0.1 {
		out = append(out, "maintain a minimum balance to improve the balance factor")
	}
	if s.TxPerDay > 50 {
		out = append(out, "burst-like activity patterns raise the cadence factor; spread activity over time")
	}
	return out
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > scoreCeiling {
		return scoreCeiling
	}
	return v
}
