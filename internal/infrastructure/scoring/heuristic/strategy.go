package heuristic

import (
	"fmt"
	"math"
	"strings"

	"github.com/veilproof/riskscope/internal/core/domain"
)

var knownStrategyTypes = map[string]struct{}{
	"scalping": {},
	"swing":    {},
	"position": {},
	"dca":      {},
}

// Analyzer validates strategy parameters against observed wallet activity.
// Pure heuristics; the backtest is a deterministic simulation, not market data.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Validate(params domain.StrategyParameters, summary domain.ActivitySummary) ([]domain.ValidationCheck, domain.StrategyProfile, []string) {
	checks := []domain.ValidationCheck{
		checkStrategyType(params),
		checkStopLoss(params),
		checkTakeProfit(params),
		checkPositionSize(params, summary),
		checkExperience(params, summary),
	}

	profile := buildProfile(params, summary, checks)

	var recs []string
	for _, c := range checks {
		if !c.Passed {
			recs = append(recs, "fix: "+c.Detail)
		} else if c.Warning {
			recs = append(recs, "consider: "+c.Detail)
		}
	}
	return checks, profile, recs
}

func checkStrategyType(p domain.StrategyParameters) domain.ValidationCheck {
	_, known := knownStrategyTypes[strings.ToLower(p.StrategyType)]
	return domain.ValidationCheck{
		Name:   "strategy_type",
		Passed: known,
		Detail: fmt.Sprintf("strategy type %q", p.StrategyType),
	}
}

func checkStopLoss(p domain.StrategyParameters) domain.ValidationCheck {
	c := domain.ValidationCheck{Name: "stop_loss"}
	switch {
	case p.StopLoss <= 0 || p.StopLoss >= 100:
		c.Detail = "stop loss must be a percentage in (0, 100)"
	case p.StopLoss > 25:
		c.Passed, c.Warning = true, true
		c.Detail = fmt.Sprintf("stop loss of %.1f%% exposes a large share of the position", p.StopLoss)
	default:
		c.Passed = true
		c.Detail = fmt.Sprintf("stop loss %.1f%%", p.StopLoss)
	}
	return c
}

func checkTakeProfit(p domain.StrategyParameters) domain.ValidationCheck {
	c := domain.ValidationCheck{Name: "take_profit"}
	switch {
	case p.TakeProfit <= 0:
		c.Detail = "take profit must be positive"
	case p.StopLoss > 0 && p.TakeProfit < p.StopLoss:
		c.Passed, c.Warning = true, true
		c.Detail = "reward target below risk budget; ratio under 1"
	default:
		c.Passed = true
		c.Detail = fmt.Sprintf("take profit %.1f%%", p.TakeProfit)
	}
	return c
}

func checkPositionSize(p domain.StrategyParameters, s domain.ActivitySummary) domain.ValidationCheck {
	c := domain.ValidationCheck{Name: "position_size"}
	switch {
	case p.PositionSize <= 0 || p.PositionSize > 100:
		c.Detail = "position size must be a percentage in (0, 100]"
	case p.PositionSize > 50:
		c.Passed, c.Warning = true, true
		c.Detail = fmt.Sprintf("position size %.0f%% concentrates more than half the portfolio", p.PositionSize)
	case p.PositionSize > 20 && s.BalanceETH < 1:
		c.Passed, c.Warning = true, true
		c.Detail = "large position share on a small balance"
	default:
		c.Passed = true
		c.Detail = fmt.Sprintf("position size %.0f%%", p.PositionSize)
	}
	return c
}

// checkExperience flags high-frequency strategies on wallets with no
// comparable activity history.
func checkExperience(p domain.StrategyParameters, s domain.ActivitySummary) domain.ValidationCheck {
	c := domain.ValidationCheck{Name: "experience", Passed: true}
	if strings.EqualFold(p.StrategyType, "scalping") && s.TxPerDay < 1 {
		c.Warning = true
		c.Detail = "scalping assumes frequent trading; this wallet shows low activity"
		return c
	}
	c.Detail = "activity history consistent with the strategy"
	return c
}

func buildProfile(p domain.StrategyParameters, s domain.ActivitySummary, checks []domain.ValidationCheck) domain.StrategyProfile {
	ratio := 0.0
	if p.StopLoss > 0 {
		ratio = p.TakeProfit / p.StopLoss
	}

	level := "moderate"
	switch {
	case p.PositionSize > 50 || p.StopLoss > 25:
		level = "aggressive"
	case p.PositionSize <= 10 && p.StopLoss <= 5:
		level = "conservative"
	}

	suitability := 100
	for _, c := range checks {
		if !c.Passed {
			suitability -= 30
		} else if c.Warning {
			suitability -= 10
		}
	}
	if suitability < 0 {
		suitability = 0
	}

	return domain.StrategyProfile{
		RiskLevel:        level,
		RewardRiskRatio:  math.Round(ratio*100) / 100,
		SuitabilityScore: suitability,
		Summary:          fmt.Sprintf("%s %s strategy, %.2f reward/risk", level, strings.ToLower(p.StrategyType), ratio),
	}
}

// Backtest runs a deterministic simulation seeded by the parameters and the
// wallet's cadence. It is a coarse sanity check, not financial advice.
func (a *Analyzer) Backtest(params domain.StrategyParameters, summary domain.ActivitySummary, days int) domain.BacktestSummary {
	if days <= 0 {
		days = 30
	}

	cadence := summary.TxPerDay
	if cadence <= 0 {
		cadence = 0.2
	}
	trades := int(cadence * float64(days) / 3)
	if trades < 1 {
		trades = 1
	}
	if trades > days*10 {
		trades = days * 10
	}

	ratio := 1.0
	if params.StopLoss > 0 {
		ratio = params.TakeProfit / params.StopLoss
	}
	// Win rate decays as the reward target grows relative to the risk budget.
	winRate := 1 / (1 + ratio)
	wins := int(math.Round(float64(trades) * winRate))
	losses := trades - wins

	netPct := float64(wins)*params.TakeProfit - float64(losses)*params.StopLoss
	netPct *= params.PositionSize / 100

	maxDrawdown := params.StopLoss * params.PositionSize / 100 * math.Min(3, float64(losses))

	return domain.BacktestSummary{
		Days:         days,
		Trades:       trades,
		WinRate:      math.Round(winRate*10000) / 10000,
		NetReturnPct: math.Round(netPct*100) / 100,
		MaxDrawdown:  math.Round(maxDrawdown*100) / 100,
	}
}
