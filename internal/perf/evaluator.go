// Package perf computes trade performance metrics and the composite
// optimization score with its hard constraint set.
package perf

import (
	"math"

	"github.com/yourusername/strategy-optimizer/internal/models"
)

// Score sentinel returned for any hard constraint violation
const ViolationSentinel = -10000.0

// DefaultInitialBalance is the notional account used for return and
// drawdown computation.
const DefaultInitialBalance = 100000.0

const (
	riskFreeDaily = 0.05 / 365.0

	drawdownThreshold = 0.15
	drawdownLambda    = 1.0

	capMultiple = 3.0
)

// Thresholds are the hard constraint floors a candidate must clear
// before its score counts.
type Thresholds struct {
	MinTrades        int     `json:"min_trades" mapstructure:"min_trades"`
	MaxDrawdown      float64 `json:"max_drawdown" mapstructure:"max_drawdown"`
	MinWinRate       float64 `json:"min_win_rate" mapstructure:"min_win_rate"`
	MaxWinRate       float64 `json:"max_win_rate" mapstructure:"max_win_rate"`
	MinProfitFactor  float64 `json:"min_profit_factor" mapstructure:"min_profit_factor"`
	MinRiskReward    float64 `json:"min_risk_reward" mapstructure:"min_risk_reward"`
	MinExpectancyR   float64 `json:"min_expectancy_r" mapstructure:"min_expectancy_r"`
	MinSortino       float64 `json:"min_sortino" mapstructure:"min_sortino"`
	MinSharpe        float64 `json:"min_sharpe" mapstructure:"min_sharpe"`
	MinCalmar        float64 `json:"min_calmar" mapstructure:"min_calmar"`
	MinMAR           float64 `json:"min_mar" mapstructure:"min_mar"`
	MinSQN           float64 `json:"min_sqn" mapstructure:"min_sqn"`
	MinExpectancyVol float64 `json:"min_expectancy_vol" mapstructure:"min_expectancy_vol"`
}

// DefaultThresholds returns the production constraint floors
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTrades:        200,
		MaxDrawdown:      0.20,
		MinWinRate:       0.45,
		MaxWinRate:       0.65,
		MinProfitFactor:  2.0,
		MinRiskReward:    2.0,
		MinExpectancyR:   0.3,
		MinSortino:       2.0,
		MinSharpe:        1.5,
		MinCalmar:        3.0,
		MinMAR:           2.5,
		MinSQN:           3.0,
		MinExpectancyVol: 1.5,
	}
}

// Evaluator turns trade lists into metrics and scores
type Evaluator struct {
	InitialBalance float64
	Thresholds     Thresholds
}

// NewEvaluator creates an evaluator with production defaults
func NewEvaluator() *Evaluator {
	return &Evaluator{
		InitialBalance: DefaultInitialBalance,
		Thresholds:     DefaultThresholds(),
	}
}

// Calculate computes performance metrics from realized trades. It
// never fails: degenerate inputs produce the canonical empty metrics.
func (e *Evaluator) Calculate(trades []models.TradeOutcome) models.PerformanceMetrics {
	if len(trades) == 0 {
		return models.EmptyPerformance()
	}

	initial := e.InitialBalance
	if initial <= 0 {
		initial = DefaultInitialBalance
	}

	pnls := models.PnLs(trades)
	n := float64(len(pnls))

	grossProfit := 0.0
	grossLoss := 0.0
	wins := 0
	losses := 0
	winSum := 0.0
	lossSum := 0.0
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
			winSum += pnl
			grossProfit += pnl
		} else if pnl < 0 {
			losses++
			lossSum += pnl
			grossLoss += math.Abs(pnl)
		}
	}

	m := models.PerformanceMetrics{
		TradeCount:    len(trades),
		WinningTrades: wins,
		LosingTrades:  losses,
		GrossProfit:   grossProfit,
		GrossLoss:     grossLoss,
		WinRate:       float64(wins) / n,
	}
	if wins > 0 {
		m.AverageWin = winSum / float64(wins)
	}
	if losses > 0 {
		m.AverageLoss = lossSum / float64(losses)
	}

	m.ProfitFactor = profitFactor(grossProfit, grossLoss)
	m.MaxDrawdown = maxDrawdownFromPnLs(pnls, initial)

	net := grossProfit - grossLoss
	m.TotalReturn = net / initial
	m.AnnualizedReturn = m.TotalReturn * (365.0 / n)

	mean := average(pnls)
	std := stddev(pnls)
	m.Volatility = std

	if dstd := downsideStddev(pnls); dstd > 0 {
		m.SortinoRatio = mean / dstd
	}
	if std > 0 {
		m.SharpeRatio = (mean - riskFreeDaily) / std
		m.SQN = mean / std * math.Sqrt(n)
	}
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
		m.MARRatio = m.CalmarRatio
	}
	if m.AverageLoss != 0 {
		m.RiskReward = m.AverageWin / math.Abs(m.AverageLoss)
		m.ExpectancyR = (m.WinRate*m.AverageWin + (1-m.WinRate)*m.AverageLoss) / math.Abs(m.AverageLoss)
	}

	return m
}

// CheckConstraints returns the names of every violated hard floor
func (e *Evaluator) CheckConstraints(m models.PerformanceMetrics) []string {
	t := e.Thresholds
	violations := []string{}
	if m.TradeCount < t.MinTrades {
		violations = append(violations, "min_trades")
	}
	if m.MaxDrawdown > t.MaxDrawdown {
		violations = append(violations, "max_drawdown")
	}
	if m.WinRate < t.MinWinRate || m.WinRate > t.MaxWinRate {
		violations = append(violations, "win_rate_band")
	}
	if m.ProfitFactor < t.MinProfitFactor {
		violations = append(violations, "profit_factor")
	}
	if m.RiskReward < t.MinRiskReward {
		violations = append(violations, "risk_reward")
	}
	if m.ExpectancyR < t.MinExpectancyR {
		violations = append(violations, "expectancy_r")
	}
	if m.SortinoRatio < t.MinSortino {
		violations = append(violations, "sortino")
	}
	if m.SharpeRatio < t.MinSharpe {
		violations = append(violations, "sharpe")
	}
	if m.CalmarRatio < t.MinCalmar {
		violations = append(violations, "calmar")
	}
	if m.MARRatio < t.MinMAR {
		violations = append(violations, "mar")
	}
	if m.SQN < t.MinSQN {
		violations = append(violations, "sqn")
	}
	if m.Volatility <= 0 || expectancyPerVol(m) < t.MinExpectancyVol {
		violations = append(violations, "expectancy_volatility")
	}
	return violations
}

// Score computes the weighted composite score. Any hard constraint
// violation collapses the score to the sentinel so rankings can never
// prefer an invalid candidate.
func (e *Evaluator) Score(m models.PerformanceMetrics) float64 {
	if len(e.CheckConstraints(m)) > 0 {
		return ViolationSentinel
	}
	return e.RawScore(m)
}

// RawScore computes the composite without the constraint gate. Used by
// exploration stages that rank partially valid candidates.
func (e *Evaluator) RawScore(m models.PerformanceMetrics) float64 {
	score := 0.35*normCapped(m.SortinoRatio, 2.0) +
		0.25*normCapped(m.CalmarRatio, 3.0) +
		0.20*normCapped(m.ProfitFactor, 2.0) +
		0.20*normCapped(m.SQN, 3.0)

	if m.MaxDrawdown > drawdownThreshold {
		score -= drawdownLambda * (m.MaxDrawdown - drawdownThreshold) * 10.0
	}
	return score
}

// normCapped normalizes a ratio against its target, capped so one
// outsized metric cannot dominate the composite.
func normCapped(value, target float64) float64 {
	v := value / target
	if v > capMultiple {
		return capMultiple
	}
	return v
}

func expectancyPerVol(m models.PerformanceMetrics) float64 {
	if m.Volatility == 0 {
		return 0
	}
	expectancy := m.WinRate*m.AverageWin + (1-m.WinRate)*m.AverageLoss
	return expectancy / m.Volatility
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return 999
		}
		return 0
	}
	return grossProfit / grossLoss
}

func maxDrawdownFromPnLs(pnls []float64, initial float64) float64 {
	equity := initial
	peak := initial
	maxDD := 0.0
	for _, pnl := range pnls {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			return 1.0
		}
		dd := (peak - equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	if maxDD > 1.0 {
		return 1.0
	}
	return maxDD
}
