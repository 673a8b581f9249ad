package models

// PerformanceMetrics represents strategy performance over a window
type PerformanceMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	MARRatio         float64 `json:"mar_ratio"`
	SQN              float64 `json:"sqn"`
	ExpectancyR      float64 `json:"expectancy_r"`
	Volatility       float64 `json:"volatility"`
	RiskReward       float64 `json:"risk_reward"`
	TradeCount       int     `json:"trade_count"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	AverageWin       float64 `json:"average_win"`
	AverageLoss      float64 `json:"average_loss"`
	GrossProfit      float64 `json:"gross_profit"`
	GrossLoss        float64 `json:"gross_loss"`
}

// EmptyPerformance returns the canonical metrics for a degenerate
// evaluation: full drawdown, zero ratios, zero trades. Computation
// paths return this instead of failing.
func EmptyPerformance() PerformanceMetrics {
	return PerformanceMetrics{MaxDrawdown: 1.0}
}

// IsEmpty reports whether the metrics are the degenerate sentinel
func (m PerformanceMetrics) IsEmpty() bool {
	return m.TradeCount == 0 && m.MaxDrawdown == 1.0
}
