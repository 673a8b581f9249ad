package perf

import (
	"math"

	"github.com/yourusername/strategy-optimizer/internal/models"
)

// MedianAggregate combines repeated evaluations element-wise by median,
// which keeps one unlucky seed from dragging a candidate down.
func MedianAggregate(runs []models.PerformanceMetrics) models.PerformanceMetrics {
	if len(runs) == 0 {
		return models.EmptyPerformance()
	}
	if len(runs) == 1 {
		return runs[0]
	}

	med := func(pick func(models.PerformanceMetrics) float64) float64 {
		values := make([]float64, len(runs))
		for i, r := range runs {
			values[i] = pick(r)
		}
		return Median(values)
	}

	out := models.PerformanceMetrics{
		TotalReturn:      med(func(m models.PerformanceMetrics) float64 { return m.TotalReturn }),
		AnnualizedReturn: med(func(m models.PerformanceMetrics) float64 { return m.AnnualizedReturn }),
		MaxDrawdown:      med(func(m models.PerformanceMetrics) float64 { return m.MaxDrawdown }),
		WinRate:          med(func(m models.PerformanceMetrics) float64 { return m.WinRate }),
		ProfitFactor:     med(func(m models.PerformanceMetrics) float64 { return m.ProfitFactor }),
		SortinoRatio:     med(func(m models.PerformanceMetrics) float64 { return m.SortinoRatio }),
		SharpeRatio:      med(func(m models.PerformanceMetrics) float64 { return m.SharpeRatio }),
		CalmarRatio:      med(func(m models.PerformanceMetrics) float64 { return m.CalmarRatio }),
		MARRatio:         med(func(m models.PerformanceMetrics) float64 { return m.MARRatio }),
		SQN:              med(func(m models.PerformanceMetrics) float64 { return m.SQN }),
		ExpectancyR:      med(func(m models.PerformanceMetrics) float64 { return m.ExpectancyR }),
		Volatility:       med(func(m models.PerformanceMetrics) float64 { return m.Volatility }),
		RiskReward:       med(func(m models.PerformanceMetrics) float64 { return m.RiskReward }),
		AverageWin:       med(func(m models.PerformanceMetrics) float64 { return m.AverageWin }),
		AverageLoss:      med(func(m models.PerformanceMetrics) float64 { return m.AverageLoss }),
		GrossProfit:      med(func(m models.PerformanceMetrics) float64 { return m.GrossProfit }),
		GrossLoss:        med(func(m models.PerformanceMetrics) float64 { return m.GrossLoss }),
	}

	counts := make([]float64, len(runs))
	winCounts := make([]float64, len(runs))
	lossCounts := make([]float64, len(runs))
	for i, r := range runs {
		counts[i] = float64(r.TradeCount)
		winCounts[i] = float64(r.WinningTrades)
		lossCounts[i] = float64(r.LosingTrades)
	}
	out.TradeCount = int(math.Round(Median(counts)))
	out.WinningTrades = int(math.Round(Median(winCounts)))
	out.LosingTrades = int(math.Round(Median(lossCounts)))
	return out
}

// Stability summarizes score dispersion across repeated evaluations
type Stability struct {
	Median float64 `json:"median"`
	IQR    float64 `json:"iqr"`
	CV     float64 `json:"cv"`
}

// MeasureStability computes the IQR-based coefficient of variation,
// 0 when the median is 0.
func MeasureStability(scores []float64) Stability {
	s := Stability{
		Median: Median(scores),
		IQR:    IQR(scores),
	}
	if s.Median != 0 {
		s.CV = s.IQR / math.Abs(s.Median)
	}
	return s
}
