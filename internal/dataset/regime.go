package dataset

import (
	"sort"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

// Regime labels a volatility environment
type Regime string

const (
	RegimeLowVol  Regime = "low_vol"
	RegimeNormal  Regime = "normal"
	RegimeHighVol Regime = "high_vol"
)

// DefaultVolatilityWindow is the rolling window used for regime labels
const DefaultVolatilityWindow = 30

// RegimeLabeler classifies bars into volatility terciles computed over
// the full series, so slice labels are comparable across windows.
type RegimeLabeler struct {
	labels []Regime
}

// NewRegimeLabeler computes rolling volatility (ATR relative to close)
// over the series and buckets it at the 0.33/0.67 quantiles.
func NewRegimeLabeler(series *Series, window int) *RegimeLabeler {
	if window <= 0 {
		window = DefaultVolatilityWindow
	}

	ts := toTechanSeries(series)
	atr := techan.NewAverageTrueRangeIndicator(ts, window)

	vol := make([]float64, series.Len())
	for i := 0; i < series.Len(); i++ {
		c := series.Candle(i).Close
		if c > 0 {
			vol[i] = atr.Calculate(i).Float() / c
		}
	}

	low := quantile(vol, 0.33)
	high := quantile(vol, 0.67)

	labels := make([]Regime, series.Len())
	for i, v := range vol {
		switch {
		case v <= low:
			labels[i] = RegimeLowVol
		case v >= high:
			labels[i] = RegimeHighVol
		default:
			labels[i] = RegimeNormal
		}
	}
	return &RegimeLabeler{labels: labels}
}

// Label returns the regime of bar i
func (l *RegimeLabeler) Label(i int) Regime {
	if i < 0 || i >= len(l.labels) {
		return RegimeNormal
	}
	return l.labels[i]
}

// Dominant returns the most frequent regime inside a range
func (l *RegimeLabeler) Dominant(r Range) Regime {
	counts := map[Regime]int{}
	for i := r.Start; i < r.End && i < len(l.labels); i++ {
		counts[l.labels[i]]++
	}
	best := RegimeNormal
	bestCount := -1
	for _, regime := range []Regime{RegimeLowVol, RegimeNormal, RegimeHighVol} {
		if counts[regime] > bestCount {
			best = regime
			bestCount = counts[regime]
		}
	}
	return best
}

func toTechanSeries(series *Series) *techan.TimeSeries {
	ts := techan.NewTimeSeries()
	interval := series.Interval()
	for i := 0; i < series.Len(); i++ {
		c := series.Candle(i)
		period := techan.NewTimePeriod(c.Time, interval)
		candle := techan.NewCandle(period)
		candle.OpenPrice = big.NewDecimal(c.Open)
		candle.ClosePrice = big.NewDecimal(c.Close)
		candle.MaxPrice = big.NewDecimal(c.High)
		candle.MinPrice = big.NewDecimal(c.Low)
		candle.Volume = big.NewDecimal(c.Volume)
		ts.AddCandle(candle)
	}
	return ts
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// SpanDays converts a bar count into whole days for a series interval
func SpanDays(series *Series, bars int) int {
	days := int(time.Duration(bars) * series.Interval() / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return days
}
