// Package dataset provides immutable OHLCV series, loaders and the
// regime labeling used by walk-forward analysis.
package dataset

import (
	"fmt"
	"time"

	"github.com/yourusername/strategy-optimizer/internal/models"
)

// Candle is one OHLCV bar
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range is a half-open bar index window [Start, End)
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bars in the range
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether index i falls inside the range
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// Series is an immutable bar series. Windows share the backing array;
// callers must not mutate candles after construction.
type Series struct {
	candles  []Candle
	interval time.Duration
}

// NewSeries validates bar ordering and builds a series
func NewSeries(candles []Candle, interval time.Duration) (*Series, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("series requires at least one candle")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("series interval must be positive")
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return nil, fmt.Errorf("candle %d out of order: %s not after %s",
				i, candles[i].Time, candles[i-1].Time)
		}
	}
	return &Series{candles: candles, interval: interval}, nil
}

// Len returns the number of bars
func (s *Series) Len() int { return len(s.candles) }

// Interval returns the bar interval
func (s *Series) Interval() time.Duration { return s.interval }

// Candle returns the bar at index i
func (s *Series) Candle(i int) Candle { return s.candles[i] }

// Candles returns the backing candle slice. Read only.
func (s *Series) Candles() []Candle { return s.candles }

// FullRange covers the whole series
func (s *Series) FullRange() Range { return Range{Start: 0, End: len(s.candles)} }

// ClampRange clips a range to the series bounds
func (s *Series) ClampRange(r Range) (Range, error) {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > len(s.candles) {
		r.End = len(s.candles)
	}
	if r.Len() == 0 {
		return Range{}, models.ErrInsufficientData
	}
	return r, nil
}

// BarsPerDay converts the bar interval into bars per calendar day
func (s *Series) BarsPerDay() int {
	bars := int(24 * time.Hour / s.interval)
	if bars < 1 {
		bars = 1
	}
	return bars
}

// Closes extracts close prices for a range
func (s *Series) Closes(r Range) []float64 {
	out := make([]float64, 0, r.Len())
	for i := r.Start; i < r.End && i < len(s.candles); i++ {
		out = append(out, s.candles[i].Close)
	}
	return out
}
