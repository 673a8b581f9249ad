package strategy

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

// Synthetic is a deterministic reference strategy used by the CLI demo
// and tests. Trade quality peaks at a hidden optimum inside the
// parameter space, so optimization stages have a real signal to find,
// and degrades smoothly away from it.
type Synthetic struct {
	space   *params.Space
	optimum params.Set

	// BaseWinRate and EdgeWinRate shape trade quality: win rate moves
	// from BaseWinRate toward BaseWinRate+EdgeWinRate as the parameter
	// set approaches the optimum.
	BaseWinRate float64
	EdgeWinRate float64
	AvgWin      float64
	AvgLoss     float64
	HoldingBars int
}

// NewSynthetic builds a synthetic strategy whose optimum sits at the
// geometric midpoint of each parameter's range.
func NewSynthetic(space *params.Space) *Synthetic {
	optimum := make(params.Set)
	for _, d := range space.Definitions() {
		if d.LogScale {
			optimum[d.Name] = math.Sqrt(d.Min * d.Max)
		} else {
			optimum[d.Name] = (d.Min + d.Max) / 2
		}
	}
	return &Synthetic{
		space:       space,
		optimum:     optimum,
		BaseWinRate: 0.38,
		EdgeWinRate: 0.22,
		AvgWin:      320,
		AvgLoss:     110,
		HoldingBars: 4,
	}
}

// Name identifies the synthetic strategy
func (s *Synthetic) Name() string { return "synthetic" }

// Quality returns the closeness of a set to the hidden optimum in
// [0, 1].
func (s *Synthetic) Quality(set params.Set) float64 {
	total := 0.0
	count := 0
	for _, d := range s.space.Definitions() {
		span := d.Max - d.Min
		if span == 0 {
			continue
		}
		diff := (set[d.Name] - s.optimum[d.Name]) / span
		total += diff * diff
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Exp(-6 * total / float64(count))
}

// Evaluate produces a deterministic trade list for the window
func (s *Synthetic) Evaluate(ctx context.Context, set params.Set, window dataset.Range, seed int64) ([]models.TradeOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := window.Len()
	if n <= 0 {
		return nil, models.ErrInsufficientData
	}

	rng := rand.New(rand.NewSource(mixSeed(set, window, seed)))
	quality := s.Quality(set)
	winRate := s.BaseWinRate + s.EdgeWinRate*quality
	avgWin := s.AvgWin * (0.8 + 0.4*quality)

	spacing := s.HoldingBars * 2
	trades := make([]models.TradeOutcome, 0, n/spacing)
	for bar := window.Start; bar+s.HoldingBars < window.End; bar += spacing {
		holding := s.HoldingBars + rng.Intn(3)
		exit := bar + holding
		if exit >= window.End {
			exit = window.End - 1
		}

		var pnl float64
		if rng.Float64() < winRate {
			pnl = math.Abs(rng.NormFloat64()*avgWin*0.3 + avgWin)
		} else {
			pnl = -math.Abs(rng.NormFloat64()*s.AvgLoss*0.3 + s.AvgLoss)
		}
		side := models.TradeSideLong
		if rng.Float64() < 0.5 {
			side = models.TradeSideShort
		}
		trades = append(trades, models.TradeOutcome{
			PnL:         pnl,
			EntryIndex:  bar,
			ExitIndex:   exit,
			Side:        side,
			HoldingBars: exit - bar,
		})
	}
	if len(trades) == 0 {
		return nil, models.ErrNoTrades
	}
	return trades, nil
}

func mixSeed(set params.Set, window dataset.Range, seed int64) int64 {
	h := fnv.New64a()
	h.Write([]byte(set.Hash()))
	var buf [24]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(window.Start) >> (8 * i))
		buf[i+8] = byte(uint64(window.End) >> (8 * i))
		buf[i+16] = byte(uint64(seed) >> (8 * i))
	}
	h.Write(buf[:])
	mixed := int64(h.Sum64())
	if mixed < 0 {
		mixed = -mixed
	}
	return mixed
}
