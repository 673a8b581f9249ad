// Package strategy defines the evaluation boundary between the
// optimizer and the trading logic under test.
package strategy

import (
	"context"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

// Strategy evaluates one parameter set over a bar window and returns
// the realized trades. Implementations must be deterministic in
// (set, window, seed) and safe for concurrent use.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, set params.Set, window dataset.Range, seed int64) ([]models.TradeOutcome, error)
}

// Func adapts a plain function to the Strategy interface
type Func struct {
	StrategyName string
	Fn           func(ctx context.Context, set params.Set, window dataset.Range, seed int64) ([]models.TradeOutcome, error)
}

// Name returns the adapter's strategy name
func (f Func) Name() string {
	if f.StrategyName == "" {
		return "func"
	}
	return f.StrategyName
}

// Evaluate invokes the wrapped function
func (f Func) Evaluate(ctx context.Context, set params.Set, window dataset.Range, seed int64) ([]models.TradeOutcome, error) {
	return f.Fn(ctx, set, window, seed)
}
