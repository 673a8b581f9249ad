package optimize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/metrics"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

// Runner executes single evaluations: strategy call, metric
// computation, constraint check, memoization.
type Runner struct {
	strategy  strategy.Strategy
	evaluator *perf.Evaluator
	cache     *EvalCache
	stage     string
}

// NewRunner creates an evaluation runner. The cache is optional.
func NewRunner(strat strategy.Strategy, evaluator *perf.Evaluator, evalCache *EvalCache, stage string) (*Runner, error) {
	if strat == nil {
		return nil, fmt.Errorf("runner requires a strategy")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("runner requires an evaluator")
	}
	return &Runner{
		strategy:  strat,
		evaluator: evaluator,
		cache:     evalCache,
		stage:     stage,
	}, nil
}

// WithStage returns a runner that reports under a different stage
// label but shares the cache.
func (r *Runner) WithStage(stage string) *Runner {
	dup := *r
	dup.stage = stage
	return &dup
}

// Evaluator exposes the underlying metric evaluator
func (r *Runner) Evaluator() *perf.Evaluator { return r.evaluator }

// Strategy exposes the wrapped strategy
func (r *Runner) Strategy() strategy.Strategy { return r.strategy }

// Run evaluates one parameter set over a window
func (r *Runner) Run(ctx context.Context, set params.Set, window dataset.Range, seed int64) Outcome {
	if out, found := r.cache.Get(set, window, seed); found {
		return out
	}

	start := time.Now()
	trades, err := r.strategy.Evaluate(ctx, set, window, seed)
	if err != nil {
		metrics.RecordEvaluation(r.stage, string(StatusFailed), time.Since(start).Seconds())
		return failedOutcome(err)
	}

	m := r.evaluator.Calculate(trades)
	violations := r.evaluator.CheckConstraints(m)
	out := Outcome{
		Status:     StatusScored,
		RawScore:   r.evaluator.RawScore(m),
		Metrics:    m,
		Violations: violations,
	}
	if len(violations) > 0 {
		out.Score = penalizedScore(len(violations))
	} else {
		out.Score = out.RawScore
	}

	metrics.RecordEvaluation(r.stage, string(out.Status), time.Since(start).Seconds())
	r.cache.Set(set, window, seed, out)
	return out
}

// RunMany evaluates a batch concurrently with at most workers
// goroutines, preserving input order. Cancellation marks unprocessed
// entries as failed.
func (r *Runner) RunMany(ctx context.Context, sets []params.Set, window dataset.Range, seeds []int64, workers int) []Outcome {
	if workers <= 0 {
		workers = 1
	}
	outcomes := make([]Outcome, len(sets))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes[i] = failedOutcome(err)
					continue
				}
				outcomes[i] = r.Run(ctx, sets[i], window, seeds[i])
			}
		}()
	}

	for i := range sets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}
