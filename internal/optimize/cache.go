package optimize

import (
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/metrics"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

// EvalCache memoizes deterministic evaluation outcomes. Evaluations
// are pure in (params, window, seed), so repeated candidates across
// stages reuse prior work.
type EvalCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewEvalCache creates an evaluation cache
func NewEvalCache(ttl time.Duration) *EvalCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EvalCache{
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func evalKey(set params.Set, window dataset.Range, seed int64) string {
	return fmt.Sprintf("%s:%d:%d:%d", set.Hash(), window.Start, window.End, seed)
}

// Get retrieves a memoized outcome
func (c *EvalCache) Get(set params.Set, window dataset.Range, seed int64) (Outcome, bool) {
	if c == nil {
		return Outcome{}, false
	}
	if v, found := c.cache.Get(evalKey(set, window, seed)); found {
		if out, ok := v.(Outcome); ok {
			metrics.EvalCacheHitsTotal.Inc()
			return out, true
		}
	}
	metrics.EvalCacheMissesTotal.Inc()
	return Outcome{}, false
}

// Set stores an outcome
func (c *EvalCache) Set(set params.Set, window dataset.Range, seed int64, out Outcome) {
	if c == nil {
		return
	}
	c.cache.Set(evalKey(set, window, seed), out, c.ttl)
}

// ItemCount returns the number of memoized outcomes
func (c *EvalCache) ItemCount() int {
	if c == nil {
		return 0
	}
	return c.cache.ItemCount()
}
