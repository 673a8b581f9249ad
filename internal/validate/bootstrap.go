// Package validate implements the out-of-sample defense: purged
// cross-validation, walk-forward analysis, Monte Carlo robustness and
// multiple-testing-aware significance checks.
package validate

import (
	"math"
	"math/rand"
)

const (
	minBlockLength = 5
	maxBlockLength = 50
)

// autocorrelation computes the ACF of a series up to maxLag
func autocorrelation(values []float64, maxLag int) []float64 {
	n := len(values)
	if n == 0 || maxLag <= 0 {
		return nil
	}
	if maxLag >= n {
		maxLag = n - 1
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	if variance == 0 {
		return make([]float64, maxLag+1)
	}

	acf := make([]float64, maxLag+1)
	acf[0] = 1.0
	for lag := 1; lag <= maxLag; lag++ {
		cov := 0.0
		for i := lag; i < n; i++ {
			cov += (values[i] - mean) * (values[i-lag] - mean)
		}
		acf[lag] = cov / variance
	}
	return acf
}

// blockLengthFromACF picks the bootstrap block length as the lag where
// autocorrelation decays to half its peak, clamped to [5, 50].
func blockLengthFromACF(values []float64) int {
	acf := autocorrelation(values, maxBlockLength*2)
	if len(acf) < 2 {
		return minBlockLength
	}

	peak := 0.0
	for _, a := range acf[1:] {
		if abs := math.Abs(a); abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return minBlockLength
	}

	half := 0.5 * peak
	length := maxBlockLength
	for lag := 1; lag < len(acf); lag++ {
		if math.Abs(acf[lag]) <= half {
			length = lag
			break
		}
	}

	if length < minBlockLength {
		return minBlockLength
	}
	if length > maxBlockLength {
		return maxBlockLength
	}
	return length
}

// blockBootstrap resamples contiguous blocks with replacement. The
// output length is exactly len(values).
func blockBootstrap(values []float64, blockLen int, rng *rand.Rand) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if blockLen <= 0 || blockLen > n {
		blockLen = n
	}

	out := make([]float64, 0, n)
	for len(out) < n {
		start := rng.Intn(n - blockLen + 1)
		take := blockLen
		if remaining := n - len(out); take > remaining {
			take = remaining
		}
		out = append(out, values[start:start+take]...)
	}
	return out
}

// resampleStructured draws winners from winners and losers from losers
// with replacement, preserving the win/loss counts exactly, then
// shuffles the order.
func resampleStructured(values []float64, rng *rand.Rand) []float64 {
	winners := make([]float64, 0, len(values))
	losers := make([]float64, 0, len(values))
	zeros := 0
	for _, v := range values {
		switch {
		case v > 0:
			winners = append(winners, v)
		case v < 0:
			losers = append(losers, v)
		default:
			zeros++
		}
	}

	out := make([]float64, 0, len(values))
	for i := 0; i < len(winners); i++ {
		out = append(out, winners[rng.Intn(len(winners))])
	}
	for i := 0; i < len(losers); i++ {
		out = append(out, losers[rng.Intn(len(losers))])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, 0)
	}

	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
