package optimize

import (
	"math"
	"math/rand"
	"sort"

	"github.com/yourusername/strategy-optimizer/internal/params"
)

// tpeTrial is one observed (parameters, score) pair
type tpeTrial struct {
	set   params.Set
	score float64
}

// focusBound restricts one parameter to a refinement interval
type focusBound struct {
	def params.Definition
	min float64
	max float64
}

// tpeSampler proposes parameter sets by modeling good and bad trials
// as kernel density mixtures and maximizing their density ratio,
// independently per parameter.
type tpeSampler struct {
	bounds     []focusBound
	gamma      float64 // quantile separating good from bad trials
	candidates int     // proposals scored per suggestion
	startup    int     // random trials before the model kicks in
	rng        *rand.Rand
}

func newTPESampler(bounds []focusBound, seed int64) *tpeSampler {
	return &tpeSampler{
		bounds:     bounds,
		gamma:      0.25,
		candidates: 24,
		startup:    10,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// suggest proposes the next parameter set given the observed trials
func (s *tpeSampler) suggest(trials []tpeTrial) params.Set {
	if len(trials) < s.startup {
		return s.uniform()
	}

	sorted := append([]tpeTrial{}, trials...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
	nGood := int(math.Ceil(s.gamma * float64(len(sorted))))
	if nGood < 2 {
		nGood = 2
	}
	good := sorted[:nGood]
	bad := sorted[nGood:]
	if len(bad) < 2 {
		return s.uniform()
	}

	set := make(params.Set, len(s.bounds))
	for _, b := range s.bounds {
		goodVals := valuesOf(good, b.def.Name)
		badVals := valuesOf(bad, b.def.Name)
		set[b.def.Name] = b.def.Sanitize(s.suggestDim(b, goodVals, badVals))
	}
	return set
}

// suggestDim samples candidates from the good-trial mixture and keeps
// the one with the best good/bad density ratio.
func (s *tpeSampler) suggestDim(b focusBound, good, bad []float64) float64 {
	span := b.max - b.min
	goodBW := kdeBandwidth(good, span)
	badBW := kdeBandwidth(bad, span)

	best := 0.0
	bestRatio := math.Inf(-1)
	for i := 0; i < s.candidates; i++ {
		// Draw from the good mixture: pick a kernel center, jitter.
		center := good[s.rng.Intn(len(good))]
		x := center + s.rng.NormFloat64()*goodBW
		if x < b.min {
			x = b.min
		}
		if x > b.max {
			x = b.max
		}
		ratio := kdeDensity(x, good, goodBW) / (kdeDensity(x, bad, badBW) + 1e-12)
		if ratio > bestRatio {
			bestRatio = ratio
			best = x
		}
	}
	return best
}

func (s *tpeSampler) uniform() params.Set {
	set := make(params.Set, len(s.bounds))
	for _, b := range s.bounds {
		set[b.def.Name] = b.def.Sanitize(b.min + s.rng.Float64()*(b.max-b.min))
	}
	return set
}

func valuesOf(trials []tpeTrial, name string) []float64 {
	vals := make([]float64, len(trials))
	for i, t := range trials {
		vals[i] = t.set[name]
	}
	return vals
}

// kdeBandwidth uses the sample deviation with a floor of 10% of the
// focus span so degenerate clusters still explore.
func kdeBandwidth(values []float64, span float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	bw := math.Sqrt(variance / float64(len(values)))
	if floor := 0.1 * span; bw < floor {
		bw = floor
	}
	return bw
}

func kdeDensity(x float64, centers []float64, bw float64) float64 {
	sum := 0.0
	for _, c := range centers {
		z := (x - c) / bw
		sum += math.Exp(-0.5 * z * z)
	}
	return sum / (float64(len(centers)) * bw * math.Sqrt(2*math.Pi))
}
