package params

import "math/rand"

// Perturb returns a copy of the set with each value jittered by
// Gaussian noise scaled to stdFrac of its magnitude, then sanitized
// back into the space.
func Perturb(space *Space, set Set, stdFrac float64, rng *rand.Rand) Set {
	out := make(Set, len(set))
	for _, d := range space.defs {
		v := set[d.Name]
		scale := stdFrac * abs(v)
		if scale == 0 {
			scale = stdFrac
		}
		out[d.Name] = d.Sanitize(v + rng.NormFloat64()*scale)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
