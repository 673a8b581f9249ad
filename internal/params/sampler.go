package params

import (
	"math/rand"
)

// SamplerMethod selects the quasi-random sequence used for the initial
// space exploration.
type SamplerMethod string

const (
	SamplerSobol SamplerMethod = "sobol"
	SamplerLHS   SamplerMethod = "lhs"
)

// Sampler draws space-filling parameter sets from a Space
type Sampler struct {
	space  *Space
	method SamplerMethod
	seed   int64
}

// NewSampler creates a sampler. Sobol is used when the space dimension
// is within the direction-number table; otherwise Latin hypercube.
func NewSampler(space *Space, method SamplerMethod, seed int64) *Sampler {
	if method == SamplerSobol && space.Dimensions() > maxSobolDims {
		method = SamplerLHS
	}
	return &Sampler{space: space, method: method, seed: seed}
}

// Sample draws n parameter sets
func (s *Sampler) Sample(n int) []Set {
	if n <= 0 {
		return nil
	}
	var unit [][]float64
	switch s.method {
	case SamplerSobol:
		unit = sobolPoints(n, s.space.Dimensions(), s.seed)
	default:
		unit = latinHypercube(n, s.space.Dimensions(), s.seed)
	}

	defs := s.space.defs
	sets := make([]Set, n)
	for i, row := range unit {
		set := make(Set, len(defs))
		for j, d := range defs {
			set[d.Name] = d.FromUnit(row[j])
		}
		sets[i] = set
	}
	return sets
}

// latinHypercube samples one point per stratum per dimension with
// independently shuffled strata.
func latinHypercube(n, dims int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, dims)
	}
	for j := 0; j < dims; j++ {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			points[i][j] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}
	return points
}

const maxSobolDims = 13

// Primitive polynomial degrees, coefficients and initial direction
// numbers for Sobol dimensions 2..13 (dimension 1 is the van der
// Corput sequence).
var sobolPoly = []struct {
	degree int
	coeff  uint32
	minit  []uint32
}{
	{1, 0, []uint32{1}},
	{2, 1, []uint32{1, 3}},
	{3, 1, []uint32{1, 3, 1}},
	{3, 2, []uint32{1, 1, 1}},
	{4, 1, []uint32{1, 1, 3, 3}},
	{4, 4, []uint32{1, 3, 5, 13}},
	{5, 2, []uint32{1, 1, 5, 5, 17}},
	{5, 4, []uint32{1, 1, 5, 5, 5}},
	{5, 7, []uint32{1, 1, 7, 11, 19}},
	{5, 11, []uint32{1, 1, 5, 1, 1}},
	{5, 13, []uint32{1, 1, 1, 3, 11}},
	{5, 14, []uint32{1, 3, 5, 5, 31}},
}

const sobolBits = 32

// sobolPoints generates the first n points of a digitally shifted
// Sobol sequence. The underlying sequence is padded to a power of two
// so the low-discrepancy structure survives truncation.
func sobolPoints(n, dims int, seed int64) [][]float64 {
	padded := 1
	for padded < n {
		padded <<= 1
	}

	// Direction vectors per dimension.
	v := make([][]uint32, dims)
	for d := 0; d < dims; d++ {
		v[d] = make([]uint32, sobolBits)
		if d == 0 {
			for k := 0; k < sobolBits; k++ {
				v[d][k] = 1 << (sobolBits - 1 - k)
			}
			continue
		}
		p := sobolPoly[d-1]
		deg := p.degree
		for k := 0; k < deg; k++ {
			v[d][k] = p.minit[k] << (sobolBits - 1 - k)
		}
		for k := deg; k < sobolBits; k++ {
			val := v[d][k-deg] ^ (v[d][k-deg] >> deg)
			for bit := 1; bit < deg; bit++ {
				if (p.coeff>>(deg-1-bit))&1 == 1 {
					val ^= v[d][k-bit]
				}
			}
			v[d][k] = val
		}
	}

	// Random digital shift per dimension keeps the sequence
	// deterministic in the seed while decorrelating repeated runs.
	rng := rand.New(rand.NewSource(seed))
	shift := make([]uint32, dims)
	for d := range shift {
		shift[d] = rng.Uint32()
	}

	points := make([][]float64, 0, n)
	x := make([]uint32, dims)
	for i := 0; i < padded && len(points) < n; i++ {
		if i > 0 {
			c := lowestZeroBit(uint32(i - 1))
			for d := 0; d < dims; d++ {
				x[d] ^= v[d][c]
			}
		}
		row := make([]float64, dims)
		for d := 0; d < dims; d++ {
			row[d] = float64(x[d]^shift[d]) / float64(1<<sobolBits)
		}
		points = append(points, row)
	}
	return points
}

func lowestZeroBit(i uint32) int {
	c := 0
	for i&1 == 1 {
		i >>= 1
		c++
	}
	return c
}
