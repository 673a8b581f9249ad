package params

import "hash/fnv"

// DeriveSeed produces a deterministic RNG seed for one unit of work.
// Identical (globalSeed, stage, ordinal) always yields the same seed so
// repeated runs replay the same random streams.
func DeriveSeed(globalSeed int64, stage string, ordinal int) int64 {
	h := fnv.New64a()
	var buf [8]byte
	putUint64(buf[:], uint64(globalSeed))
	h.Write(buf[:])
	h.Write([]byte(stage))
	putUint64(buf[:], uint64(ordinal))
	h.Write(buf[:])
	seed := int64(h.Sum64())
	if seed < 0 {
		seed = -seed
	}
	return seed
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
