package params

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Set holds concrete parameter values keyed by name
type Set map[string]float64

// Float returns the value for name, or 0 when absent
func (s Set) Float(name string) float64 {
	return s[name]
}

// Int returns the rounded value for name with a floor of 1
func (s Set) Int(name string) int {
	v := int(math.Round(s[name]))
	if v < 1 {
		return 1
	}
	return v
}

// Clone returns an independent copy
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Hash creates a stable hash for the parameter set
func (s Set) Hash() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, s[k])
	}
	data, _ := json.Marshal(ordered)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}
