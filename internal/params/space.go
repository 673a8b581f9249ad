// Package params defines typed parameter spaces and the samplers that
// explore them.
package params

import (
	"fmt"
	"math"
)

// Kind is the value type of a parameter
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
)

// Definition describes one tunable parameter
type Definition struct {
	Name     string  `json:"name"`
	Kind     Kind    `json:"kind"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	LogScale bool    `json:"log_scale,omitempty"`
}

// Sanitize clamps a raw value into the definition's bounds and applies
// the type floors: integers round and never drop below 1, floats never
// drop below 0.01.
func (d Definition) Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = d.Min
	}
	if v < d.Min {
		v = d.Min
	}
	if v > d.Max {
		v = d.Max
	}
	if d.Kind == KindInt {
		v = math.Round(v)
		if v > d.Max {
			v = math.Floor(d.Max)
		}
		if v < 1 {
			v = 1
		}
		return v
	}
	if v < 0.01 {
		v = 0.01
	}
	return v
}

// FromUnit maps a unit-interval sample onto the parameter's range,
// using a logarithmic mapping for multiplicative parameters.
func (d Definition) FromUnit(u float64) float64 {
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	var v float64
	if d.LogScale {
		v = math.Exp(math.Log(d.Min) + u*(math.Log(d.Max)-math.Log(d.Min)))
	} else {
		v = d.Min + u*(d.Max-d.Min)
	}
	return d.Sanitize(v)
}

// Space is an ordered, validated collection of parameter definitions
type Space struct {
	defs   []Definition
	byName map[string]int
}

// NewSpace validates the definitions and builds a space
func NewSpace(defs ...Definition) (*Space, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("parameter space requires at least one definition")
	}
	byName := make(map[string]int, len(defs))
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("parameter %d has no name", i)
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", d.Name)
		}
		if d.Kind != KindInt && d.Kind != KindFloat {
			return nil, fmt.Errorf("parameter %q has unknown kind %q", d.Name, d.Kind)
		}
		if !(d.Min < d.Max) {
			return nil, fmt.Errorf("parameter %q: min %v must be below max %v", d.Name, d.Min, d.Max)
		}
		if d.LogScale && d.Min <= 0 {
			return nil, fmt.Errorf("parameter %q: log scale requires positive bounds", d.Name)
		}
		byName[d.Name] = i
	}
	return &Space{defs: defs, byName: byName}, nil
}

// Definitions returns the ordered definitions
func (s *Space) Dimensions() int { return len(s.defs) }

// Definitions returns a copy of the ordered definitions
func (s *Space) Definitions() []Definition {
	return append([]Definition{}, s.defs...)
}

// Definition looks up a definition by name
func (s *Space) Definition(name string) (Definition, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// Sanitize returns a copy of the set with every value clamped into the
// space. Unknown keys are dropped, missing keys default to min.
func (s *Space) Sanitize(set Set) Set {
	out := make(Set, len(s.defs))
	for _, d := range s.defs {
		v, ok := set[d.Name]
		if !ok {
			v = d.Min
		}
		out[d.Name] = d.Sanitize(v)
	}
	return out
}

// Validate checks that the set covers every parameter within bounds
func (s *Space) Validate(set Set) error {
	for _, d := range s.defs {
		v, ok := set[d.Name]
		if !ok {
			return fmt.Errorf("missing parameter %q", d.Name)
		}
		if v < d.Min || v > d.Max {
			return fmt.Errorf("parameter %q value %v outside [%v, %v]", d.Name, v, d.Min, d.Max)
		}
	}
	return nil
}
