// Package optimize implements the trial sampler, objective/constraint
// evaluator, composite score, pruning, and coverage-mode initial design
// that make up the optimizer (C4): trials are dispatched to a bounded
// worker pool, each invoking the strategy executor (C2) and metrics (C3).
package optimize

import (
	"math"
	"math/rand"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// Dimension is one optimizable axis of the search space, derived from a
// ParamSpec flagged Optimize = true.
type Dimension struct {
	Name    string
	Kind    types.ParamKind
	Min     float64
	Max     float64
	Step    float64
	Options []string
}

// SearchSpace is the set of dimensions sampled per trial plus the fixed
// values for every other schema parameter.
type SearchSpace struct {
	Dimensions []Dimension
	Fixed      types.Params
}

// BuildSearchSpace partitions a strategy's schema into sampled dimensions
// and a fixed baseline, applying payload overrides for fixed parameters.
func BuildSearchSpace(schema types.ParamSchema, payload types.Params) SearchSpace {
	space := SearchSpace{Fixed: types.Params{}}
	for _, spec := range schema {
		if !spec.Optimize {
			if v, ok := payload[spec.Name]; ok {
				space.Fixed[spec.Name] = v
			} else {
				space.Fixed[spec.Name] = spec.Default
			}
			continue
		}
		dim := Dimension{Name: spec.Name, Kind: spec.Kind, Options: spec.Options}
		if spec.Min != nil {
			dim.Min = *spec.Min
		}
		if spec.Max != nil {
			dim.Max = *spec.Max
		}
		if spec.Step != nil {
			dim.Step = *spec.Step
		}
		space.Dimensions = append(space.Dimensions, dim)
	}
	return space
}

// Sample draws one uniformly random value per dimension, snapped to step
// where declared, and merges it over the fixed baseline.
func (s SearchSpace) Sample(rng *rand.Rand) types.Params {
	out := make(types.Params, len(s.Fixed)+len(s.Dimensions))
	for k, v := range s.Fixed {
		out[k] = v
	}
	for _, d := range s.Dimensions {
		out[d.Name] = d.sampleUniform(rng)
	}
	return out
}

func (d Dimension) sampleUniform(rng *rand.Rand) any {
	switch d.Kind {
	case types.ParamCategorical:
		if len(d.Options) == 0 {
			return ""
		}
		return d.Options[rng.Intn(len(d.Options))]
	case types.ParamBool:
		return rng.Float64() < 0.5
	case types.ParamInt:
		v := d.Min + rng.Float64()*(d.Max-d.Min)
		return int(math.Round(d.snap(v)))
	default:
		v := d.Min + rng.Float64()*(d.Max-d.Min)
		return d.snap(v)
	}
}

// snap rounds a continuous sample to the nearest step boundary and clamps
// it to [Min, Max].
func (d Dimension) snap(v float64) float64 {
	if d.Step > 0 {
		steps := math.Round((v - d.Min) / d.Step)
		v = d.Min + steps*d.Step
	}
	if v < d.Min {
		v = d.Min
	}
	if v > d.Max {
		v = d.Max
	}
	return v
}

// perturb generates a Gaussian-jittered neighbor of v, clamped to bounds —
// the move used by TPE's local refinement around good trials and by the
// NSGA mutation step.
func (d Dimension) perturb(rng *rand.Rand, v any, sigmaFrac float64) any {
	switch d.Kind {
	case types.ParamCategorical:
		if rng.Float64() < 0.3 && len(d.Options) > 1 {
			return d.Options[rng.Intn(len(d.Options))]
		}
		return v
	case types.ParamBool:
		if rng.Float64() < 0.2 {
			b, _ := v.(bool)
			return !b
		}
		return v
	case types.ParamInt:
		cur, _ := toFloat(v)
		delta := rng.NormFloat64() * (d.Max - d.Min) * sigmaFrac
		return int(math.Round(d.snap(cur + delta)))
	default:
		cur, _ := toFloat(v)
		delta := rng.NormFloat64() * (d.Max - d.Min) * sigmaFrac
		return d.snap(cur + delta)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// StepNeighbors returns the two values one Step away from v (for the
// Stress Test's ±1-step perturbation), bounded by [Min, Max] and omitted
// when out of range or undefined for the dimension kind.
func (d Dimension) StepNeighbors(v any) []any {
	if d.Kind == types.ParamCategorical || d.Kind == types.ParamBool || d.Step <= 0 {
		return nil
	}
	cur, ok := toFloat(v)
	if !ok {
		return nil
	}
	var out []any
	for _, sign := range []float64{-1, 1} {
		nv := cur + sign*d.Step
		if nv < d.Min || nv > d.Max {
			continue
		}
		if d.Kind == types.ParamInt {
			out = append(out, int(math.Round(nv)))
		} else {
			out = append(out, nv)
		}
	}
	return out
}
