package optimize

import (
	"math/rand"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// CoverageDesign builds a deterministic, space-filling initial design for
// the first n trials of a study (spec §4.3 "coverage mode"): each
// dimension is divided into n strata and independently shuffled (a Latin
// hypercube), except the main axis — the categorical dimension with the
// most options, typically the MA-type selector — which is cycled
// round-robin instead of shuffled so every option gets equal, evenly
// spaced representation across the design.
func CoverageDesign(space SearchSpace, n int, rng *rand.Rand) []types.Params {
	if n <= 0 {
		return nil
	}
	mainAxis := mainAxisIndex(space.Dimensions)

	strata := make([][]float64, len(space.Dimensions))
	for i := range space.Dimensions {
		if i == mainAxis {
			continue
		}
		strata[i] = latinStrata(n, rng)
	}

	out := make([]types.Params, n)
	for row := 0; row < n; row++ {
		p := make(types.Params, len(space.Fixed)+len(space.Dimensions))
		for k, v := range space.Fixed {
			p[k] = v
		}
		for i, d := range space.Dimensions {
			if i == mainAxis {
				p[d.Name] = roundRobinValue(d, row, n)
				continue
			}
			p[d.Name] = stratumValue(d, strata[i][row])
		}
		out[row] = p
	}
	return out
}

// mainAxisIndex returns the index of the categorical dimension with the
// most options, or -1 if there is no categorical dimension.
func mainAxisIndex(dims []Dimension) int {
	best, bestCount := -1, 0
	for i, d := range dims {
		if d.Kind == types.ParamCategorical && len(d.Options) > bestCount {
			best, bestCount = i, len(d.Options)
		}
	}
	return best
}

// latinStrata returns n values, one drawn uniformly from each of n equal
// strata of [0,1), then shuffled so strata don't line up across
// dimensions.
func latinStrata(n int, rng *rand.Rand) []float64 {
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := float64(i) / float64(n)
		hi := float64(i+1) / float64(n)
		vals[i] = lo + rng.Float64()*(hi-lo)
	}
	rng.Shuffle(n, func(i, j int) { vals[i], vals[j] = vals[j], vals[i] })
	return vals
}

func stratumValue(d Dimension, u float64) any {
	switch d.Kind {
	case types.ParamCategorical:
		if len(d.Options) == 0 {
			return ""
		}
		idx := int(u * float64(len(d.Options)))
		if idx >= len(d.Options) {
			idx = len(d.Options) - 1
		}
		return d.Options[idx]
	case types.ParamBool:
		return u < 0.5
	case types.ParamInt:
		v := d.Min + u*(d.Max-d.Min)
		return int(d.snap(v))
	default:
		return d.snap(d.Min + u*(d.Max-d.Min))
	}
}

func roundRobinValue(d Dimension, row, n int) any {
	if len(d.Options) == 0 {
		return ""
	}
	return d.Options[row%len(d.Options)]
}
