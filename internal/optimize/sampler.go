package optimize

import (
	"math/rand"
	"sort"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// Sampler proposes the next parameter set to evaluate, given every trial
// evaluated so far in this study.
type Sampler interface {
	Next(history []*Trial, rng *rand.Rand) types.Params
}

// RandomSampler draws uniformly from the search space. It is the baseline
// every other sampler is compared against.
type RandomSampler struct {
	Space SearchSpace
}

func NewRandomSampler(space SearchSpace) *RandomSampler { return &RandomSampler{Space: space} }

func (s *RandomSampler) Next(history []*Trial, rng *rand.Rand) types.Params {
	return s.Space.Sample(rng)
}

// TPESampler is a simplified Tree-structured Parzen Estimator: it splits
// completed trials into a "good" and "bad" group at the gamma quantile of
// the primary objective, then samples candidates by perturbing good-group
// values and keeps the one whose per-dimension distance to the centroid of
// all completed trials (standing in for the bad group) is largest
// relative to the good group's centroid (the standard TPE acceptance
// ratio, approximated with a Gaussian kernel instead of a full Parzen-
// window density since no teacher code builds a KDE).
type TPESampler struct {
	Space        SearchSpace
	Gamma        float64 // quantile splitting good/bad, default 0.25
	Candidates   int     // candidates drawn per Next call before picking the best
	WarmupTrials int     // number of pure-random trials before TPE kicks in
}

func NewTPESampler(space SearchSpace, warmupTrials int) *TPESampler {
	return &TPESampler{Space: space, Gamma: 0.25, Candidates: 24, WarmupTrials: warmupTrials}
}

func (s *TPESampler) Next(history []*Trial, rng *rand.Rand) types.Params {
	complete := completedTrials(history)
	if len(complete) < s.WarmupTrials || len(complete) < 4 {
		return s.Space.Sample(rng)
	}

	sort.Slice(complete, func(a, b int) bool { return primaryObjective(complete[a]) > primaryObjective(complete[b]) })
	cut := int(float64(len(complete)) * s.Gamma)
	if cut < 1 {
		cut = 1
	}
	good := complete[:cut]

	best := s.Space.Sample(rng)
	bestScore := -1.0
	for i := 0; i < s.Candidates; i++ {
		seed := good[rng.Intn(len(good))]
		cand := s.perturbFrom(seed.Params, rng)
		score := s.likelihoodRatio(cand, good, complete)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

func (s *TPESampler) perturbFrom(base types.Params, rng *rand.Rand) types.Params {
	out := make(types.Params, len(s.Space.Fixed)+len(s.Space.Dimensions))
	for k, v := range s.Space.Fixed {
		out[k] = v
	}
	for _, d := range s.Space.Dimensions {
		v, ok := base[d.Name]
		if !ok {
			v = d.sampleUniform(rng)
		}
		out[d.Name] = d.perturb(rng, v, 0.2)
	}
	return out
}

// likelihoodRatio approximates l(x)/g(x): distance to the centroid of all
// completed trials minus distance to the good group's centroid, summed across
// numeric dimensions. Larger is "more good-like".
func (s *TPESampler) likelihoodRatio(cand types.Params, good, all []*Trial) float64 {
	score := 0.0
	for _, d := range s.Space.Dimensions {
		cv, ok := toFloat(cand[d.Name])
		if !ok {
			continue
		}
		goodMean := meanOfParam(good, d.Name)
		allMean := meanOfParam(all, d.Name)
		span := d.Max - d.Min
		if span <= 0 {
			span = 1
		}
		score += -absFloat(cv-goodMean)/span + absFloat(cv-allMean)/span
	}
	return score
}

func meanOfParam(trials []*Trial, name string) float64 {
	sum, n := 0.0, 0.0
	for _, t := range trials {
		if v, ok := toFloat(t.Params[name]); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func completedTrials(history []*Trial) []*Trial {
	out := make([]*Trial, 0, len(history))
	for _, t := range history {
		if !t.Failed && !t.Pruned {
			out = append(out, t)
		}
	}
	return out
}

// primaryObjective returns a single scalar for sorting when a sampler
// needs a total order (TPE, and single-objective pruning).
func primaryObjective(t *Trial) float64 {
	if len(t.Objectives) == 0 {
		return t.Score
	}
	return t.Objectives[0]
}
