package optimize

import (
	"math"
	"math/rand"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// NSGASampler is a generational multi-objective genetic sampler, grounded
// on the teacher's tournament-selection / uniform-crossover / Gaussian-
// mutation genetic algorithm, with non-dominated sorting and a niching
// step added for multi-objective ranking (neither exists in the teacher,
// which only ever optimized a single scalar objective).
//
// Variant NSGA2 niches by crowding distance in objective space; Variant
// NSGA3 niches against a fixed set of reference directions on the
// normalized objective simplex, which scales better past 3 objectives.
// Multi-objective runs always disable pruning (spec §4.3), so neither
// variant needs to consult a Pruner.
type NSGASampler struct {
	Space          SearchSpace
	PopulationSize int
	CrossoverProb  float64
	MutationProb   float64
	Variant        types.Sampler // SamplerNSGA2 or SamplerNSGA3
	NumObjectives  int

	generation []types.Params
	refPoints  [][]float64
}

func NewNSGASampler(space SearchSpace, variant types.Sampler, populationSize, numObjectives int, crossoverProb, mutationProb float64) *NSGASampler {
	if populationSize < 4 {
		populationSize = 4
	}
	s := &NSGASampler{
		Space:          space,
		PopulationSize: populationSize,
		CrossoverProb:  crossoverProb,
		MutationProb:   mutationProb,
		Variant:        variant,
		NumObjectives:  numObjectives,
	}
	if variant == types.SamplerNSGA3 {
		s.refPoints = dasDenisReferencePoints(numObjectives, referenceDivisions(numObjectives))
	}
	return s
}

func referenceDivisions(numObjectives int) int {
	if numObjectives <= 2 {
		return 12
	}
	if numObjectives == 3 {
		return 6
	}
	return 4
}

func (s *NSGASampler) Next(history []*Trial, rng *rand.Rand) types.Params {
	genIdx := len(history) / s.PopulationSize
	pos := len(history) % s.PopulationSize

	if pos == 0 {
		if genIdx == 0 {
			s.generation = make([]types.Params, s.PopulationSize)
			for i := range s.generation {
				s.generation[i] = s.Space.Sample(rng)
			}
		} else {
			prevGen := history[len(history)-s.PopulationSize:]
			s.rankPopulation(prevGen)
			s.generation = s.evolve(prevGen, rng)
		}
	}
	if pos < len(s.generation) {
		return s.generation[pos]
	}
	return s.Space.Sample(rng)
}

// rankPopulation assigns Rank (non-domination front) and Crowding (or, for
// NSGA3, distance to nearest reference point) to every trial in the
// generation, in place.
func (s *NSGASampler) rankPopulation(gen []*Trial) {
	fronts := nonDominatedSort(gen)
	for rank, front := range fronts {
		for _, t := range front {
			t.Rank = rank
		}
		if s.Variant == types.SamplerNSGA3 {
			assignReferenceDistance(front, s.refPoints)
		} else {
			assignCrowdingDistance(front)
		}
	}
}

func (s *NSGASampler) evolve(prevGen []*Trial, rng *rand.Rand) []types.Params {
	next := make([]types.Params, 0, s.PopulationSize)

	// Elitism: carry the current Pareto front forward unmutated, same idea
	// as the teacher's single-objective elite retention.
	elite := frontOf(prevGen, 0)
	for _, t := range elite {
		if len(next) >= s.PopulationSize {
			break
		}
		next = append(next, copyTrialParams(t))
	}

	for len(next) < s.PopulationSize {
		parentA := tournamentSelect(prevGen, rng)
		parentB := tournamentSelect(prevGen, rng)
		child := parentA.Params
		if rng.Float64() < s.CrossoverProb {
			child = crossover(parentA.Params, parentB.Params, s.Space, rng)
		}
		child = mutate(child, s.Space, rng, s.MutationProb)
		next = append(next, child)
	}
	return next
}

func copyTrialParams(t *Trial) types.Params {
	out := make(types.Params, len(t.Params))
	for k, v := range t.Params {
		out[k] = v
	}
	return out
}

// tournamentSelect picks the better of 3 random individuals by
// (rank asc, crowding/reference-distance desc), the NSGA-II crowded
// comparison operator.
func tournamentSelect(pop []*Trial, rng *rand.Rand) *Trial {
	const size = 3
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < size; i++ {
		c := pop[rng.Intn(len(pop))]
		if c.Rank < best.Rank || (c.Rank == best.Rank && c.Crowding > best.Crowding) {
			best = c
		}
	}
	return best
}

// crossover performs uniform 50/50 per-parameter selection between two
// parents, matching the teacher's genetic algorithm.
func crossover(a, b types.Params, space SearchSpace, rng *rand.Rand) types.Params {
	out := make(types.Params, len(a))
	for k, v := range a {
		out[k] = v
	}
	for _, d := range space.Dimensions {
		if rng.Float64() < 0.5 {
			out[d.Name] = b[d.Name]
		}
	}
	return out
}

// mutate applies the teacher's Gaussian-delta mutation (NormFloat64 scaled
// by 10% of the dimension's range) independently per dimension with
// probability mutationProb.
func mutate(p types.Params, space SearchSpace, rng *rand.Rand, mutationProb float64) types.Params {
	out := make(types.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, d := range space.Dimensions {
		if rng.Float64() >= mutationProb {
			continue
		}
		out[d.Name] = d.perturb(rng, out[d.Name], 0.1)
	}
	return out
}

func frontOf(trials []*Trial, rank int) []*Trial {
	var out []*Trial
	for _, t := range trials {
		if t.Rank == rank {
			out = append(out, t)
		}
	}
	return out
}

// dominates reports whether a dominates b: at least as good on every
// objective and strictly better on at least one (objectives are already in
// maximize sense).
func dominates(a, b *Trial) bool {
	strictlyBetter := false
	for i := range a.Objectives {
		if a.Objectives[i] < b.Objectives[i] {
			return false
		}
		if a.Objectives[i] > b.Objectives[i] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// nonDominatedSort implements the classic fast non-dominated sort (Deb et
// al.), partitioning trials into successive Pareto fronts.
func nonDominatedSort(trials []*Trial) [][]*Trial {
	n := len(trials)
	dominatedBy := make([][]int, n)
	dominationCount := make([]int, n)
	var fronts [][]*Trial
	front0 := []int{}

	for p := 0; p < n; p++ {
		for q := 0; q < n; q++ {
			if p == q {
				continue
			}
			if dominates(trials[p], trials[q]) {
				dominatedBy[p] = append(dominatedBy[p], q)
			} else if dominates(trials[q], trials[p]) {
				dominationCount[p]++
			}
		}
		if dominationCount[p] == 0 {
			front0 = append(front0, p)
		}
	}

	current := front0
	for len(current) > 0 {
		var frontTrials []*Trial
		var next []int
		for _, p := range current {
			frontTrials = append(frontTrials, trials[p])
			for _, q := range dominatedBy[p] {
				dominationCount[q]--
				if dominationCount[q] == 0 {
					next = append(next, q)
				}
			}
		}
		fronts = append(fronts, frontTrials)
		current = next
	}
	return fronts
}

// assignCrowdingDistance implements the NSGA-II crowding distance: for each
// objective, sort the front and accumulate normalized gaps to neighbors;
// boundary points get infinite distance so they are always retained.
func assignCrowdingDistance(front []*Trial) {
	n := len(front)
	if n == 0 {
		return
	}
	for _, t := range front {
		t.Crowding = 0
	}
	if n <= 2 {
		for _, t := range front {
			t.Crowding = math.Inf(1)
		}
		return
	}
	numObj := len(front[0].Objectives)
	for m := 0; m < numObj; m++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sortByObjective(front, idx, m)
		front[idx[0]].Crowding = math.Inf(1)
		front[idx[n-1]].Crowding = math.Inf(1)
		lo, hi := front[idx[0]].Objectives[m], front[idx[n-1]].Objectives[m]
		span := hi - lo
		if span <= 0 {
			continue
		}
		for i := 1; i < n-1; i++ {
			prev := front[idx[i-1]].Objectives[m]
			next := front[idx[i+1]].Objectives[m]
			front[idx[i]].Crowding += (next - prev) / span
		}
	}
}

func sortByObjective(front []*Trial, idx []int, m int) {
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && front[idx[j-1]].Objectives[m] > front[idx[j]].Objectives[m]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
}

// assignReferenceDistance implements the NSGA-III niching measure: each
// trial's Crowding field is repurposed to hold the negative distance to its
// nearest reference direction on the normalized objective simplex (negative
// so the same "larger Crowding is better" tournament comparator applies).
func assignReferenceDistance(front []*Trial, refPoints [][]float64) {
	if len(refPoints) == 0 || len(front) == 0 {
		for _, t := range front {
			t.Crowding = 0
		}
		return
	}
	numObj := len(front[0].Objectives)
	mins := make([]float64, numObj)
	maxs := make([]float64, numObj)
	for m := 0; m < numObj; m++ {
		mins[m] = math.Inf(1)
		maxs[m] = math.Inf(-1)
	}
	for _, t := range front {
		for m, v := range t.Objectives {
			if v < mins[m] {
				mins[m] = v
			}
			if v > maxs[m] {
				maxs[m] = v
			}
		}
	}
	for _, t := range front {
		norm := make([]float64, numObj)
		for m, v := range t.Objectives {
			span := maxs[m] - mins[m]
			if span <= 0 {
				norm[m] = 0
			} else {
				norm[m] = (v - mins[m]) / span
			}
		}
		best := math.Inf(1)
		for _, ref := range refPoints {
			d := perpendicularDistance(norm, ref)
			if d < best {
				best = d
			}
		}
		t.Crowding = -best
	}
}

// perpendicularDistance measures how far point falls from the ray through
// the origin in direction ref — the standard NSGA-III association metric.
func perpendicularDistance(point, ref []float64) float64 {
	var dot, refNormSq float64
	for i := range ref {
		dot += point[i] * ref[i]
		refNormSq += ref[i] * ref[i]
	}
	if refNormSq == 0 {
		return vectorNorm(point)
	}
	t := dot / refNormSq
	proj := make([]float64, len(ref))
	for i := range ref {
		proj[i] = t * ref[i]
	}
	var sumSq float64
	for i := range point {
		diff := point[i] - proj[i]
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq)
}

func vectorNorm(v []float64) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	return math.Sqrt(sumSq)
}

func dasDenisReferencePoints(numObjectives, divisions int) [][]float64 {
	var points [][]float64
	var recurse func(remaining, dims int, acc []float64)
	recurse = func(remaining, dims int, acc []float64) {
		if dims == 1 {
			point := append(append([]float64{}, acc...), float64(remaining)/float64(divisions))
			points = append(points, point)
			return
		}
		for i := 0; i <= remaining; i++ {
			recurse(remaining-i, dims-1, append(acc, float64(i)/float64(divisions)))
		}
	}
	recurse(divisions, numObjectives, nil)
	return points
}
