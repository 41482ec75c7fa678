package optimize

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/internal/workers"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// RunRequest bundles everything one optimization study needs beyond its
// OptimizationConfig: the strategy under test, its schema, the dataset,
// and the trade-start bar the executor should honor (post warmup).
type RunRequest struct {
	Strategy      strategy.Strategy
	Schema        types.ParamSchema
	Payload       types.Params // fixed / non-optimized parameter overrides
	Table         types.OHLCVTable
	TradeStartIdx int
	Config        types.OptimizationConfig
}

// Summary is the headline result of a completed study (spec §4.3).
type Summary struct {
	TotalTrials     int
	CompletedTrials int
	PrunedTrials    int
	FailedTrials    int
	ParetoFrontSize int
	BestParams      types.Params
	BestObjectives  []float64
	Elapsed         time.Duration
}

// Output is the full result set of one optimization run.
type Output struct {
	Results []types.OptimizationResult
	Summary Summary
}

// Optimizer drives one study: sampling, dispatch, evaluation, sanitization,
// pruning, budget tracking, and final ranking.
type Optimizer struct {
	logger *zap.Logger
}

func NewOptimizer(logger *zap.Logger) *Optimizer {
	return &Optimizer{logger: logger}
}

// Run executes a study to completion (or until its budget is exhausted)
// and returns ranked results plus a summary.
func (o *Optimizer) Run(ctx context.Context, req RunRequest) (Output, error) {
	cfg := req.Config
	multiObjective := len(cfg.Objectives) >= 2
	if multiObjective {
		cfg.EnablePruning = false
		if cfg.Sampler != types.SamplerNSGA2 && cfg.Sampler != types.SamplerNSGA3 {
			cfg.Sampler = types.SamplerNSGA2
		}
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	numWorkers := workers.ClampWorkers(cfg.NumWorkers)
	if numWorkers > 1 && cfg.ScoreConfig.Normalization == types.NormalizationPercentile {
		// Percentile normalization needs the whole cohort visible at once;
		// parallel workers never see that, so minmax is used automatically.
		cfg.ScoreConfig.Normalization = types.NormalizationMinMax
	}

	space := BuildSearchSpace(req.Schema, req.Payload)
	rng := rand.New(rand.NewSource(cfg.Seed))

	sampler := o.buildSampler(space, cfg, multiObjective)

	pool := workers.NewPool(o.logger, workers.DefaultPoolConfig("optimizer", numWorkers))
	pool.Start()
	defer pool.Stop()

	start := time.Now()
	var history []*Trial
	var coverage []types.Params
	if cfg.CoverageModeTrials > 0 {
		coverage = CoverageDesign(space, cfg.CoverageModeTrials, rng)
	}

	bestScore := math.Inf(-1)
	noImprovement := 0

	batchSize := numWorkers
	for !o.budgetExhausted(cfg, len(history), start) {
		remaining := batchSize
		if cfg.BudgetMode == types.BudgetTrials && cfg.BudgetTrialsCount > 0 {
			if left := cfg.BudgetTrialsCount - len(history); left < remaining {
				remaining = left
			}
		}
		if remaining <= 0 {
			break
		}

		batch := make([]*Trial, remaining)
		var wg sync.WaitGroup
		for i := 0; i < remaining; i++ {
			idx := len(history) + i
			var params types.Params
			if idx < len(coverage) {
				params = coverage[idx]
			} else {
				params = sampler.Next(history, rng)
			}
			trial := &Trial{Index: idx, Params: params}
			batch[i] = trial

			wg.Add(1)
			t := trial
			if err := pool.SubmitFunc(func() error {
				defer wg.Done()
				result, err := req.Strategy.Run(req.Table, t.Params, req.TradeStartIdx)
				if err != nil {
					t.Failed = true
					return nil
				}
				t.Result = result
				EvaluateTrial(t, cfg.Objectives, cfg.Constraints, cfg)
				return nil
			}); err != nil {
				t.Failed = true
				wg.Done()
			}
		}
		wg.Wait()

		history = append(history, batch...)

		if !multiObjective && cfg.EnablePruning && cfg.Pruner != types.PrunerNone {
			applyPruning(history, cfg.Pruner)
		}

		improved := false
		for _, t := range batch {
			if t.Failed || t.Pruned {
				continue
			}
			if v := primaryObjective(t); v > bestScore {
				bestScore = v
				improved = true
			}
		}
		if improved {
			noImprovement = 0
		} else {
			noImprovement += len(batch)
		}
		if cfg.BudgetMode == types.BudgetConvergence && cfg.ConvergencePatience > 0 && noImprovement >= cfg.ConvergencePatience {
			break
		}
	}

	live := activeTrials(history)
	if multiObjective {
		fronts := nonDominatedSort(live)
		for rank, front := range fronts {
			for _, t := range front {
				t.Rank = rank
			}
		}
	} else {
		ApplyCompositeScore(live, cfg.ScoreConfig)
		sort.SliceStable(live, func(i, j int) bool { return live[i].Score > live[j].Score })
	}

	return o.buildOutput(history, live, multiObjective, start), nil
}

func (o *Optimizer) buildSampler(space SearchSpace, cfg types.OptimizationConfig, multiObjective bool) Sampler {
	switch cfg.Sampler {
	case types.SamplerNSGA2, types.SamplerNSGA3:
		pop := cfg.PopulationSize
		if pop <= 0 {
			pop = 24
		}
		return NewNSGASampler(space, cfg.Sampler, pop, len(cfg.Objectives), cfg.CrossoverProb, cfg.MutationProb)
	case types.SamplerTPE:
		warmup := cfg.WarmupTrials
		if cfg.CoverageModeTrials > 0 {
			warmup = 0
		}
		return NewTPESampler(space, warmup)
	default:
		return NewRandomSampler(space)
	}
}

func (o *Optimizer) budgetExhausted(cfg types.OptimizationConfig, completed int, start time.Time) bool {
	switch cfg.BudgetMode {
	case types.BudgetTime:
		return time.Since(start).Seconds() >= cfg.BudgetTimeSeconds
	case types.BudgetTrials:
		return cfg.BudgetTrialsCount > 0 && completed >= cfg.BudgetTrialsCount
	default:
		return false // convergence is checked after each batch in Run
	}
}

// applyPruning discards trials whose primary objective falls below the
// cohort median (median pruner) or the cohort's 25th percentile
// (percentile pruner); the patient pruner tolerates underperformance for a grace
// window before pruning, approximated here as the median pruner restricted
// to trials past the first quarter of the history so early noise isn't
// punished.
func applyPruning(history []*Trial, pruner types.Pruner) {
	complete := completedTrials(history)
	if len(complete) < 4 {
		return
	}
	values := make([]float64, len(complete))
	for i, t := range complete {
		values[i] = primaryObjective(t)
	}
	sort.Float64s(values)

	threshold := values[len(values)/2]
	if pruner == types.PrunerPercentile {
		threshold = values[len(values)/4]
	}

	graceCutoff := 0
	if pruner == types.PrunerPatient {
		graceCutoff = len(history) / 4
	}

	for _, t := range history {
		if t.Failed || t.Pruned {
			continue
		}
		if t.Index < graceCutoff {
			continue
		}
		if primaryObjective(t) < threshold {
			t.Pruned = true
		}
	}
}

func activeTrials(history []*Trial) []*Trial {
	out := make([]*Trial, 0, len(history))
	for _, t := range history {
		if !t.Failed {
			out = append(out, t)
		}
	}
	return out
}

func (o *Optimizer) buildOutput(history, ranked []*Trial, multiObjective bool, start time.Time) Output {
	results := make([]types.OptimizationResult, 0, len(history))
	pruned, failed := 0, 0
	paretoSize := 0
	for _, t := range history {
		if t.Pruned {
			pruned++
		}
		if t.Failed {
			failed++
		}
		isPareto := multiObjective && t.Rank == 0 && !t.Failed
		if isPareto {
			paretoSize++
		}
		r := types.OptimizationResult{
			TrialNumber:          t.Index,
			Params:               t.Params,
			ObjectiveValues:      t.Objectives,
			ConstraintValues:     t.Constraints,
			ConstraintsSatisfied: t.Satisfied,
			Basic:                t.Result.Basic,
			Advanced:             t.Result.Advanced,
			Pareto:               isPareto,
			DominanceRank:        t.Rank,
			Failed:               t.Failed,
		}
		if !t.Failed {
			score := t.Score
			r.Score = &score
		}
		if t.Failed {
			r.FailureReason = "non-finite objective"
		} else if t.Pruned {
			r.FailureReason = "pruned"
		}
		results = append(results, r)
	}

	summary := Summary{
		TotalTrials:     len(history),
		CompletedTrials: len(history) - failed,
		PrunedTrials:    pruned,
		FailedTrials:    failed,
		ParetoFrontSize: paretoSize,
		Elapsed:         time.Since(start),
	}
	if len(ranked) > 0 {
		best := ranked[0]
		summary.BestParams = best.Params
		summary.BestObjectives = best.Objectives
	}
	return Output{Results: results, Summary: summary}
}
