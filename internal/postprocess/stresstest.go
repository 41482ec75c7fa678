package postprocess

import (
	"sort"

	"github.com/ashgrove-quant/barforge/internal/optimize"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// StressTestResult is one candidate's outcome under ST: every optimizable
// parameter perturbed ±1 schema step, re-run, and the retention of profit
// and RoMaD measured against the unperturbed base — grounded on the
// teacher's ParameterSensitivity.AnalyzeSensitivity, generalized from one
// named parameter varied by a ratio to every optimizable dimension varied
// by its declared step.
type StressTestResult struct {
	TrialNumber int
	Params      types.Params
	Status      Status

	NumPerturbations int
	ProfitRetention  Retention
	RoMaDRetention   Retention
	ProfitFailureRate float64 // fraction of perturbations with profit retention < threshold
	RoMaDFailureRate  float64
	CombinedFailureRate float64
}

// Retention summarizes a retention-ratio distribution across every
// perturbation run for one metric.
type Retention struct {
	P5     float64
	Median float64
	Worst  float64
}

// RunStressTest perturbs every optimizable dimension of candidate c by its
// two ±1-step neighbors (bounded by the schema's min/max), re-runs the
// strategy for each, and aggregates retention ratios.
func RunStressTest(strat strategy.Strategy, table types.OHLCVTable, tradeStartIdx int, c Candidate, schema types.ParamSchema, cfg types.PostProcessConfig) StressTestResult {
	result := StressTestResult{TrialNumber: c.TrialNumber, Params: c.Params}

	space := optimize.BuildSearchSpace(schema, c.Params)
	if len(space.Dimensions) == 0 {
		result.Status = StatusSkippedNoParams
		return result
	}

	baseProfit := c.IS.Basic.NetProfitPct
	if baseProfit <= 0 {
		result.Status = StatusSkippedBadBase
		return result
	}
	baseRoMaD := 0.0
	if c.IS.Advanced.RoMaD != nil {
		baseRoMaD = *c.IS.Advanced.RoMaD
	}

	var profitRatios, romadRatios []float64
	for _, d := range space.Dimensions {
		base := c.Params[d.Name]
		for _, neighbor := range d.StepNeighbors(base) {
			perturbed := clonePerturbed(c.Params, d.Name, neighbor)
			out, err := strat.Run(table, perturbed, tradeStartIdx)
			if err != nil {
				continue
			}
			profitRatios = append(profitRatios, out.Basic.NetProfitPct/baseProfit)
			if baseRoMaD != 0 && out.Advanced.RoMaD != nil {
				romadRatios = append(romadRatios, *out.Advanced.RoMaD/baseRoMaD)
			}
		}
	}

	result.NumPerturbations = len(profitRatios)
	if len(profitRatios) < 4 {
		result.Status = StatusInsufficientData
		return result
	}

	failureThreshold := cfg.FailureThreshold
	result.ProfitRetention = summarizeRetention(profitRatios)
	result.ProfitFailureRate = failureRate(profitRatios, failureThreshold)
	if len(romadRatios) > 0 {
		result.RoMaDRetention = summarizeRetention(romadRatios)
		result.RoMaDFailureRate = failureRate(romadRatios, failureThreshold)
	}
	result.CombinedFailureRate = (result.ProfitFailureRate + result.RoMaDFailureRate) / 2
	result.Status = StatusOK
	return result
}

func clonePerturbed(base types.Params, name string, value any) types.Params {
	out := make(types.Params, len(base))
	for k, v := range base {
		out[k] = v
	}
	out[name] = value
	return out
}

func summarizeRetention(ratios []float64) Retention {
	sorted := append([]float64(nil), ratios...)
	sort.Float64s(sorted)
	return Retention{
		P5:     percentile(sorted, 0.05),
		Median: percentile(sorted, 0.50),
		Worst:  sorted[0],
	}
}

func failureRate(ratios []float64, threshold float64) float64 {
	failed := 0
	for _, r := range ratios {
		if r < threshold {
			failed++
		}
	}
	return float64(failed) / float64(len(ratios))
}
