package postprocess

import (
	"math"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// eulerMascheroni is γ, used in the expected-maximum-Sharpe benchmark.
const eulerMascheroni = 0.5772156649015329

// DSRResult is one candidate's Deflated Sharpe Ratio: the probability that
// its observed Sharpe ratio exceeds the benchmark expected from selecting
// the best of N independent trials by chance alone.
type DSRResult struct {
	TrialNumber     int
	Params          types.Params
	SharpeRatio     float64
	Skewness        float64
	Kurtosis        float64 // excess
	NumReturns      int
	BenchmarkSharpe float64 // SR0: expected max Sharpe under the null
	DeflatedSharpe  float64 // probability in [0,1]
}

// EstimateIndependentTrials estimates the effective number of independent
// trials behind a study's full trial set for the expected-max-Sharpe
// benchmark (spec §4.4: "estimates independent-trial count from full trial
// set"). This implementation uses the trial count itself, not adjusted
// for inter-trial correlation — the reference formula's correlation
// correction needs the per-trial return series, which the optimizer does not
// retain once a trial scores, so here N is an upper bound on the effective
// trial count, which deflates at least as much as a true effective-N
// estimate would.
func EstimateIndependentTrials(totalTrials int) int {
	if totalTrials < 1 {
		return 1
	}
	return totalTrials
}

// expectedMaxSharpe computes Bailey & López de Prado's closed-form
// approximation for E[max(SR_1..SR_N)] given the cross-trial Sharpe
// standard deviation and trial count N.
func expectedMaxSharpe(sharpeStdDev float64, n int) float64 {
	if n <= 1 || sharpeStdDev <= 0 {
		return 0
	}
	nf := float64(n)
	return sharpeStdDev * ((1-eulerMascheroni)*invNormCDF(1-1/nf) + eulerMascheroni*invNormCDF(1-1/(nf*math.E)))
}

// RunDSR computes the Deflated Sharpe Ratio for every candidate, using
// per-trade returns (falling back to per-bar equity returns when a
// candidate has too few trades to form a moment estimate) as the return
// series, and the Sharpe dispersion across the candidate pool itself as
// the benchmark's cross-trial variance — the same moment formulas
// (skewness, excess kurtosis) the Monte Carlo simulator's Distribution
// uses.
func RunDSR(candidates []Candidate, totalTrials int) []DSRResult {
	n := EstimateIndependentTrials(totalTrials)

	sharpes := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		if c.IS.Advanced.SharpeRatio != nil {
			sharpes = append(sharpes, *c.IS.Advanced.SharpeRatio)
		}
	}
	sharpeDispersion := computeMoments(sharpes).StdDev
	sr0 := expectedMaxSharpe(sharpeDispersion, n)

	out := make([]DSRResult, 0, len(candidates))
	for _, c := range candidates {
		returns := tradeReturns(c.IS)
		if len(returns) < 4 {
			returns = barReturns(c.IS.EquityCurve)
		}
		m := computeMoments(returns)

		sr := 0.0
		if c.IS.Advanced.SharpeRatio != nil {
			sr = *c.IS.Advanced.SharpeRatio
		}

		result := DSRResult{
			TrialNumber:     c.TrialNumber,
			Params:          c.Params,
			SharpeRatio:     sr,
			Skewness:        m.Skewness,
			Kurtosis:        m.Kurtosis,
			NumReturns:      m.N,
			BenchmarkSharpe: sr0,
		}
		if m.N >= 4 {
			result.DeflatedSharpe = deflatedSharpeProbability(sr, sr0, m, m.N)
		}
		out = append(out, result)
	}
	return out
}

// deflatedSharpeProbability is the standard DSR statistic (Bailey &
// López de Prado, 2014): the Sharpe ratio estimator's variance is widened
// by the return series' skewness and (non-excess) kurtosis before
// computing how many standard errors SR_hat sits above the benchmark SR0.
func deflatedSharpeProbability(srHat, sr0 float64, m moments, numReturns int) float64 {
	nonExcessKurtosis := m.Kurtosis + 3
	denom := 1 - m.Skewness*srHat + (nonExcessKurtosis-1)/4*srHat*srHat
	if denom <= 0 {
		return 0
	}
	z := (srHat - sr0) * math.Sqrt(float64(numReturns-1)) / math.Sqrt(denom)
	return normCDF(z)
}

// RankByDSR orders DSR results by DeflatedSharpe, descending.
func RankByDSR(results []DSRResult) []DSRResult {
	ranked := append([]DSRResult(nil), results...)
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j-1].DeflatedSharpe < ranked[j].DeflatedSharpe; j-- {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
		}
	}
	return ranked
}
