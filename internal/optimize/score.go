package optimize

import (
	"sort"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// ApplyCompositeScore fills in trial.Score for every trial in cohort using
// cfg's weighted-average recipe. Percentile normalization ranks a trial
// against the rest of the cohort (requires the full set to be visible at
// once, so it is only valid when evaluation is single-worker); minmax
// normalization scales against fixed per-metric bounds and is used whenever
// NumWorkers > 1, since parallel workers never see the full cohort at
// scoring time.
func ApplyCompositeScore(cohort []*Trial, cfg types.ScoreConfig) {
	mode := cfg.Normalization
	if mode == "" {
		mode = types.NormalizationPercentile
	}

	type column struct {
		cfg    types.ScoreMetricConfig
		values []float64 // parallel to cohort, only for enabled metrics
	}
	var cols []column
	for _, mc := range cfg.Metrics {
		if !mc.Enabled {
			continue
		}
		vals := make([]float64, len(cohort))
		for i, t := range cohort {
			vals[i] = t.Metrics[mc.Metric]
		}
		cols = append(cols, column{cfg: mc, values: vals})
	}
	if len(cols) == 0 {
		return
	}

	normalized := make([][]float64, len(cols))
	for ci, col := range cols {
		switch mode {
		case types.NormalizationMinMax:
			normalized[ci] = minMaxNormalize(col.values, col.cfg.Min, col.cfg.Max)
		default:
			normalized[ci] = percentileNormalize(col.values)
		}
		if col.cfg.Invert {
			for i := range normalized[ci] {
				normalized[ci][i] = 100 - normalized[ci][i]
			}
		}
	}

	totalWeight := 0.0
	for _, col := range cols {
		totalWeight += col.cfg.Weight
	}
	if totalWeight <= 0 {
		totalWeight = 1
	}

	for i, t := range cohort {
		score := 0.0
		for ci, col := range cols {
			score += normalized[ci][i] * col.cfg.Weight
		}
		t.Score = score / totalWeight
	}

	if cfg.ScoreThreshold != nil {
		for _, t := range cohort {
			if t.Score < *cfg.ScoreThreshold {
				t.Failed = true
			}
		}
	}
}

// percentileNormalize maps each value to its rank-based percentile in
// [0,100], cohort-dependent: the same raw value normalizes differently
// depending on what else is in the batch.
func percentileNormalize(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n <= 1 {
		for i := range out {
			out[i] = 50
		}
		return out
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
	for rank, i := range idx {
		out[i] = float64(rank) / float64(n-1) * 100
	}
	return out
}

// minMaxNormalize scales each value against a fixed [lo, hi] range,
// clamping out-of-range values rather than letting the cohort rescale the
// axis; independent of what else is in the batch.
func minMaxNormalize(values []float64, lo, hi float64) []float64 {
	out := make([]float64, len(values))
	span := hi - lo
	for i, v := range values {
		if span <= 0 {
			out[i] = 50
			continue
		}
		x := (v - lo) / span * 100
		if x < 0 {
			x = 0
		}
		if x > 100 {
			x = 100
		}
		out[i] = x
	}
	return out
}
