// Package analytics implements the cross-study aggregator (C9): equal-
// weight stitching of several studies' OOS equity curves onto a common
// time grid. Study-set CRUD (the other half of C9's scope) lives in
// internal/store alongside the rest of the persisted study records.
package analytics

import (
	"math"
	"sort"
)

const minOverlapDaysForAnnualization = 30
const secondsPerDay = 86400

// Curve is one study's out-of-sample equity series, keyed by Unix-second
// timestamps in ascending order.
type Curve struct {
	StudyID    string
	Timestamps []int64
	Equity     []float64
}

// AggregateResult is the equal-weight blend of every study curve that
// survived validation, plus the metrics computed over it.
type AggregateResult struct {
	Timestamps []int64
	Equity     []float64 // normalized to 100 at the common start

	ProfitPct            float64
	MaxDrawdownPct       float64
	AnnualizedProfitPct  *float64 // nil when the overlap window is too short

	StudiesUsed []string
	Warnings    []string
}

// Aggregate blends curves onto their common time-grid intersection,
// forward-filling each onto the union of in-range timestamps, and
// returns the equal-weight average plus summary metrics. It never
// returns an error: studies that can't be aligned are dropped and
// recorded as warnings (spec §4.8).
func Aggregate(curves []Curve) AggregateResult {
	var result AggregateResult

	valid := make([]Curve, 0, len(curves))
	for _, c := range curves {
		if len(c.Timestamps) == 0 || len(c.Timestamps) != len(c.Equity) {
			result.Warnings = append(result.Warnings, "no valid data for study "+c.StudyID)
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		result.Warnings = append(result.Warnings, "no valid data")
		return result
	}

	start := valid[0].Timestamps[0]
	end := valid[0].Timestamps[len(valid[0].Timestamps)-1]
	for _, c := range valid[1:] {
		if s := c.Timestamps[0]; s > start {
			start = s
		}
		if e := c.Timestamps[len(c.Timestamps)-1]; e < end {
			end = e
		}
	}
	if start >= end {
		result.Warnings = append(result.Warnings, "no overlap")
		return result
	}

	grid := unionTimestampsInRange(valid, start, end)

	type aligned struct {
		studyID string
		series  []float64
	}
	var series []aligned
	for _, c := range valid {
		filled := forwardFill(c.Timestamps, c.Equity, grid)
		if len(filled) == 0 || filled[0] <= 0 || math.IsNaN(filled[0]) || math.IsInf(filled[0], 0) {
			result.Warnings = append(result.Warnings, "no valid data for study "+c.StudyID)
			continue
		}
		normalized := make([]float64, len(filled))
		for i, v := range filled {
			normalized[i] = v / filled[0] * 100
		}
		series = append(series, aligned{studyID: c.StudyID, series: normalized})
	}
	if len(series) == 0 {
		result.Warnings = append(result.Warnings, "no valid data")
		return result
	}

	avg := make([]float64, len(grid))
	for i := range grid {
		sum := 0.0
		for _, s := range series {
			sum += s.series[i]
		}
		avg[i] = sum / float64(len(series))
	}

	result.Timestamps = grid
	result.Equity = avg
	result.StudiesUsed = make([]string, len(series))
	for i, s := range series {
		result.StudiesUsed[i] = s.studyID
	}
	result.ProfitPct = avg[len(avg)-1] - 100
	result.MaxDrawdownPct = maxDrawdownPct(avg)

	overlapDays := float64(end-start) / secondsPerDay
	if overlapDays > minOverlapDaysForAnnualization {
		annualized := result.ProfitPct * (365.0 / overlapDays)
		result.AnnualizedProfitPct = &annualized
	}

	return result
}

// unionTimestampsInRange collects every distinct timestamp across curves
// that falls within [start, end], sorted ascending.
func unionTimestampsInRange(curves []Curve, start, end int64) []int64 {
	seen := map[int64]bool{}
	for _, c := range curves {
		for _, ts := range c.Timestamps {
			if ts >= start && ts <= end {
				seen[ts] = true
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// forwardFill samples series (keyed by timestamps) at each point in grid,
// carrying the last known value forward. grid points before the series'
// first timestamp take the series' first value.
func forwardFill(timestamps []int64, values []float64, grid []int64) []float64 {
	out := make([]float64, len(grid))
	idx := 0
	for i, g := range grid {
		for idx+1 < len(timestamps) && timestamps[idx+1] <= g {
			idx++
		}
		out[i] = values[idx]
	}
	return out
}

// maxDrawdownPct computes the largest peak-to-trough decline in an
// equity curve, as a positive percentage.
func maxDrawdownPct(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
