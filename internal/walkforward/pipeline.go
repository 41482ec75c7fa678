package walkforward

import (
	"context"
	"errors"
	"sort"

	"github.com/ashgrove-quant/barforge/internal/optimize"
	"github.com/ashgrove-quant/barforge/internal/postprocess"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
	"github.com/ashgrove-quant/barforge/pkg/utils"
)

var errNoCompletedTrials = errors.New("walkforward: no completed trials to select a window winner from")

const maxCompactPoints = 500

// RunWindow executes one window's 8-step pipeline: resolve the IS/OOS
// sub-ranges, optimize on IS, tentatively crown the top trial, let DSR/FT/
// ST rerank it in turn if enabled, snapshot the selection chain, then
// re-run the final winner on the full IS range and the (possibly
// adaptively truncated) OOS range to build the window's metrics and
// equity curves.
func RunWindow(ctx context.Context, opt *optimize.Optimizer, strat strategy.Strategy, fullTable types.OHLCVTable, window Window, cfg types.WFAConfig, adaptive bool) (types.WFAWindow, error) {
	isTable := fullTable.Slice(window.ISStart, window.ISEnd)

	out, err := opt.Run(ctx, optimize.RunRequest{
		Strategy: strat,
		Schema:   strat.ParamSchema(),
		Table:    isTable,
		Config:   cfg.Optimization,
	})
	if err != nil {
		return types.WFAWindow{}, err
	}

	moduleStatus := map[string]types.ModuleStatus{"optuna": {Ran: true}}
	selectionChain := map[string]int{}

	ranked := rankedResults(out.Results)
	if len(ranked) == 0 {
		return types.WFAWindow{}, errNoCompletedTrials
	}
	topN := cfg.StoreTopNTrials
	if topN <= 0 {
		topN = 5
	}
	topK := topN
	if topK > len(ranked) {
		topK = len(ranked)
	}

	candidates := make([]postprocess.Candidate, 0, topK)
	for _, r := range ranked[:topK] {
		full, err := strat.Run(isTable, r.Params, 0)
		if err != nil {
			continue
		}
		candidates = append(candidates, postprocess.Candidate{TrialNumber: r.TrialNumber, Params: r.Params, IS: full})
	}
	if len(candidates) == 0 {
		return types.WFAWindow{}, errNoCompletedTrials
	}

	bestParams := candidates[0].Params
	bestSource := "optuna"
	selectionChain["optuna"] = candidates[0].TrialNumber
	topKSnapshot := map[string][]types.OptimizationResult{"optuna": ranked[:topK]}

	var dsrResults []postprocess.DSRResult
	if cfg.DSR.Enabled {
		dsrResults = postprocess.RunDSR(candidates, out.Summary.TotalTrials)
		rankedDSR := postprocess.RankByDSR(dsrResults)
		moduleStatus["dsr"] = types.ModuleStatus{Ran: true}
		if len(rankedDSR) > 0 {
			bestParams = rankedDSR[0].Params
			bestSource = "dsr"
			selectionChain["dsr"] = rankedDSR[0].TrialNumber
		}
	}

	var ftResults []postprocess.ForwardTestResult
	if cfg.FT.Enabled {
		ftResults = postprocess.RunForwardTest(strat, isTable, candidates, cfg.FT)
		rankedFT := postprocess.RankByForwardMetric(ftResults, cfg.FT.FTRankMetric)
		moduleStatus["ft"] = types.ModuleStatus{Ran: true}
		if len(rankedFT) > 0 {
			bestParams = rankedFT[0].Params
			bestSource = "ft"
			selectionChain["ft"] = rankedFT[0].TrialNumber
		}
	}

	var stResult postprocess.StressTestResult
	if cfg.ST.Enabled {
		winner := findCandidate(candidates, selectionChain, bestSource)
		stResult = postprocess.RunStressTest(strat, isTable, 0, winner, strat.ParamSchema(), cfg.ST)
		reason := string(stResult.Status)
		moduleStatus["st"] = types.ModuleStatus{Ran: true, Reason: reason}
		if stResult.Status == postprocess.StatusOK {
			bestParams = stResult.Params
			bestSource = "st"
			selectionChain["st"] = stResult.TrialNumber
		}
	}

	isFinal, err := strat.Run(isTable, bestParams, 0)
	if err != nil {
		return types.WFAWindow{}, err
	}

	oosWindow := window
	var telemetry types.AdaptiveTelemetry
	if adaptive {
		oosWindow, telemetry = truncateAdaptiveWindow(fullTable, window, strat, bestParams, isFinal, cfg)
	}
	oosTable := fullTable.Slice(oosWindow.OOSStart, oosWindow.OOSEnd)
	oosFinal, err := strat.Run(oosTable, bestParams, 0)
	if err != nil {
		return types.WFAWindow{}, err
	}

	dense, denseTs := oosFinal.EquityCurve, oosFinal.Timestamps
	compact, compactTs := downsample(dense, denseTs, maxCompactPoints)

	var ftSub *int64
	if cfg.FT.Enabled {
		ftStart := isTable.Bar(isTable.Len()-1).Time - int64(cfg.FT.FTPeriodDays)*secondsPerDay
		ftSub = &ftStart
	}

	return types.WFAWindow{
		WindowNumber:         window.Number,
		ISStart:              window.ISStartTime,
		ISEnd:                window.ISEndTime,
		OOSStart:             oosWindow.OOSStartTime,
		OOSEnd:               oosWindow.OOSEndTime,
		OptimizationSubStart: window.ISStartTime,
		OptimizationSubEnd:   window.ISEndTime,
		FTSubStart:           ftSub,
		BestParams:           bestParams,
		BestParamID:          utils.GenerateParamID(bestSource, bestParams),
		SelectionChain:       selectionChain,
		BestParamsSource:     bestSource,
		ISMetrics:            isFinal.Basic,
		ISAdvanced:           isFinal.Advanced,
		OOSMetrics:           oosFinal.Basic,
		OOSAdvanced:          oosFinal.Advanced,
		OOSEquityCurveDense:  dense,
		OOSTimestampsDense:   denseTs,
		OOSEquityCurveCompact: compact,
		OOSTimestampsCompact: compactTs,
		Adaptive:             telemetry,
		ModuleStatus:         moduleStatus,
		TopKTrials:           topKSnapshot,
	}, nil
}

func rankedResults(results []types.OptimizationResult) []types.OptimizationResult {
	out := make([]types.OptimizationResult, 0, len(results))
	for _, r := range results {
		if !r.Failed {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if out[i].Score != nil {
			si = *out[i].Score
		}
		if out[j].Score != nil {
			sj = *out[j].Score
		}
		return si > sj
	})
	return out
}

func findCandidate(candidates []postprocess.Candidate, chain map[string]int, source string) postprocess.Candidate {
	trialNum, ok := chain[source]
	if !ok {
		return candidates[0]
	}
	for _, c := range candidates {
		if c.TrialNumber == trialNum {
			return c
		}
	}
	return candidates[0]
}

// downsample keeps at most maxPoints evenly spaced samples, always
// including the first and last point, for the dashboard-friendly compact
// curve.
func downsample(curve []float64, timestamps []int64, maxPoints int) ([]float64, []int64) {
	n := len(curve)
	if n <= maxPoints {
		return curve, timestamps
	}
	stride := n / maxPoints
	if stride < 1 {
		stride = 1
	}
	var outC []float64
	var outT []int64
	for i := 0; i < n; i += stride {
		outC = append(outC, curve[i])
		outT = append(outT, timestamps[i])
	}
	if outC[len(outC)-1] != curve[n-1] {
		outC = append(outC, curve[n-1])
		outT = append(outT, timestamps[n-1])
	}
	return outC, outT
}
