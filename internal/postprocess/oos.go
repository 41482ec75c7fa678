package postprocess

import (
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// Survivor is a parameter set that made it through the post-process chain,
// tagged with which pool selected it.
type Survivor struct {
	TrialNumber int
	Params      types.Params
	Source      string // "st", "ft", "dsr", or "optuna"
}

// OOSResult is a survivor's final confirmation run on data the rest of the
// post-process chain never touched.
type OOSResult struct {
	TrialNumber int
	Params      types.Params
	Source      string
	Metrics     types.BasicMetrics
	Advanced    types.AdvancedMetrics
}

// SelectSurvivors implements the spec's source-pool precedence: ST
// candidates with Status OK are preferred, then FT's top-ranked candidates,
// then DSR's, finally falling back to the optimizer's own best trials
// ("optuna" in the spec's naming, regardless of which sampler actually
// produced them) when no post-process module ran or none left a survivor.
func SelectSurvivors(topK int, st []StressTestResult, ft []ForwardTestResult, dsr []DSRResult, optunaBest []Candidate) []Survivor {
	var out []Survivor

	for _, r := range st {
		if r.Status == StatusOK {
			out = append(out, Survivor{r.TrialNumber, r.Params, "st"})
		}
		if len(out) >= topK {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, r := range ft {
		out = append(out, Survivor{r.TrialNumber, r.Params, "ft"})
		if len(out) >= topK {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, r := range dsr {
		out = append(out, Survivor{r.TrialNumber, r.Params, "dsr"})
		if len(out) >= topK {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, c := range optunaBest {
		out = append(out, Survivor{c.TrialNumber, c.Params, "optuna"})
		if len(out) >= topK {
			return out
		}
	}
	return out
}

// RunOOS re-runs every survivor on the held-out oosTable.
func RunOOS(strat strategy.Strategy, oosTable types.OHLCVTable, survivors []Survivor) []OOSResult {
	out := make([]OOSResult, 0, len(survivors))
	for _, s := range survivors {
		result, err := strat.Run(oosTable, s.Params, 0)
		if err != nil {
			continue
		}
		out = append(out, OOSResult{
			TrialNumber: s.TrialNumber,
			Params:      s.Params,
			Source:      s.Source,
			Metrics:     result.Basic,
			Advanced:    result.Advanced,
		})
	}
	return out
}
