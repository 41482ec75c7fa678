package optimize

import (
	"math"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// Trial is one sampled parameter set plus its evaluated outcome.
type Trial struct {
	Index       int
	Params      types.Params
	Result      types.StrategyResult
	Metrics     map[string]float64
	Objectives  []float64 // always in maximize sense, post ObjectiveDirections negation
	Constraints []float64 // signed residuals in constraint order; positive = violated, <=0 satisfied
	Satisfied   bool      // constraints_satisfied
	Failed      bool      // non-finite objective that sanitization did not rescue
	Score       float64   // composite score, only meaningful for single-objective ranking
	Pruned      bool
	Rank        int     // nsga2/nsga3 non-domination rank
	Crowding    float64 // nsga2/nsga3 crowding distance
}

// metricValue extracts a named metric from an evaluated StrategyResult. The
// second return is false when the underlying statistic is undefined (e.g.
// SharpeRatio is nil because returns have zero variance).
func metricValue(r types.StrategyResult, name string) (float64, bool) {
	switch name {
	case "net_profit_pct":
		return r.Basic.NetProfitPct, true
	case "max_drawdown_pct":
		return r.Basic.MaxDrawdownPct, true
	case "total_trades":
		return float64(r.Basic.TotalTrades), true
	case "win_rate":
		if r.Basic.TotalTrades == 0 {
			return 0, false
		}
		return float64(r.Basic.WinningTrades) / float64(r.Basic.TotalTrades) * 100, true
	case "sharpe_ratio":
		return derefOrFalse(r.Advanced.SharpeRatio)
	case "sortino_ratio":
		return derefOrFalse(r.Advanced.SortinoRatio)
	case "profit_factor":
		if r.Advanced.ProfitFactorInf {
			return math.Inf(1), true
		}
		return derefOrFalse(r.Advanced.ProfitFactor)
	case "romad":
		return derefOrFalse(r.Advanced.RoMaD)
	case "ulcer_index":
		return derefOrFalse(r.Advanced.UlcerIndex)
	case "sqn":
		return derefOrFalse(r.Advanced.SQN)
	case "consistency_score":
		return derefOrFalse(r.Advanced.ConsistencyScore)
	case "recovery_factor":
		return derefOrFalse(r.Advanced.RecoveryFactor)
	default:
		return 0, false
	}
}

func derefOrFalse(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// EvaluateTrial collects every metric named by objectives, constraints, and
// the score config, negating minimize-direction objectives so every entry
// in Trial.Objectives is a "larger is better" quantity, and applies the
// sanitization rule (spec §4.3): a non-finite objective is replaced with
// 0.0 only when trade count is at or below the configured threshold and
// sanitization is enabled; otherwise the trial is marked Failed so the
// sampler/pruner can discard it. Profit Factor = +Inf always fails as an
// objective — sanitization never rescues it.
func EvaluateTrial(trial *Trial, objectives []string, constraints []types.Constraint, cfg types.OptimizationConfig) {
	trial.Metrics = make(map[string]float64, len(objectives)+len(constraints))
	trial.Objectives = make([]float64, len(objectives))
	trial.Satisfied = true

	for i, name := range objectives {
		v, ok := metricValue(trial.Result, name)
		if !ok || math.IsNaN(v) {
			v = math.NaN()
		}
		isProfitFactorInf := name == "profit_factor" && math.IsInf(v, 1)

		if (math.IsNaN(v) || math.IsInf(v, 0)) && !isProfitFactorInf {
			if cfg.SanitizeEnabled && trial.Result.Basic.TotalTrades <= cfg.SanitizeTradesThreshold {
				v = 0.0
			} else {
				trial.Failed = true
			}
		} else if isProfitFactorInf {
			trial.Failed = true
		}

		trial.Metrics[name] = v
		if dir, ok := types.ObjectiveDirections[name]; ok && dir == types.Minimize {
			trial.Objectives[i] = -v
		} else {
			trial.Objectives[i] = v
		}
	}

	trial.Constraints = make([]float64, len(constraints))
	for i, c := range constraints {
		if !c.Enabled {
			continue
		}
		v, ok := metricValue(trial.Result, c.Metric)
		trial.Metrics[c.Metric] = v
		if !ok {
			trial.Satisfied = false
			trial.Constraints[i] = math.Inf(1)
			continue
		}
		trial.Constraints[i] = constraintResidual(c.Operator, v, c.Threshold)
		if trial.Constraints[i] > 0 {
			trial.Satisfied = false
		}
	}
}

// constraintResidual computes the signed residual for one constraint,
// oriented so a positive value means the constraint is violated and a
// value <= 0 means it is satisfied (spec §3: "positive = violated,
// ≤0 = satisfied").
func constraintResidual(op types.ConstraintOp, value, threshold float64) float64 {
	switch op {
	case types.ConstraintGE:
		return threshold - value
	case types.ConstraintLE:
		return value - threshold
	case types.ConstraintEQ:
		return math.Abs(value - threshold)
	default:
		return 0
	}
}
