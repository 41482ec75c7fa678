package optimize

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

func syntheticTable(n int) types.OHLCVTable {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.3
		bars[i] = types.Bar{
			Time: int64(i * 3600), Open: price - 0.2, High: price + 0.3, Low: price - 0.4,
			Close: price, Volume: 1000,
		}
	}
	return types.NewOHLCVTable(bars)
}

func basicConfig() types.OptimizationConfig {
	return types.OptimizationConfig{
		Objectives:        []string{"net_profit_pct"},
		PrimaryObjective:  "net_profit_pct",
		Sampler:           types.SamplerRandom,
		BudgetMode:        types.BudgetTrials,
		BudgetTrialsCount: 12,
		NumWorkers:        4,
		SanitizeEnabled:   true,
		SanitizeTradesThreshold: 5,
		ScoreConfig: types.ScoreConfig{
			Normalization: types.NormalizationMinMax,
			Metrics: []types.ScoreMetricConfig{
				{Metric: "net_profit_pct", Weight: 1, Enabled: true, Min: -50, Max: 50},
			},
		},
	}
}

func TestBuildSearchSpaceSeparatesFixedAndOptimized(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	space := BuildSearchSpace(s.ParamSchema(), types.Params{"maLength": 30})
	if _, ok := space.Fixed["maLength"]; ok {
		t.Fatal("maLength is flagged Optimize=true and must not land in Fixed")
	}
	found := false
	for _, d := range space.Dimensions {
		if d.Name == "maLength" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected maLength dimension in search space")
	}
	if _, ok := space.Fixed["riskPerTrade"]; !ok {
		t.Fatal("riskPerTrade is not optimized and must land in Fixed")
	}
}

func TestRandomSamplerStaysWithinBounds(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	space := BuildSearchSpace(s.ParamSchema(), types.Params{})
	sampler := NewRandomSampler(space)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := sampler.Next(nil, rng)
		for _, d := range space.Dimensions {
			v, ok := toFloat(p[d.Name])
			if !ok {
				continue
			}
			if v < d.Min || v > d.Max {
				t.Fatalf("dimension %s out of bounds: %v not in [%v,%v]", d.Name, v, d.Min, d.Max)
			}
		}
	}
}

func TestOptimizerRunRandomSamplerProducesRankedResults(t *testing.T) {
	s := strategy.NewS04StochRSI()
	table := syntheticTable(300)
	req := RunRequest{
		Strategy: s,
		Schema:   s.ParamSchema(),
		Table:    table,
		Config:   basicConfig(),
	}
	out, err := NewOptimizer(nil).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Summary.TotalTrials != 12 {
		t.Fatalf("expected 12 trials, got %d", out.Summary.TotalTrials)
	}
	if len(out.Results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(out.Results))
	}
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i-1].Score == nil || out.Results[i].Score == nil {
			continue
		}
		if *out.Results[i-1].Score < *out.Results[i].Score {
			t.Fatalf("results not ranked descending by score at index %d", i)
		}
	}
}

func TestOptimizerRunMultiObjectiveProducesParetoFront(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	table := syntheticTable(300)
	cfg := basicConfig()
	cfg.Objectives = []string{"net_profit_pct", "max_drawdown_pct"}
	cfg.Sampler = types.SamplerNSGA2
	cfg.PopulationSize = 6
	cfg.BudgetTrialsCount = 12
	cfg.CrossoverProb = 0.7
	cfg.MutationProb = 0.3

	req := RunRequest{Strategy: s, Schema: s.ParamSchema(), Table: table, Config: cfg}
	out, err := NewOptimizer(nil).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Summary.ParetoFrontSize == 0 {
		t.Fatal("expected at least one trial on the pareto front")
	}
	for _, r := range out.Results {
		if len(r.ObjectiveValues) != 2 {
			t.Fatalf("expected 2 objective values per trial, got %d", len(r.ObjectiveValues))
		}
	}
}

func TestCoverageDesignCyclesMainAxis(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	space := BuildSearchSpace(s.ParamSchema(), types.Params{})
	rng := rand.New(rand.NewSource(7))
	design := CoverageDesign(space, 11, rng)
	if len(design) != 11 {
		t.Fatalf("expected 11 design rows, got %d", len(design))
	}
	counts := map[string]int{}
	for _, p := range design {
		maType, _ := p["maType"].(string)
		counts[maType]++
	}
	if len(counts) < 2 {
		t.Fatalf("expected the main axis to cycle through multiple MA types, got %v", counts)
	}
}

func TestNonDominatedSortFindsFront(t *testing.T) {
	trials := []*Trial{
		{Objectives: []float64{10, 1}},
		{Objectives: []float64{5, 5}},
		{Objectives: []float64{1, 10}},
		{Objectives: []float64{1, 1}}, // dominated by all three above
	}
	fronts := nonDominatedSort(trials)
	if len(fronts[0]) != 3 {
		t.Fatalf("expected 3 trials on the first pareto front, got %d", len(fronts[0]))
	}
	for _, t2 := range fronts[0] {
		if t2 == trials[3] {
			t.Fatal("dominated trial leaked into the first front")
		}
	}
}

func TestEvaluateTrialSanitizesNonFiniteWithLowTradeCount(t *testing.T) {
	trial := &Trial{
		Result: types.StrategyResult{Basic: types.BasicMetrics{TotalTrades: 1}},
	}
	cfg := types.OptimizationConfig{SanitizeEnabled: true, SanitizeTradesThreshold: 5}
	EvaluateTrial(trial, []string{"sharpe_ratio"}, nil, cfg)
	if trial.Failed {
		t.Fatal("expected sanitization to rescue a low-trade-count non-finite objective")
	}
	if trial.Objectives[0] != 0 {
		t.Fatalf("expected sanitized objective to be 0, got %v", trial.Objectives[0])
	}
}

func TestEvaluateTrialFailsProfitFactorInfEvenWhenSanitizationEnabled(t *testing.T) {
	inf := true
	trial := &Trial{
		Result: types.StrategyResult{
			Basic:    types.BasicMetrics{TotalTrades: 1},
			Advanced: types.AdvancedMetrics{ProfitFactorInf: inf},
		},
	}
	cfg := types.OptimizationConfig{SanitizeEnabled: true, SanitizeTradesThreshold: 5}
	EvaluateTrial(trial, []string{"profit_factor"}, nil, cfg)
	if !trial.Failed {
		t.Fatal("expected profit_factor=+Inf to fail the trial regardless of sanitization")
	}
}

func TestEvaluateTrialConstraintResidualsSignedByOperator(t *testing.T) {
	trial := &Trial{
		Result: types.StrategyResult{Basic: types.BasicMetrics{TotalTrades: 10, NetProfitPct: 5, MaxDrawdownPct: 20}},
	}
	constraints := []types.Constraint{
		{Metric: "net_profit_pct", Operator: types.ConstraintGE, Threshold: 10, Enabled: true},
		{Metric: "max_drawdown_pct", Operator: types.ConstraintLE, Threshold: 25, Enabled: true},
		{Metric: "total_trades", Operator: types.ConstraintEQ, Threshold: 10, Enabled: true},
	}
	EvaluateTrial(trial, nil, constraints, types.OptimizationConfig{})

	if len(trial.Constraints) != 3 {
		t.Fatalf("expected 3 constraint residuals, got %d", len(trial.Constraints))
	}
	if trial.Constraints[0] != 5 {
		t.Fatalf("GE violation: expected residual 5 (threshold 10 - value 5), got %v", trial.Constraints[0])
	}
	if trial.Constraints[1] != -5 {
		t.Fatalf("LE satisfied: expected residual -5 (value 20 - threshold 25), got %v", trial.Constraints[1])
	}
	if trial.Constraints[2] != 0 {
		t.Fatalf("EQ satisfied: expected residual 0, got %v", trial.Constraints[2])
	}
	if trial.Satisfied {
		t.Fatal("expected the GE violation to mark the trial unsatisfied")
	}
}

func TestEvaluateTrialConstraintUndefinedMetricIsViolation(t *testing.T) {
	trial := &Trial{Result: types.StrategyResult{Basic: types.BasicMetrics{TotalTrades: 0}}}
	constraints := []types.Constraint{
		{Metric: "sharpe_ratio", Operator: types.ConstraintGE, Threshold: 1, Enabled: true},
	}
	EvaluateTrial(trial, nil, constraints, types.OptimizationConfig{})

	if trial.Satisfied {
		t.Fatal("expected an undefined constraint metric to mark the trial unsatisfied")
	}
	if !math.IsInf(trial.Constraints[0], 1) {
		t.Fatalf("expected +Inf residual for an undefined metric, got %v", trial.Constraints[0])
	}
}

func TestEvaluateTrialDisabledConstraintIsIgnored(t *testing.T) {
	trial := &Trial{Result: types.StrategyResult{Basic: types.BasicMetrics{TotalTrades: 10, NetProfitPct: 0}}}
	constraints := []types.Constraint{
		{Metric: "net_profit_pct", Operator: types.ConstraintGE, Threshold: 100, Enabled: false},
	}
	EvaluateTrial(trial, nil, constraints, types.OptimizationConfig{})

	if !trial.Satisfied {
		t.Fatal("expected a disabled constraint to never mark the trial unsatisfied")
	}
	if trial.Constraints[0] != 0 {
		t.Fatalf("expected a disabled constraint's residual to stay 0, got %v", trial.Constraints[0])
	}
}
