// Package types provides configuration and parameter-schema types for the
// research engine.
package types

// ParamKind is the declared type of a strategy parameter.
type ParamKind string

const (
	ParamInt         ParamKind = "int"
	ParamFloat       ParamKind = "float"
	ParamBool        ParamKind = "bool"
	ParamCategorical ParamKind = "categorical"
	ParamTimestamp   ParamKind = "timestamp"
)

// ParamSpec describes one entry in a strategy's parameter schema.
type ParamSpec struct {
	Name     string
	Kind     ParamKind
	Default  any
	Min      *float64
	Max      *float64
	Step     *float64
	Options  []string
	Optimize bool
}

// ParamSchema is the ordered set of parameters a strategy publishes.
type ParamSchema []ParamSpec

// Params is a resolved, validated parameter payload: camelCase name to
// scalar value.
type Params map[string]any

// ObjectiveDirection is the canonical optimization direction for a named
// metric; optimizer objectives are negated internally when Minimize.
type ObjectiveDirection string

const (
	Maximize ObjectiveDirection = "maximize"
	Minimize ObjectiveDirection = "minimize"
)

// ObjectiveDirections is the global table of canonical directions per
// metric name (spec §4.3: "stored globally as OBJECTIVE_DIRECTIONS").
var ObjectiveDirections = map[string]ObjectiveDirection{
	"net_profit_pct":    Maximize,
	"max_drawdown_pct":  Minimize,
	"sharpe_ratio":       Maximize,
	"sortino_ratio":      Maximize,
	"profit_factor":      Maximize,
	"romad":              Maximize,
	"ulcer_index":        Minimize,
	"sqn":                Maximize,
	"consistency_score":  Maximize,
	"recovery_factor":    Maximize,
	"total_trades":       Maximize,
	"win_rate":           Maximize,
}

// ConstraintOp is a constraint comparison operator.
type ConstraintOp string

const (
	ConstraintGE ConstraintOp = ">="
	ConstraintLE ConstraintOp = "<="
	ConstraintEQ ConstraintOp = "="
)

// Constraint gates a trial on a named metric crossing a threshold. Residual
// is positive when violated, <= 0 when satisfied.
type Constraint struct {
	Metric    string
	Operator  ConstraintOp
	Threshold float64
	Enabled   bool
}

// Sampler selects the search strategy the optimizer uses.
type Sampler string

const (
	SamplerTPE    Sampler = "tpe"
	SamplerRandom Sampler = "random"
	SamplerNSGA2  Sampler = "nsga2"
	SamplerNSGA3  Sampler = "nsga3"
)

// BudgetMode selects how the optimizer decides it is done.
type BudgetMode string

const (
	BudgetTrials      BudgetMode = "trials"
	BudgetTime        BudgetMode = "time"
	BudgetConvergence BudgetMode = "convergence"
)

// Pruner selects the early-stopping policy for single-objective runs.
type Pruner string

const (
	PrunerMedian     Pruner = "median"
	PrunerPercentile Pruner = "percentile"
	PrunerPatient    Pruner = "patient"
	PrunerNone       Pruner = "none"
)

// NormalizationMode selects how composite-score metrics are scaled to
// [0, 100].
type NormalizationMode string

const (
	NormalizationPercentile NormalizationMode = "percentile"
	NormalizationMinMax     NormalizationMode = "minmax"
)

// ScoreMetricConfig configures one of the (up to six) composite-score
// metrics.
type ScoreMetricConfig struct {
	Metric  string
	Weight  float64
	Enabled bool
	Invert  bool
	Min     float64 // used only under minmax normalization
	Max     float64
}

// ScoreConfig configures composite-score computation.
type ScoreConfig struct {
	Normalization   NormalizationMode
	Metrics         []ScoreMetricConfig
	ScoreThreshold  *float64 // trials below this are filtered
}

// OptimizationConfig is the caller-supplied configuration for one C4 run.
type OptimizationConfig struct {
	Objectives        []string
	PrimaryObjective   string
	Constraints        []Constraint
	Sampler            Sampler
	PopulationSize     int
	CrossoverProb      float64
	MutationProb       float64
	SwappingProb       float64
	WarmupTrials       int
	BudgetMode         BudgetMode
	BudgetTrialsCount  int
	BudgetTimeSeconds  float64
	ConvergencePatience int
	EnablePruning      bool
	Pruner             Pruner
	SanitizeEnabled    bool
	SanitizeTradesThreshold int
	NumWorkers         int
	CoverageModeTrials int
	ScoreConfig        ScoreConfig
	Seed               int64
}

// PostProcessConfig configures one optional post-process module.
type PostProcessConfig struct {
	Enabled          bool
	TopK             int
	FTPeriodDays     int
	FTRankMetric     string
	FailureThreshold float64
	OOSPeriodDays    int
}

// WFAConfig is the caller-supplied configuration for a C6 run.
type WFAConfig struct {
	Optimization WFAOptimizationConfig

	ISPeriodDays         int
	OOSPeriodDays        int
	AdaptiveMode         bool
	MaxOOSPeriodDays     int
	MinOOSTrades         int
	CheckIntervalTrades  int
	CUSUMThreshold       float64
	DDThresholdMultiplier float64
	InactivityMultiplier float64
	MinCUSUMSamples      int
	StoreTopNTrials      int

	DSR PostProcessConfig
	FT  PostProcessConfig
	ST  PostProcessConfig
	OOS PostProcessConfig
}

// WFAOptimizationConfig is the per-window optimizer configuration embedded
// in a WFA run.
type WFAOptimizationConfig = OptimizationConfig
