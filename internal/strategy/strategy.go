// Package strategy implements the bar-stepping strategy executor contract:
// deterministic, pure functions from (OHLCVTable, Params, tradeStartIdx) to
// StrategyResult, with no wall-clock, randomness, or shared mutable state.
package strategy

import (
	"fmt"
	"sync"

	"github.com/ashgrove-quant/barforge/pkg/types"
	"go.uber.org/zap"
)

// Strategy is implemented by every registered trading rule.
type Strategy interface {
	ID() string
	Name() string
	Description() string
	ParamSchema() types.ParamSchema
	Run(table types.OHLCVTable, params types.Params, tradeStartIdx int) (types.StrategyResult, error)
}

// Registry holds the factories for every strategy id known to the engine.
type Registry struct {
	logger     *zap.Logger
	strategies map[string]func() Strategy
	mu         sync.RWMutex
}

// NewRegistry builds a Registry pre-seeded with the built-in strategies.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:     logger,
		strategies: make(map[string]func() Strategy),
	}
	r.Register("s01_trailing_ma", func() Strategy { return NewS01TrailingMA() })
	r.Register("s04_stochrsi", func() Strategy { return NewS04StochRSI() })
	return r
}

// Register adds or replaces a strategy factory under id.
func (r *Registry) Register(id string, factory func() Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[id] = factory
}

// Create instantiates a fresh strategy by id.
func (r *Registry) Create(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.strategies[id]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// List returns all registered strategy ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	return ids
}

func floatParam(p types.Params, key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func intParam(p types.Params, key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func boolParam(p types.Params, key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func stringParam(p types.Params, key string, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// ErrBacktesterDisabled mirrors the reference engine's explicit guard
// against running a strategy whose "backtester" switch is off.
var ErrBacktesterDisabled = fmt.Errorf("backtester is disabled in the provided parameters")

// InvalidParamError reports a parameter value that fails schema validation
// (spec §7 InputValidation class).
type InvalidParamError struct {
	Param string
	Value string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("invalid value %q for parameter %q", e.Value, e.Param)
}

func invalidParamErr(param, value string) error {
	return &InvalidParamError{Param: param, Value: value}
}
