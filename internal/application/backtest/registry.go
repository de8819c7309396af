package backtest

import (
	"sort"

	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
)

// Factory builds a fresh strategy instance from a shared environment and the run config.
type Factory func(env strategy.Env, c RunConfig) (strategy.Strategy, error)

// Registry maps a strategy kind to its factory.
type Registry map[string]Factory

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return make(Registry)
}

// Register adds a factory for kind, replacing any previous one.
func (r Registry) Register(kind string, f Factory) {
	r[kind] = f
}

// Get returns the factory for kind.
func (r Registry) Get(kind string) (Factory, bool) {
	f, ok := r[kind]
	return f, ok
}

// Kinds lists the registered kinds in sorted order.
func (r Registry) Kinds() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry holding every built-in strategy.
func DefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(strategy.KindWheel, func(env strategy.Env, c RunConfig) (strategy.Strategy, error) {
		return built(strategy.NewWheel(env, c.Wheel))
	})
	r.Register(strategy.KindCreditSpread, func(env strategy.Env, c RunConfig) (strategy.Strategy, error) {
		return built(strategy.NewCreditSpread(env, c.Spread))
	})
	r.Register(strategy.KindIronCondor, func(env strategy.Env, c RunConfig) (strategy.Strategy, error) {
		p := c.Spread
		p.Sides = strategy.SidesBoth
		return built(strategy.NewCreditSpread(env, p))
	})
	r.Register(strategy.KindZeroDTE, func(env strategy.Env, c RunConfig) (strategy.Strategy, error) {
		return built(strategy.NewZeroDTE(env, c.ZeroDTE))
	})
	r.Register(strategy.KindDiagonal, func(env strategy.Env, c RunConfig) (strategy.Strategy, error) {
		return built(strategy.NewDiagonal(env, c.Diagonal))
	})
	return r
}

// built keeps a failed constructor from leaking a typed nil into the interface.
func built[T strategy.Strategy](s T, err error) (strategy.Strategy, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
