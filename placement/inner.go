package placement

import (
	"context"
	"math/rand"

	"rearrange/physics"
	"rearrange/search"
)

// Inner lets the engine push bodies apart. Its value is the rounded total
// penetration depth.
type Inner struct {
	search.Base[physics.State]
	set Settings
}

func NewInner(s physics.State, set Settings) *Inner {
	return &Inner{Base: search.Base[physics.State]{Init: s}, set: set.withDefaults()}
}

func (p *Inner) Value(s physics.State) (search.Tuple, error) {
	_, sev, err := severity(p.set.Engine, s, p.set.Precision)
	if err != nil {
		return nil, err
	}
	return search.Tuple{sev}, nil
}

func (p *Inner) Successors(ctx context.Context, _ *rand.Rand, s physics.State) ([]physics.State, error) {
	next, err := p.set.Engine.Push(ctx, s.Clone(), p.set.BatchSize)
	if err != nil {
		return nil, err
	}
	return []physics.State{next}, nil
}

func (p *Inner) RandomRestart(rng *rand.Rand) (physics.State, error) {
	return p.Init.Repose(rng), nil
}
