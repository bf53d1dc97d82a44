package placement

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"rearrange/physics"
	"rearrange/search"
)

// RandomSample scatters the movable bodies at every step and keeps the
// result when it collides less.
type RandomSample struct {
	search.Base[physics.State]
	set Settings
}

func NewRandomSample(s physics.State, set Settings) *RandomSample {
	return &RandomSample{Base: search.Base[physics.State]{Init: s}, set: set.withDefaults()}
}

func (p *RandomSample) Value(s physics.State) (search.Tuple, error) {
	_, sev, err := severity(p.set.Engine, s, p.set.Precision)
	if err != nil {
		return nil, err
	}
	return search.Tuple{sev}, nil
}

func (p *RandomSample) Successors(_ context.Context, rng *rand.Rand, s physics.State) ([]physics.State, error) {
	return []physics.State{s.Repose(rng)}, nil
}

func (p *RandomSample) RandomRestart(rng *rand.Rand) (physics.State, error) {
	return p.Init.Repose(rng), nil
}

// potentialFieldWarmup caps the Inner search that seeds RandomPotentialField.
const potentialFieldWarmup = time.Second

// RandomPotentialField scatters the movable bodies and lets Inner settle them.
type RandomPotentialField struct {
	search.Base[physics.State]
	set Settings
}

func NewRandomPotentialField(ctx context.Context, s physics.State, set Settings) (*RandomPotentialField, error) {
	set = set.withDefaults()
	warm := set
	warm.Start = time.Now()
	warm.Timeout = potentialFieldWarmup
	init, err := solve(ctx, NewInner(s, warm), warm, "inner")
	if err != nil {
		return nil, fmt.Errorf("random potential field: warmup: %w", err)
	}
	return &RandomPotentialField{Base: search.Base[physics.State]{Init: init}, set: set}, nil
}

func (p *RandomPotentialField) Value(s physics.State) (search.Tuple, error) {
	_, sev, err := severity(p.set.Engine, s, p.set.Precision)
	if err != nil {
		return nil, err
	}
	return search.Tuple{sev}, nil
}

func (p *RandomPotentialField) Successors(ctx context.Context, rng *rand.Rand, s physics.State) ([]physics.State, error) {
	settled, err := solve(ctx, NewInner(s.Repose(rng), p.set), p.set, "inner")
	if err != nil {
		return nil, err
	}
	return []physics.State{settled}, nil
}

func (p *RandomPotentialField) RandomRestart(rng *rand.Rand) (physics.State, error) {
	return p.Init.Repose(rng), nil
}
