package placement

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"rearrange/physics"
	"rearrange/search"
)

// Middle moves one colliding body at a time to the centre of a free grid
// cell and lets Inner settle the result. Its value is (collisions,
// severity).
type Middle struct {
	search.Base[physics.State]
	set Settings
}

// NewMiddle settles s with Inner first and starts from there.
func NewMiddle(ctx context.Context, s physics.State, set Settings) (*Middle, error) {
	set = set.withDefaults()
	init, err := solve(ctx, NewInner(s, set), set, "inner")
	if err != nil {
		return nil, fmt.Errorf("middle: initial inner: %w", err)
	}
	return &Middle{Base: search.Base[physics.State]{Init: init, Lexi: true}, set: set}, nil
}

func (p *Middle) Value(s physics.State) (search.Tuple, error) {
	info, sev, err := severity(p.set.Engine, s, p.set.Precision)
	if err != nil {
		return nil, err
	}
	return search.Tuple{float64(info.Count), sev}, nil
}

type relocation struct {
	body int
	to   physics.Pose
}

func (p *Middle) Successors(ctx context.Context, rng *rand.Rand, s physics.State) ([]physics.State, error) {
	info, err := p.set.Engine.CollisionInfo(s)
	if err != nil {
		return nil, err
	}
	if !info.Colliding {
		return nil, nil
	}
	cells, err := FreeCells(s)
	if err != nil {
		return nil, err
	}

	var moves []relocation
	for _, name := range info.Bodies {
		i, ok := s.Index(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", physics.ErrUnknownBody, name)
		}
		b := s.Bodies[i]
		if !b.Movable() {
			continue
		}
		for _, c := range cells {
			// a locked body projects back onto its lock
			to := b.Project(physics.Pose{X: c.X, Y: c.Y, Heading: math.Pi})
			if to == b.Pose {
				continue
			}
			moves = append(moves, relocation{i, to})
		}
	}

	// every trial gets its own generator so results do not depend on Workers
	rngs := make([]*rand.Rand, len(moves))
	for k := range moves {
		rngs[k] = rand.New(rand.NewSource(rng.Int63()))
	}
	results := make([]physics.State, len(moves))
	try := func(ctx context.Context, k int) error {
		next := s.Clone()
		m := moves[k]
		next.Bodies[m.body].Pose = m.to
		sub := p.set
		sub.Rand = rngs[k]
		settled, err := solve(ctx, NewInner(next, sub), sub, "inner")
		if err != nil {
			return err
		}
		results[k] = settled
		return nil
	}

	if p.set.Workers <= 1 {
		for k := range moves {
			if err := try(ctx, k); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.set.Workers)
		for k := range moves {
			g.Go(func() error { return try(gctx, k) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return dedupe(results), nil
}

func (p *Middle) RandomRestart(rng *rand.Rand) (physics.State, error) {
	return p.Init.Repose(rng), nil
}

// dedupe drops exact duplicates and keeps the first occurrence.
func dedupe(states []physics.State) []physics.State {
	seen := make(map[uint64][]int, len(states))
	out := states[:0:0]
	for _, s := range states {
		fp := s.Fingerprint()
		dup := false
		for _, j := range seen[fp] {
			if out[j].Equal(s) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[fp] = append(seen[fp], len(out))
		out = append(out, s)
	}
	return out
}
