package placement

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"rearrange/physics"
	"rearrange/search"
)

type lockHandle struct {
	Circle   uuid.UUID
	Rotation uuid.UUID
}

// Outer pins every original to its initial pose and loosens one pin per
// successor, a quarter of the body's maximum displacement at a time, letting
// Middle resolve the rest. Its value is (collisions, originals moved,
// displacement).
type Outer struct {
	search.Base[physics.State]
	set Settings

	bare  physics.State
	locks map[string]*lockHandle
}

func NewOuter(ctx context.Context, s physics.State, set Settings) (*Outer, error) {
	set = set.withDefaults()
	o := &Outer{set: set, bare: s.Clone()}
	locked := o.lock(s)
	mid, err := NewMiddle(ctx, locked, set)
	if err != nil {
		return nil, fmt.Errorf("outer: %w", err)
	}
	init, err := solve(ctx, mid, set, "middle")
	if err != nil {
		return nil, fmt.Errorf("outer: initial middle: %w", err)
	}
	o.Init = init
	o.Lexi = true
	return o, nil
}

// lock returns a copy of s with a zero-radius circle and a rotation lock on
// every original, each original projected onto its locks, replacing the
// handle table.
func (o *Outer) lock(s physics.State) physics.State {
	out := s.Clone()
	o.locks = make(map[string]*lockHandle)
	for _, i := range out.Originals() {
		b := out.Bodies[i]
		circle := physics.CircleConstraint(b.InitPose.Pos(), 0)
		rot := physics.RotationConstraint(b.InitPose.Heading, b.InitPose.Heading)
		out.AddConstraint(i, circle)
		out.AddConstraint(i, rot)
		out.Bodies[i].Pose = out.Bodies[i].Project(out.Bodies[i].Pose)
		o.locks[b.Name] = &lockHandle{Circle: circle.ID, Rotation: rot.ID}
	}
	return out
}

func (o *Outer) Value(s physics.State) (search.Tuple, error) {
	info, err := o.set.Engine.CollisionInfo(s)
	if err != nil {
		return nil, err
	}
	m := s.Movement()
	return search.Tuple{
		float64(info.Count),
		float64(m.Count),
		physics.Round(m.Severity, o.set.Precision),
	}, nil
}

func (o *Outer) Successors(ctx context.Context, rng *rand.Rand, s physics.State) ([]physics.State, error) {
	var out []physics.State
	for _, i := range s.Originals() {
		name := s.Bodies[i].Name
		h, ok := o.locks[name]
		if !ok {
			return nil, fmt.Errorf("%w: no lock for %s", physics.ErrUnknownBody, name)
		}
		c, ok := s.Constraint(i, h.Circle)
		if !ok {
			return nil, fmt.Errorf("%w: circle lock missing on %s", physics.ErrUnknownBody, name)
		}
		limit := s.MaxDisplacement(i)
		radius := c.Radius + limit/4
		if radius > limit {
			continue
		}
		// only the relaxed body loses its rotation lock
		next := s.Clone()
		next.RemoveConstraint(i, h.Rotation)
		nc, _ := next.Constraint(i, h.Circle)
		nc.Radius = radius
		o.set.Logger.Debug("relax lock",
			slog.String("component", "outer"),
			slog.String("body", name),
			slog.Float64("radius", radius),
			slog.Any("unlocked", o.unlocked(next)))

		sub := o.set
		sub.Rand = rand.New(rand.NewSource(rng.Int63()))
		mid, err := NewMiddle(ctx, next, sub)
		if err != nil {
			return nil, err
		}
		settled, err := solve(ctx, mid, sub, "middle")
		if err != nil {
			return nil, err
		}
		out = append(out, settled)
	}
	return dedupe(out), nil
}

// unlocked lists the originals of s that no longer carry their rotation lock.
func (o *Outer) unlocked(s physics.State) []string {
	var out []string
	for _, i := range s.Originals() {
		name := s.Bodies[i].Name
		h, ok := o.locks[name]
		if !ok {
			continue
		}
		if _, locked := s.Constraint(i, h.Rotation); !locked {
			out = append(out, name)
		}
	}
	return out
}

// RandomRestart scatters the movable bodies and pins the originals again
// with fresh locks.
func (o *Outer) RandomRestart(rng *rand.Rand) (physics.State, error) {
	return o.lock(o.bare.Repose(rng)), nil
}
