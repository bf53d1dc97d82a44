package physics

import (
	"context"
	"slices"
)

// Engine resolves overlaps and measures them. Implementations may be remote;
// errors mean the state can no longer be trusted.
type Engine interface {
	// Push advances the simulation by up to steps micro-steps on a copy of s.
	Push(ctx context.Context, s State, steps int) (State, error)
	CollisionInfo(s State) (CollisionInfo, error)
}

type CollisionInfo struct {
	Colliding bool
	Count     int
	Severity  float64
	Bodies    []string
}

// Resolver is an in-process engine that separates overlapping footprints
// along their contact normals, then projects bodies back onto their
// constraints.
type Resolver struct {
	// Threshold is the depth a pair must exceed to count as colliding.
	Threshold float64
	// Percent of each overlap corrected per micro-step.
	Percent float64
}

var DefaultResolver = Resolver{Threshold: 0.01, Percent: 0.8}

func NewResolver(threshold float64) *Resolver {
	r := DefaultResolver
	if threshold > 0 {
		r.Threshold = threshold
	}
	return &r
}

type pairContact struct {
	i, j int
	contact
}

// contacts lists overlapping pairs involving at least one movable body.
func (r *Resolver) contacts(s State) []pairContact {
	var out []pairContact
	for i := range s.Bodies {
		for j := i + 1; j < len(s.Bodies); j++ {
			a, b := s.Bodies[i], s.Bodies[j]
			if !a.Movable() && !b.Movable() {
				continue
			}
			if c, ok := penetration(a.Shape, a.Pose, b.Shape, b.Pose); ok {
				out = append(out, pairContact{i, j, c})
			}
		}
	}
	return out
}

func (r *Resolver) Push(ctx context.Context, s State, steps int) (State, error) {
	out := s.Clone()
	for range steps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		cs := r.contacts(out)
		worst := 0.0
		for _, c := range cs {
			worst = max(worst, c.Depth)
		}
		if worst <= r.Threshold && r.satisfied(out) {
			break
		}
		for _, c := range cs {
			a, b := &out.Bodies[c.i], &out.Bodies[c.j]
			var invA, invB float64
			if a.Movable() {
				invA = 1
			}
			if b.Movable() {
				invB = 1
			}
			corr := c.Normal.Scale(c.Depth * r.Percent / (invA + invB))
			a.Pose = a.Pose.WithPos(a.Pose.Pos().Sub(corr.Scale(invA)))
			b.Pose = b.Pose.WithPos(b.Pose.Pos().Add(corr.Scale(invB)))
		}
		for i := range out.Bodies {
			if b := &out.Bodies[i]; b.Movable() {
				b.Pose = b.Project(b.Pose)
			}
		}
	}
	return out, nil
}

func (r *Resolver) satisfied(s State) bool {
	for _, b := range s.Bodies {
		if !b.Movable() {
			continue
		}
		for _, c := range b.Constraints {
			if !c.Satisfied(b.Pose) {
				return false
			}
		}
	}
	return true
}

func (r *Resolver) CollisionInfo(s State) (CollisionInfo, error) {
	var info CollisionInfo
	colliding := make(map[string]bool)
	for _, c := range r.contacts(s) {
		if c.Depth <= r.Threshold {
			continue
		}
		info.Count++
		info.Severity += c.Depth
		colliding[s.Bodies[c.i].Name] = true
		colliding[s.Bodies[c.j].Name] = true
	}
	info.Colliding = info.Count > 0
	for name := range colliding {
		info.Bodies = append(info.Bodies, name)
	}
	slices.Sort(info.Bodies)
	return info, nil
}
