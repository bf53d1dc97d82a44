package physics

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

type ConstraintKind int

const (
	Rectangular ConstraintKind = iota
	Circular
	Rotational
)

func (k ConstraintKind) String() string {
	switch k {
	case Rectangular:
		return "rectangular"
	case Circular:
		return "circular"
	case Rotational:
		return "rotational"
	}
	return fmt.Sprintf("constraint(%d)", int(k))
}

func ParseConstraintKind(s string) (ConstraintKind, error) {
	switch s {
	case "rectangular":
		return Rectangular, nil
	case "circular":
		return Circular, nil
	case "rotational":
		return Rotational, nil
	}
	return 0, fmt.Errorf("physics: unknown constraint shape %q", s)
}

// Constraint restricts where a body may be. Identity is the ID, so a
// constraint can be found and changed on any copy of the state.
type Constraint struct {
	ID   uuid.UUID
	Kind ConstraintKind

	Bounds Rect

	Center Vec
	Radius float64

	MinHeading, MaxHeading float64
}

func RectConstraint(r Rect) Constraint {
	return Constraint{ID: uuid.New(), Kind: Rectangular, Bounds: r}
}

func CircleConstraint(center Vec, radius float64) Constraint {
	return Constraint{ID: uuid.New(), Kind: Circular, Center: center, Radius: radius}
}

func RotationConstraint(lo, hi float64) Constraint {
	return Constraint{ID: uuid.New(), Kind: Rotational, MinHeading: lo, MaxHeading: hi}
}

// Project moves p to the nearest pose satisfying c.
func (c Constraint) Project(p Pose) Pose {
	switch c.Kind {
	case Rectangular:
		return p.WithPos(c.Bounds.Clamp(p.Pos()))
	case Circular:
		off := p.Pos().Sub(c.Center)
		d := off.Len()
		if d <= c.Radius {
			return p
		}
		if c.Radius <= 0 || d == 0 {
			return p.WithPos(c.Center)
		}
		return p.WithPos(c.Center.Add(off.Scale(c.Radius / d)))
	case Rotational:
		p.Heading = math.Max(c.MinHeading, math.Min(p.Heading, c.MaxHeading))
	}
	return p
}

func (c Constraint) Satisfied(p Pose) bool {
	const eps = 1e-9
	switch c.Kind {
	case Rectangular:
		return c.Bounds.Shrink(-eps).Contains(p.Pos())
	case Circular:
		return p.Pos().Dist(c.Center) <= c.Radius+eps
	case Rotational:
		return p.Heading >= c.MinHeading-eps && p.Heading <= c.MaxHeading+eps
	}
	return true
}
