package physics

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidShape = errors.New("physics: invalid shape")

type ShapeKind int

const (
	Disc ShapeKind = iota
	Box
)

func (k ShapeKind) String() string {
	switch k {
	case Disc:
		return "disc"
	case Box:
		return "box"
	}
	return fmt.Sprintf("shape(%d)", int(k))
}

// Shape is a body footprint in its own frame. Boxes are centred on the pose
// and rotate with its heading.
type Shape struct {
	Kind   ShapeKind
	Radius float64
	HalfW  float64
	HalfH  float64
}

func NewDisc(radius float64) Shape { return Shape{Kind: Disc, Radius: radius} }

func NewBox(w, h float64) Shape { return Shape{Kind: Box, HalfW: w / 2, HalfH: h / 2} }

func (s Shape) Validate() error {
	switch s.Kind {
	case Disc:
		if !(s.Radius > 0) {
			return fmt.Errorf("%w: disc radius %g", ErrInvalidShape, s.Radius)
		}
	case Box:
		if !(s.HalfW > 0 && s.HalfH > 0) {
			return fmt.Errorf("%w: box size %gx%g", ErrInvalidShape, 2*s.HalfW, 2*s.HalfH)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidShape, int(s.Kind))
	}
	return nil
}

// contact is the overlap between two bodies. Normal points from the first
// body towards the second.
type contact struct {
	Normal Vec
	Depth  float64
}

// penetration returns the overlap of two placed shapes, or false when they
// are apart or only touching.
func penetration(a Shape, pa Pose, b Shape, pb Pose) (contact, bool) {
	switch {
	case a.Kind == Disc && b.Kind == Disc:
		return discDisc(a, pa, b, pb)
	case a.Kind == Box && b.Kind == Box:
		return boxBox(a, pa, b, pb)
	case a.Kind == Disc && b.Kind == Box:
		return discBox(a, pa, b, pb)
	default:
		c, ok := discBox(b, pb, a, pa)
		c.Normal = c.Normal.Neg()
		return c, ok
	}
}

func discDisc(a Shape, pa Pose, b Shape, pb Pose) (contact, bool) {
	delta := pb.Pos().Sub(pa.Pos())
	dist := delta.Len()
	total := a.Radius + b.Radius
	if dist >= total {
		return contact{}, false
	}
	normal := Vec{1, 0}
	if dist > 0 {
		normal = delta.Scale(1 / dist)
	}
	return contact{Normal: normal, Depth: total - dist}, true
}

func axes(p Pose) [2]Vec {
	ux := Vec{1, 0}.Rotate(p.Heading)
	return [2]Vec{ux, {-ux.Y, ux.X}}
}

func (s Shape) extent(p Pose, axis Vec) float64 {
	if s.Kind == Disc {
		return s.Radius
	}
	ax := axes(p)
	return s.HalfW*math.Abs(axis.Dot(ax[0])) + s.HalfH*math.Abs(axis.Dot(ax[1]))
}

// boxBox runs the separating axis test over the four face normals.
func boxBox(a Shape, pa Pose, b Shape, pb Pose) (contact, bool) {
	delta := pb.Pos().Sub(pa.Pos())
	aa, ab := axes(pa), axes(pb)
	best := contact{Depth: math.Inf(1)}
	for _, axis := range []Vec{aa[0], aa[1], ab[0], ab[1]} {
		d := axis.Dot(delta)
		overlap := a.extent(pa, axis) + b.extent(pb, axis) - math.Abs(d)
		if overlap <= 0 {
			return contact{}, false
		}
		if overlap < best.Depth {
			n := axis
			if d < 0 {
				n = n.Neg()
			}
			best = contact{Normal: n, Depth: overlap}
		}
	}
	return best, true
}

// discBox works in the box frame and rotates the normal back out.
func discBox(d Shape, pd Pose, b Shape, pb Pose) (contact, bool) {
	local := pd.Pos().Sub(pb.Pos()).Rotate(-pb.Heading)
	closest := Vec{
		X: math.Max(-b.HalfW, math.Min(local.X, b.HalfW)),
		Y: math.Max(-b.HalfH, math.Min(local.Y, b.HalfH)),
	}
	delta := local.Sub(closest)
	dist := delta.Len()

	var out Vec
	var depth float64
	if dist > 0 {
		if dist >= d.Radius {
			return contact{}, false
		}
		out = delta.Scale(1 / dist)
		depth = d.Radius - dist
	} else {
		// centre inside the box: leave through the nearest face
		xDist := b.HalfW - math.Abs(local.X)
		yDist := b.HalfH - math.Abs(local.Y)
		if xDist < yDist {
			out = Vec{math.Copysign(1, local.X), 0}
			depth = xDist + d.Radius
		} else {
			out = Vec{0, math.Copysign(1, local.Y)}
			depth = yDist + d.Radius
		}
	}
	// out points from the box to the disc; the contact normal goes the other way
	return contact{Normal: out.Rotate(pb.Heading).Neg(), Depth: depth}, true
}
