package physics

import "math"

type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(f float64) Vec { return Vec{v.X * f, v.Y * f} }
func (v Vec) Dot(o Vec) float64 { return v.X*o.X + v.Y*o.Y }
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64 { return v.Sub(o).Len() }
func (v Vec) Neg() Vec { return Vec{-v.X, -v.Y} }

// Rotate turns v counter-clockwise by theta radians.
func (v Vec) Rotate(theta float64) Vec {
	s, c := math.Sincos(theta)
	return Vec{v.X*c - v.Y*s, v.X*s + v.Y*c}
}

type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

func (p Pose) Pos() Vec { return Vec{p.X, p.Y} }

func (p Pose) WithPos(v Vec) Pose {
	p.X, p.Y = v.X, v.Y
	return p
}

// Rect is an axis-aligned box.
type Rect struct {
	Min, Max Vec
}

func (r Rect) Width() float64 { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }
func (r Rect) Diagonal() float64 {
	return math.Hypot(r.Width(), r.Height())
}

func (r Rect) Center() Vec {
	return Vec{(r.Min.X + r.Max.X) / 2, (r.Min.Y + r.Max.Y) / 2}
}

func (r Rect) Empty() bool {
	return !(r.Width() > 0 && r.Height() > 0)
}

// Shrink moves every side inwards by d.
func (r Rect) Shrink(d float64) Rect {
	return Rect{Vec{r.Min.X + d, r.Min.Y + d}, Vec{r.Max.X - d, r.Max.Y - d}}
}

func (r Rect) Contains(v Vec) bool {
	return v.X >= r.Min.X && v.X <= r.Max.X && v.Y >= r.Min.Y && v.Y <= r.Max.Y
}

func (r Rect) Clamp(v Vec) Vec {
	return Vec{math.Max(r.Min.X, math.Min(v.X, r.Max.X)), math.Max(r.Min.Y, math.Min(v.Y, r.Max.Y))}
}

func (r Rect) Corners() [4]Vec {
	return [4]Vec{r.Min, {r.Max.X, r.Min.Y}, r.Max, {r.Min.X, r.Max.Y}}
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
