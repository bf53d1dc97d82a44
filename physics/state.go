package physics

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var (
	ErrUnknownBody       = errors.New("physics: unknown body")
	ErrDuplicateBody     = errors.New("physics: duplicate body name")
	ErrDegenerateSurface = errors.New("physics: surface has no area")
)

const (
	// PaddingRatio of the surface diagonal is kept clear along every edge.
	PaddingRatio = 0.0125

	// MovementTolerance is how far an original may drift before it counts
	// as moved.
	MovementTolerance = 1e-6
)

type BodyKind int

const (
	Obstacle BodyKind = iota
	Original
	New
)

func (k BodyKind) String() string {
	switch k {
	case Obstacle:
		return "obstacle"
	case Original:
		return "original"
	case New:
		return "new"
	}
	return fmt.Sprintf("body(%d)", int(k))
}

type Body struct {
	Name  string
	Kind  BodyKind
	Shape Shape
	Pose  Pose
	// InitPose is where an original started. Obstacles and news keep it
	// equal to Pose at load time.
	InitPose    Pose
	Constraints []Constraint
}

func (b Body) Movable() bool { return b.Kind != Obstacle }

// Moved reports whether b left its initial pose, heading included.
func (b Body) Moved() bool {
	return b.Pose.Pos().Dist(b.InitPose.Pos()) > MovementTolerance ||
		math.Abs(b.Pose.Heading-b.InitPose.Heading) > MovementTolerance
}

// Project applies every constraint in order.
func (b Body) Project(p Pose) Pose {
	for _, c := range b.Constraints {
		p = c.Project(p)
	}
	return p
}

// State is a surface and the bodies on it, ordered obstacles, originals,
// news. Search layers treat it as a value: mutate only a Clone.
type State struct {
	Surface Rect
	Bodies  []Body
}

func (s State) Clone() State {
	out := State{Surface: s.Surface, Bodies: make([]Body, len(s.Bodies))}
	copy(out.Bodies, s.Bodies)
	for i := range out.Bodies {
		out.Bodies[i].Constraints = append([]Constraint(nil), s.Bodies[i].Constraints...)
	}
	return out
}

func (s State) Equal(o State) bool {
	if s.Surface != o.Surface || len(s.Bodies) != len(o.Bodies) {
		return false
	}
	for i := range s.Bodies {
		a, b := s.Bodies[i], o.Bodies[i]
		if a.Name != b.Name || a.Kind != b.Kind || a.Shape != b.Shape ||
			a.Pose != b.Pose || a.InitPose != b.InitPose || len(a.Constraints) != len(b.Constraints) {
			return false
		}
		for j := range a.Constraints {
			if a.Constraints[j] != b.Constraints[j] {
				return false
			}
		}
	}
	return true
}

// Fingerprint hashes poses and constraint geometry. Equal states always share
// a fingerprint.
func (s State) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		d.Write(buf[:])
	}
	for _, b := range s.Bodies {
		d.WriteString(b.Name)
		put(b.Pose.X)
		put(b.Pose.Y)
		put(b.Pose.Heading)
		for _, c := range b.Constraints {
			d.Write(c.ID[:])
			put(c.Radius)
			put(c.MinHeading)
			put(c.MaxHeading)
		}
	}
	return d.Sum64()
}

func (s State) Index(name string) (int, bool) {
	for i, b := range s.Bodies {
		if b.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (s State) Movable() []int {
	var out []int
	for i, b := range s.Bodies {
		if b.Movable() {
			out = append(out, i)
		}
	}
	return out
}

func (s State) Originals() []int {
	var out []int
	for i, b := range s.Bodies {
		if b.Kind == Original {
			out = append(out, i)
		}
	}
	return out
}

func (s State) Centroids() []Vec {
	out := make([]Vec, len(s.Bodies))
	for i, b := range s.Bodies {
		out[i] = b.Pose.Pos()
	}
	return out
}

// Padded is the part of the surface a body centre may occupy.
func (s State) Padded() Rect {
	return s.Surface.Shrink(s.Surface.Diagonal() * PaddingRatio)
}

func (s State) RandomPose(rng *rand.Rand) Pose {
	p := s.Padded()
	return Pose{
		X:       p.Min.X + rng.Float64()*p.Width(),
		Y:       p.Min.Y + rng.Float64()*p.Height(),
		Heading: rng.Float64() * 2 * math.Pi,
	}
}

// Repose returns a copy with every movable body at a uniformly random pose.
func (s State) Repose(rng *rand.Rand) State {
	out := s.Clone()
	for _, i := range out.Movable() {
		out.Bodies[i].Pose = out.RandomPose(rng)
	}
	return out
}

// MaxDisplacement is the furthest body i could travel from its initial
// position while staying on the padded surface.
func (s State) MaxDisplacement(i int) float64 {
	from := s.Bodies[i].InitPose.Pos()
	var best float64
	for _, c := range s.Padded().Corners() {
		best = math.Max(best, from.Dist(c))
	}
	return best
}

type MovementInfo struct {
	Moved    bool
	Count    int
	Severity float64
}

// Movement reports how many originals left their initial pose and how far
// they travelled in total.
func (s State) Movement() MovementInfo {
	var m MovementInfo
	for _, i := range s.Originals() {
		b := s.Bodies[i]
		if b.Moved() {
			m.Count++
			m.Severity += b.Pose.Pos().Dist(b.InitPose.Pos())
		}
	}
	m.Moved = m.Count > 0
	return m
}

func (s *State) AddConstraint(i int, c Constraint) {
	s.Bodies[i].Constraints = append(s.Bodies[i].Constraints, c)
}

func (s *State) RemoveConstraint(i int, id uuid.UUID) bool {
	cs := s.Bodies[i].Constraints
	for j := range cs {
		if cs[j].ID == id {
			s.Bodies[i].Constraints = append(cs[:j:j], cs[j+1:]...)
			return true
		}
	}
	return false
}

// Constraint returns the constraint with the given ID on body i for in-place
// changes.
func (s *State) Constraint(i int, id uuid.UUID) (*Constraint, bool) {
	cs := s.Bodies[i].Constraints
	for j := range cs {
		if cs[j].ID == id {
			return &cs[j], true
		}
	}
	return nil, false
}

func (s State) Validate() error {
	if s.Surface.Empty() || s.Padded().Empty() {
		return ErrDegenerateSurface
	}
	seen := make(map[string]bool, len(s.Bodies))
	for _, b := range s.Bodies {
		if seen[b.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateBody, b.Name)
		}
		seen[b.Name] = true
		if err := b.Shape.Validate(); err != nil {
			return fmt.Errorf("body %s: %w", b.Name, err)
		}
	}
	return nil
}
