package physics

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math/rand"
	"slices"
)

type sceneJSON struct {
	Surface   surfaceJSON         `json:"surface"`
	Obstacles map[string]bodyJSON `json:"obstacles"`
	Originals map[string]bodyJSON `json:"originals"`
	News      map[string]bodyJSON `json:"news"`
}

type surfaceJSON struct {
	Min [2]float64 `json:"min"`
	Max [2]float64 `json:"max"`
}

type bodyJSON struct {
	Shape       shapeJSON                 `json:"shape"`
	Pose        *[3]float64               `json:"pose,omitempty"`
	InitPose    *[3]float64               `json:"init_pose,omitempty"`
	Constraints map[string]constraintJSON `json:"constraints,omitempty"`
}

type shapeJSON struct {
	Kind   string    `json:"kind"`
	Radius float64   `json:"radius,omitempty"`
	Size   []float64 `json:"size,omitempty"`
}

type constraintJSON struct {
	Shape    string             `json:"shape"`
	Geometry map[string]float64 `json:"geometry"`
}

// ParseScene builds a state from scene JSON. Bodies without a pose are placed
// at random on the padded surface, and every movable body is kept on it by a
// rectangular constraint.
func ParseScene(data []byte, rng *rand.Rand) (State, error) {
	var sc sceneJSON
	if err := json.Unmarshal(data, &sc); err != nil {
		return State{}, fmt.Errorf("scene: %w", err)
	}
	s := State{Surface: Rect{
		Min: Vec{sc.Surface.Min[0], sc.Surface.Min[1]},
		Max: Vec{sc.Surface.Max[0], sc.Surface.Max[1]},
	}}
	if s.Surface.Empty() || s.Padded().Empty() {
		return State{}, ErrDegenerateSurface
	}
	bounds := s.Padded()

	groups := []struct {
		kind   BodyKind
		bodies map[string]bodyJSON
	}{{Obstacle, sc.Obstacles}, {Original, sc.Originals}, {New, sc.News}}
	for _, g := range groups {
		for _, name := range slices.Sorted(maps.Keys(g.bodies)) {
			b, err := g.bodies[name].body(name, g.kind, s, rng)
			if err != nil {
				return State{}, err
			}
			if b.Movable() {
				b.Constraints = append([]Constraint{RectConstraint(bounds)}, b.Constraints...)
			}
			s.Bodies = append(s.Bodies, b)
		}
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

func LoadScene(r io.Reader, rng *rand.Rand) (State, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return State{}, err
	}
	return ParseScene(data, rng)
}

func (bj bodyJSON) body(name string, kind BodyKind, s State, rng *rand.Rand) (Body, error) {
	b := Body{Name: name, Kind: kind}
	switch bj.Shape.Kind {
	case "disc", "circle":
		b.Shape = NewDisc(bj.Shape.Radius)
	case "box", "rectangle":
		if len(bj.Shape.Size) != 2 {
			return Body{}, fmt.Errorf("body %s: %w: size needs width and height", name, ErrInvalidShape)
		}
		b.Shape = NewBox(bj.Shape.Size[0], bj.Shape.Size[1])
	default:
		return Body{}, fmt.Errorf("body %s: %w: kind %q", name, ErrInvalidShape, bj.Shape.Kind)
	}

	if bj.Pose != nil {
		b.Pose = Pose{bj.Pose[0], bj.Pose[1], bj.Pose[2]}
	} else {
		b.Pose = s.RandomPose(rng)
	}
	b.InitPose = b.Pose
	if bj.InitPose != nil {
		b.InitPose = Pose{bj.InitPose[0], bj.InitPose[1], bj.InitPose[2]}
	}

	for _, cname := range slices.Sorted(maps.Keys(bj.Constraints)) {
		cj := bj.Constraints[cname]
		kind, err := ParseConstraintKind(cj.Shape)
		if err != nil {
			return Body{}, fmt.Errorf("body %s constraint %s: %w", name, cname, err)
		}
		g := cj.Geometry
		switch kind {
		case Rectangular:
			b.Constraints = append(b.Constraints, RectConstraint(Rect{
				Min: Vec{g["min x"], g["min y"]},
				Max: Vec{g["max x"], g["max y"]},
			}))
		case Circular:
			b.Constraints = append(b.Constraints, CircleConstraint(Vec{g["center x"], g["center y"]}, g["radius"]))
		case Rotational:
			b.Constraints = append(b.Constraints, RotationConstraint(g["min"], g["max"]))
		}
	}
	return b, nil
}

// MarshalScene writes s back as scene JSON, poses only. Constraints are not
// written.
func (s State) MarshalScene() ([]byte, error) {
	sc := sceneJSON{
		Surface: surfaceJSON{
			Min: [2]float64{s.Surface.Min.X, s.Surface.Min.Y},
			Max: [2]float64{s.Surface.Max.X, s.Surface.Max.Y},
		},
		Obstacles: map[string]bodyJSON{},
		Originals: map[string]bodyJSON{},
		News:      map[string]bodyJSON{},
	}
	for _, b := range s.Bodies {
		bj := bodyJSON{Pose: &[3]float64{b.Pose.X, b.Pose.Y, b.Pose.Heading}}
		switch b.Shape.Kind {
		case Disc:
			bj.Shape = shapeJSON{Kind: "disc", Radius: b.Shape.Radius}
		case Box:
			bj.Shape = shapeJSON{Kind: "box", Size: []float64{2 * b.Shape.HalfW, 2 * b.Shape.HalfH}}
		}
		if b.Movable() && b.InitPose != b.Pose {
			bj.InitPose = &[3]float64{b.InitPose.X, b.InitPose.Y, b.InitPose.Heading}
		}
		switch b.Kind {
		case Obstacle:
			sc.Obstacles[b.Name] = bj
		case Original:
			sc.Originals[b.Name] = bj
		case New:
			sc.News[b.Name] = bj
		}
	}
	return json.MarshalIndent(sc, "", "  ")
}
