package planning

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"rearrange/physics"
)

type Stage int

const (
	StageInitial Stage = iota
	StageGoal
)

func (s Stage) String() string {
	if s == StageGoal {
		return "goal"
	}
	return "initial"
}

// Centroid is one body position the grid has to keep apart from every other.
// Positions are rounded and jittered so no two centroids share an x or a y.
type Centroid struct {
	Body  int
	Name  string
	Kind  physics.BodyKind
	Stage Stage
	Pos   physics.Vec
}

// Grid partitions the surface with axis-aligned cuts. VLines and HLines hold
// the interior cuts in ascending order; the surface borders are implied.
type Grid struct {
	Bounds    physics.Rect
	VLines    []float64
	HLines    []float64
	Centroids []Centroid
}

const (
	jitterSpan    = 0.05
	coordDecimals = 3
)

// Discretize collects the centroids of s (obstacles, initial positions of
// originals, goal positions of moved originals and, when includeNews is set,
// the poses of new bodies) and cuts the surface midway between every pair of
// consecutive coordinates.
func Discretize(s physics.State, includeNews bool, rng *rand.Rand) Grid {
	g := Grid{Bounds: s.Surface}
	takenX, takenY := map[float64]bool{}, map[float64]bool{}
	add := func(i int, stage Stage, p physics.Vec) {
		p = physics.Vec{X: separate(p.X, takenX, rng), Y: separate(p.Y, takenY, rng)}
		p = s.Surface.Clamp(p)
		takenX[p.X], takenY[p.Y] = true, true
		b := s.Bodies[i]
		g.Centroids = append(g.Centroids, Centroid{Body: i, Name: b.Name, Kind: b.Kind, Stage: stage, Pos: p})
	}

	for _, kind := range []physics.BodyKind{physics.Obstacle, physics.Original, physics.New} {
		for i, b := range s.Bodies {
			if b.Kind != kind {
				continue
			}
			switch kind {
			case physics.Obstacle:
				add(i, StageInitial, b.Pose.Pos())
			case physics.Original:
				add(i, StageInitial, b.InitPose.Pos())
				if b.Moved() {
					add(i, StageGoal, b.Pose.Pos())
				}
			case physics.New:
				if includeNews {
					add(i, StageGoal, b.Pose.Pos())
				}
			}
		}
	}

	xs := make([]float64, len(g.Centroids))
	ys := make([]float64, len(g.Centroids))
	for i, c := range g.Centroids {
		xs[i], ys[i] = c.Pos.X, c.Pos.Y
	}
	g.VLines = midpoints(xs)
	g.HLines = midpoints(ys)
	return g
}

func separate(v float64, taken map[float64]bool, rng *rand.Rand) float64 {
	var shift float64
	for taken[physics.Round(v+shift, coordDecimals)] {
		shift += (rng.Float64()*2 - 1) * jitterSpan
	}
	return physics.Round(v+shift, coordDecimals)
}

func midpoints(vs []float64) []float64 {
	vs = slices.Clone(vs)
	slices.Sort(vs)
	var out []float64
	for i := 0; i+1 < len(vs); i++ {
		out = append(out, (vs[i]+vs[i+1])/2)
	}
	return slices.Compact(out)
}

type Cell struct {
	Left, Upper, Right, Lower float64
}

func (c Cell) Rect() physics.Rect {
	return physics.Rect{Min: physics.Vec{X: c.Left, Y: c.Lower}, Max: physics.Vec{X: c.Right, Y: c.Upper}}
}

func (c Cell) Center() physics.Vec { return c.Rect().Center() }

func (g Grid) xs() []float64 {
	return slices.Concat([]float64{g.Bounds.Min.X}, g.VLines, []float64{g.Bounds.Max.X})
}

func (g Grid) ys() []float64 {
	return slices.Concat([]float64{g.Bounds.Min.Y}, g.HLines, []float64{g.Bounds.Max.Y})
}

func (g Grid) Columns() int { return len(g.VLines) + 1 }
func (g Grid) Rows() int    { return len(g.HLines) + 1 }

// Cells lists the cells column by column, bottom to top within a column. The
// position of a cell in the list is its identifier.
func (g Grid) Cells() []Cell {
	xs, ys := g.xs(), g.ys()
	out := make([]Cell, 0, g.Columns()*g.Rows())
	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			out = append(out, Cell{Left: xs[i], Upper: ys[j+1], Right: xs[i+1], Lower: ys[j]})
		}
	}
	return out
}

// Locate returns the cell holding v. Points on a cut belong to the lower
// cell.
func (g Grid) Locate(v physics.Vec) (int, bool) {
	col, ok := span(g.xs(), v.X)
	if !ok {
		return 0, false
	}
	row, ok := span(g.ys(), v.Y)
	if !ok {
		return 0, false
	}
	return col*g.Rows() + row, true
}

func span(cuts []float64, v float64) (int, bool) {
	for i := 0; i+1 < len(cuts); i++ {
		if cuts[i] <= v && v <= cuts[i+1] {
			return i, true
		}
	}
	return 0, false
}

// locate finds the cell of a centroid by index, the position it was given
// during discretization.
func (g Grid) locate(body int, stage Stage) (int, bool) {
	for _, c := range g.Centroids {
		if c.Body == body && c.Stage == stage {
			return g.Locate(c.Pos)
		}
	}
	return 0, false
}

// Optimize asks solver for the smallest subset of g's cuts that still keeps
// every pair of centroids in different cells. Without an answer the naive
// grid is returned unchanged.
func Optimize(ctx context.Context, g Grid, solver Solver) (Grid, error) {
	if len(g.Centroids) < 2 {
		return g, nil
	}
	ans, err := solver.Solve(ctx, gridProgram(g))
	if err != nil {
		return g, fmt.Errorf("optimize grid: %w", err)
	}
	if !ans.Satisfiable {
		return g, nil
	}
	out := Grid{Bounds: g.Bounds, Centroids: g.Centroids}
	for _, a := range ans.Atoms {
		if len(a.Args) != 1 {
			continue
		}
		k := a.Args[0]
		switch a.Name {
		case "newvline":
			if k >= 1 && k <= len(g.VLines) {
				out.VLines = append(out.VLines, g.VLines[k-1])
			}
		case "newhline":
			if k >= 1 && k <= len(g.HLines) {
				out.HLines = append(out.HLines, g.HLines[k-1])
			}
		}
	}
	if len(out.VLines) == 0 && len(out.HLines) == 0 {
		return g, nil
	}
	slices.Sort(out.VLines)
	slices.Sort(out.HLines)
	return out, nil
}

func gridProgram(g Grid) string {
	var b strings.Builder
	b.WriteString(gridEncoding)
	fmt.Fprintf(&b, "#const maxx=%d.\n#const maxy=%d.\n", g.Columns(), g.Rows())
	for i, c := range g.Centroids {
		col, _ := span(g.xs(), c.Pos.X)
		row, _ := span(g.ys(), c.Pos.Y)
		fmt.Fprintf(&b, "obj(%d,%d,%d).\n", i, col, row)
	}
	return b.String()
}
