package planning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rearrange/physics"
)

type Options struct {
	Solver      Solver
	Engine      physics.Engine
	IncludeNews bool
	// Optimize replaces the naive grid with the solver's minimal one.
	Optimize bool
	// MaxSteps caps the horizon. Zero means twice the number of originals.
	MaxSteps  int
	Precision int
	Rand      *rand.Rand
	Logger    *slog.Logger
}

var DefaultOptions = Options{
	IncludeNews: true,
	Optimize:    true,
	Precision:   2,
}

// settleSteps bounds the push that fits a body into an intermediate cell.
const settleSteps = 100

type Step struct {
	Body string `json:"body"`
	// PlannerID is the body's index in the state, nil for new bodies.
	PlannerID *int         `json:"planner_id"`
	From      physics.Pose `json:"from"`
	To        physics.Pose `json:"to"`
}

type Plan struct {
	Steps   []Step        `json:"steps"`
	Horizon int           `json:"horizon"`
	Moved   int           `json:"originals_moved"`
	Cells   int           `json:"cells"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

var tracer = otel.Tracer("rearrange/planning")

// GeneratePlan orders the pick-and-place actions that take every original
// from its initial pose to its pose in s, then places the new bodies.
func GeneratePlan(ctx context.Context, s physics.State, opts Options) (Plan, error) {
	start := time.Now()
	if opts.Engine == nil {
		opts.Engine = physics.NewResolver(0)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With(slog.String("component", "planning"))

	mov := s.Movement()
	ctx, span := tracer.Start(ctx, "planning.GeneratePlan", trace.WithAttributes(
		attribute.Int("bodies", len(s.Bodies)),
		attribute.Int("originals_moved", mov.Count),
	))
	defer span.End()
	fail := func(err error) (Plan, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Plan{}, err
	}

	if !mov.Moved {
		p := Plan{Steps: placeNews(s, opts.Precision), Elapsed: time.Since(start)}
		logger.Info("plan generated", slog.Int("steps", len(p.Steps)), slog.Bool("placement_only", true))
		return p, nil
	}
	if opts.Solver == nil {
		return fail(ErrSolverUnavailable)
	}

	g := Discretize(s, opts.IncludeNews, opts.Rand)
	if opts.Optimize {
		var err error
		if g, err = Optimize(ctx, g, opts.Solver); err != nil {
			return fail(err)
		}
	}
	t, err := newTask(s, g, opts.IncludeNews)
	if err != nil {
		return fail(err)
	}

	minSteps := mov.Count
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 2 * len(s.Originals())
	}
	maxSteps = max(maxSteps, minSteps)

	for h := minSteps; h <= maxSteps; h++ {
		var rejected [][]Atom
		for {
			ans, err := opts.Solver.Solve(ctx, t.program(h, rejected))
			if err != nil {
				return fail(fmt.Errorf("plan horizon %d: %w", h, err))
			}
			if !ans.Satisfiable {
				break
			}
			steps, bad, err := t.realise(ctx, opts.Engine, ans.Find("move"), opts.Precision)
			if err != nil {
				return fail(err)
			}
			if bad != nil {
				logger.Debug("plan collides, rejecting", slog.Int("horizon", h), slog.Int("prefix", len(bad)))
				rejected = append(rejected, bad)
				continue
			}
			p := Plan{
				Steps:   append(steps, placeNews(s, opts.Precision)...),
				Horizon: h,
				Moved:   mov.Count,
				Cells:   g.Columns() * g.Rows(),
				Elapsed: time.Since(start),
			}
			span.SetAttributes(attribute.Int("horizon", h), attribute.Int("steps", len(p.Steps)))
			logger.Info("plan generated",
				slog.Int("steps", len(p.Steps)),
				slog.Int("horizon", h),
				slog.Int("cells", p.Cells),
				slog.Duration("elapsed", p.Elapsed))
			return p, nil
		}
	}
	return fail(fmt.Errorf("%w: up to %d steps", ErrNoPlan, maxSteps))
}

func placeNews(s physics.State, precision int) []Step {
	var out []Step
	for _, b := range s.Bodies {
		if b.Kind != physics.New {
			continue
		}
		out = append(out, Step{Body: b.Name, From: round(b.InitPose, precision), To: round(b.Pose, precision)})
	}
	return out
}

func round(p physics.Pose, precision int) physics.Pose {
	return physics.Pose{
		X:       physics.Round(p.X, precision),
		Y:       physics.Round(p.Y, precision),
		Heading: physics.Round(p.Heading, precision),
	}
}

// task is the discrete planning instance derived from a state and its grid.
type task struct {
	state    physics.State
	cells    []Cell
	bodies   []int
	init     map[int]int
	goal     map[int]int
	reserved []int
}

func newTask(s physics.State, g Grid, includeNews bool) (*task, error) {
	t := &task{state: s, cells: g.Cells(), init: map[int]int{}, goal: map[int]int{}}
	for i, b := range s.Bodies {
		if b.Kind == physics.New {
			if includeNews {
				c, ok := g.locate(i, StageGoal)
				if !ok {
					return nil, fmt.Errorf("%w: %s is off the grid", physics.ErrUnknownBody, b.Name)
				}
				t.reserved = append(t.reserved, c)
			}
			continue
		}
		c, ok := g.locate(i, StageInitial)
		if !ok {
			return nil, fmt.Errorf("%w: %s is off the grid", physics.ErrUnknownBody, b.Name)
		}
		t.bodies = append(t.bodies, i)
		t.init[i], t.goal[i] = c, c
		if gc, ok := g.locate(i, StageGoal); ok {
			t.goal[i] = gc
		}
	}
	return t, nil
}

func (t *task) program(horizon int, rejected [][]Atom) string {
	var b strings.Builder
	b.WriteString(plannerEncoding)
	fmt.Fprintf(&b, "#const horizon=%d.\n", horizon)
	fmt.Fprintf(&b, "cell(0..%d).\n", len(t.cells)-1)
	for _, i := range t.bodies {
		fmt.Fprintf(&b, "body(%d).\n", i)
		if t.state.Bodies[i].Kind == physics.Obstacle {
			fmt.Fprintf(&b, "obstacle(%d).\n", i)
		}
		fmt.Fprintf(&b, "at(%d,%d,0).\n", i, t.init[i])
		fmt.Fprintf(&b, "goal(%d,%d).\n", i, t.goal[i])
	}
	for _, c := range t.reserved {
		fmt.Fprintf(&b, "reserved(%d).\n", c)
	}
	for _, prefix := range rejected {
		parts := make([]string, len(prefix))
		for i, a := range prefix {
			parts[i] = a.String()
		}
		fmt.Fprintf(&b, ":- %s.\n", strings.Join(parts, ", "))
	}
	return b.String()
}

// realise replays the discrete moves on the continuous state. Bodies moving
// to their initial or goal cell take that pose; any other cell gets its
// centre, nudged by the engine until nothing overlaps. The first colliding
// move returns the prefix of moves that led to it.
func (t *task) realise(ctx context.Context, eng physics.Engine, moves []Atom, precision int) ([]Step, []Atom, error) {
	for _, m := range moves {
		if len(m.Args) != 3 {
			return nil, nil, fmt.Errorf("planning: malformed move %s", m)
		}
	}
	moves = slices.Clone(moves)
	slices.SortFunc(moves, func(a, b Atom) int { return a.Args[2] - b.Args[2] })

	cur := physics.State{Surface: t.state.Surface}
	at := map[int]int{}
	for _, i := range t.bodies {
		b := t.state.Bodies[i]
		b.Pose = b.InitPose
		b.Constraints = nil
		at[i] = len(cur.Bodies)
		cur.Bodies = append(cur.Bodies, b)
	}

	var steps []Step
	for k, m := range moves {
		id, cell := m.Args[0], m.Args[1]
		j, ok := at[id]
		if !ok || cell < 0 || cell >= len(t.cells) {
			return nil, nil, fmt.Errorf("planning: move %s outside the task", m)
		}
		src := t.state.Bodies[id]
		from := cur.Bodies[j].Pose

		var to physics.Pose
		intermediate := false
		switch cell {
		case t.goal[id]:
			to = src.Pose
		case t.init[id]:
			to = src.InitPose
		default:
			c := t.cells[cell].Center()
			to = physics.Pose{X: c.X, Y: c.Y, Heading: math.Pi}
			intermediate = true
		}
		cur.Bodies[j].Pose = to

		info, err := eng.CollisionInfo(cur)
		if err != nil {
			return nil, nil, err
		}
		if info.Colliding && intermediate {
			settled, err := t.settle(ctx, eng, cur, j, cell)
			if err != nil {
				return nil, nil, err
			}
			if info, err = eng.CollisionInfo(settled); err != nil {
				return nil, nil, err
			}
			cur.Bodies[j].Pose = settled.Bodies[j].Pose
			to = cur.Bodies[j].Pose
		}
		if info.Colliding {
			return nil, moves[:k+1], nil
		}

		pid := id
		steps = append(steps, Step{Body: src.Name, PlannerID: &pid, From: round(from, precision), To: round(to, precision)})
	}
	return steps, nil, nil
}

// settle pushes body j around inside its cell while pinning everything else.
func (t *task) settle(ctx context.Context, eng physics.Engine, cur physics.State, j, cell int) (physics.State, error) {
	s := cur.Clone()
	for i := range s.Bodies {
		b := &s.Bodies[i]
		if i == j {
			b.Constraints = []physics.Constraint{physics.RectConstraint(t.cells[cell].Rect())}
			continue
		}
		b.Constraints = []physics.Constraint{
			physics.CircleConstraint(b.Pose.Pos(), 0),
			physics.RotationConstraint(b.Pose.Heading, b.Pose.Heading),
		}
	}
	return eng.Push(ctx, s, settleSteps)
}
