package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

type Variant int

const (
	Steepest Variant = iota
	Stochastic
)

func (v Variant) String() string {
	switch v {
	case Steepest:
		return "steepest"
	case Stochastic:
		return "stochastic"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

type StopReason int

const (
	Timeout StopReason = iota
	Converged
	LocalOptimum
	Goal
	Canceled
	IterationLimit
	Failed
)

func (r StopReason) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case Converged:
		return "converged"
	case LocalOptimum:
		return "local_optimum"
	case Goal:
		return "goal"
	case Canceled:
		return "canceled"
	case IterationLimit:
		return "iteration_limit"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Observer receives progress from Run. Implementations must be safe for
// concurrent use when searches run in parallel.
type Observer interface {
	Step(name string, v Tuple)
	Restart(name string)
	Done(name string, s Summary)
}

type Options struct {
	// Start is when the budget started counting. Zero means the call to Run.
	Start   time.Time
	Timeout time.Duration

	RandomRestart bool
	Variant       Variant

	// Rand drives stochastic selection and restarts. Nil uses seed 1.
	Rand *rand.Rand

	// A local optimum whose value falls below the floor counts as solved:
	// ScalarFloor for scalar problems, TupleFloor against the first element
	// of lexicographic ones. Use math.Inf(-1) to disable.
	ScalarFloor float64
	TupleFloor  float64

	// MaxIterations caps expansions. Zero is unbounded.
	MaxIterations int

	Name     string
	Observer Observer
	Logger   *slog.Logger
}

var DefaultOptions = Options{
	Timeout:     5 * time.Minute,
	Variant:     Steepest,
	ScalarFloor: 0.01,
	TupleFloor:  1,
}

type Summary struct {
	Value      Tuple
	Iterations int
	Restarts   int
	Elapsed    time.Duration
	Reason     StopReason
}

type Result[S any] struct {
	State S
	Summary
}

// Run hill-climbs from p.Initial() until the budget runs out, a goal or
// local optimum is reached, or ctx is canceled. The budget is checked once per
// iteration and never interrupts an expansion. The best state seen, across
// restarts, is returned, even alongside an error.
func Run[S State[S]](ctx context.Context, p Problem[S], opts Options) (Result[S], error) {
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "search"), slog.String("problem", opts.Name))
	goal, hasGoal := p.Goal()

	var res Result[S]
	done := func(best *Node[S], reason StopReason) Result[S] {
		res.State = best.State
		res.Value = best.Value
		res.Elapsed = time.Since(start)
		res.Reason = reason
		if opts.Observer != nil {
			opts.Observer.Done(opts.Name, res.Summary)
		}
		logger.Debug("search done",
			slog.String("reason", reason.String()),
			slog.String("value", best.Value.String()),
			slog.Int("iterations", res.Iterations),
			slog.Int("restarts", res.Restarts),
			slog.Duration("elapsed", res.Elapsed))
		return res
	}

	current, err := NewNode(p, p.Initial())
	if err != nil {
		return res, fmt.Errorf("search %s: initial: %w", opts.Name, err)
	}
	best := current

	for {
		if time.Since(start) >= opts.Timeout {
			return done(best, Timeout), nil
		}
		if err := ctx.Err(); err != nil {
			return done(best, Canceled), fmt.Errorf("search %s: %w", opts.Name, err)
		}
		if opts.MaxIterations > 0 && res.Iterations >= opts.MaxIterations {
			return done(best, IterationLimit), nil
		}
		res.Iterations++

		children, err := current.Expand(ctx, rng)
		if err != nil {
			return done(best, Failed), fmt.Errorf("search %s: %w", opts.Name, err)
		}

		var improving []*Node[S]
		for _, c := range children {
			b, err := better(p, current.Value, c.Value)
			if err != nil {
				return done(best, Failed), fmt.Errorf("search %s: %w", opts.Name, err)
			}
			if b {
				improving = append(improving, c)
			}
		}
		// best must not pin the nodes expanded below it
		current.Children = nil

		if len(improving) == 0 {
			if converged(p, current.Value, opts) {
				return done(best, Converged), nil
			}
			if !opts.RandomRestart {
				return done(best, LocalOptimum), nil
			}
			s, err := p.RandomRestart(rng)
			if err != nil {
				return done(best, Failed), fmt.Errorf("search %s: restart: %w", opts.Name, err)
			}
			current, err = NewNode(p, s)
			if err != nil {
				return done(best, Failed), fmt.Errorf("search %s: restart: %w", opts.Name, err)
			}
			res.Restarts++
			if opts.Observer != nil {
				opts.Observer.Restart(opts.Name)
			}
			logger.Debug("random restart", slog.Int("restarts", res.Restarts), slog.String("value", current.Value.String()))
		} else {
			current, err = pick(p, improving, opts.Variant, rng)
			if err != nil {
				return done(best, Failed), fmt.Errorf("search %s: %w", opts.Name, err)
			}
			if opts.Observer != nil {
				opts.Observer.Step(opts.Name, current.Value)
			}
		}

		if b, err := better(p, best.Value, current.Value); err != nil {
			return done(best, Failed), fmt.Errorf("search %s: %w", opts.Name, err)
		} else if b {
			best = current
		}

		if hasGoal && current.State.Equal(goal) {
			return done(current, Goal), nil
		}
	}
}

func converged[S State[S]](p Problem[S], v Tuple, opts Options) bool {
	if len(v) == 0 {
		return false
	}
	if p.Lexicographic() {
		return v[0] < opts.TupleFloor
	}
	return v[0] < opts.ScalarFloor
}

// pick chooses among strictly improving nodes. Ties go to the earliest.
func pick[S State[S]](p Problem[S], nodes []*Node[S], variant Variant, rng *rand.Rand) (*Node[S], error) {
	if variant == Stochastic {
		return nodes[rng.Intn(len(nodes))], nil
	}
	if p.Lexicographic() {
		values := make([]Tuple, len(nodes))
		for i, n := range nodes {
			values[i] = n.Value
		}
		b, err := Best(values, !p.Maximize())
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.Value.Equal(b) {
				return n, nil
			}
		}
	}
	chosen := nodes[0]
	for _, n := range nodes[1:] {
		b, err := better(p, chosen.Value, n.Value)
		if err != nil {
			return nil, err
		}
		if b {
			chosen = n
		}
	}
	return chosen, nil
}
