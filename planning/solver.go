package planning

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrSolverUnavailable = errors.New("planning: solver unavailable")
	ErrNoPlan            = errors.New("planning: no feasible plan")
)

//go:embed encodings/grid.lp
var gridEncoding string

//go:embed encodings/planner.lp
var plannerEncoding string

// Atom is a ground atom with integer arguments, e.g. move(2,5,1).
type Atom struct {
	Name string
	Args []int
}

func (a Atom) String() string {
	if len(a.Args) == 0 {
		return a.Name
	}
	parts := make([]string, len(a.Args))
	for i, v := range a.Args {
		parts[i] = strconv.Itoa(v)
	}
	return a.Name + "(" + strings.Join(parts, ",") + ")"
}

func parseAtom(s string) (Atom, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return Atom{Name: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return Atom{}, fmt.Errorf("atom %q: unbalanced", s)
	}
	a := Atom{Name: s[:open]}
	for _, part := range strings.Split(s[open+1:len(s)-1], ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", s, err)
		}
		a.Args = append(a.Args, v)
	}
	return a, nil
}

// Answer is the last model a solver reported, the optimum when the program
// has an objective.
type Answer struct {
	Satisfiable bool
	Optimal     bool
	Atoms       []Atom
	Costs       []int
}

func (a Answer) Find(name string) []Atom {
	var out []Atom
	for _, at := range a.Atoms {
		if at.Name == name {
			out = append(out, at)
		}
	}
	return out
}

// Solver grounds and solves an answer set program.
type Solver interface {
	Solve(ctx context.Context, program string) (Answer, error)
}

type SolverFunc func(ctx context.Context, program string) (Answer, error)

func (f SolverFunc) Solve(ctx context.Context, program string) (Answer, error) {
	return f(ctx, program)
}

// Clingo runs the clingo binary with the program on stdin.
type Clingo struct {
	Path string
	Args []string
}

func NewClingo(path string) (*Clingo, error) {
	if path == "" {
		path = "clingo"
	}
	full, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverUnavailable, err)
	}
	return &Clingo{Path: full}, nil
}

func (c *Clingo) Solve(ctx context.Context, program string) (Answer, error) {
	args := append([]string{"--outf=2", "--opt-mode=opt"}, c.Args...)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = strings.NewReader(program)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exit *exec.ExitError
	switch {
	case errors.As(err, &exit):
		// clingo encodes the result in the exit status
		switch exit.ExitCode() {
		case 10, 20, 30:
		default:
			return Answer{}, fmt.Errorf("clingo: exit %d: %s", exit.ExitCode(), strings.TrimSpace(stderr.String()))
		}
	case err != nil:
		return Answer{}, fmt.Errorf("clingo: %w", err)
	}
	return ParseOutput(stdout.Bytes())
}

// ParseOutput reads clingo's JSON output (--outf=2).
func ParseOutput(data []byte) (Answer, error) {
	if !gjson.ValidBytes(data) {
		return Answer{}, errors.New("clingo: output is not JSON")
	}
	out := gjson.ParseBytes(data)
	var ans Answer
	switch out.Get("Result").String() {
	case "SATISFIABLE":
		ans.Satisfiable = true
	case "OPTIMUM FOUND":
		ans.Satisfiable, ans.Optimal = true, true
	default:
		return ans, nil
	}

	calls := out.Get("Call").Array()
	if len(calls) == 0 {
		return ans, errors.New("clingo: satisfiable without a call")
	}
	witnesses := calls[len(calls)-1].Get("Witnesses").Array()
	if len(witnesses) == 0 {
		return ans, errors.New("clingo: satisfiable without a witness")
	}
	last := witnesses[len(witnesses)-1]
	for _, v := range last.Get("Value").Array() {
		a, err := parseAtom(v.String())
		if err != nil {
			return Answer{}, fmt.Errorf("clingo: %w", err)
		}
		ans.Atoms = append(ans.Atoms, a)
	}
	for _, c := range last.Get("Costs").Array() {
		ans.Costs = append(ans.Costs, int(c.Int()))
	}
	return ans, nil
}
