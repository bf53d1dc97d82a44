package placement

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"rearrange/physics"
	"rearrange/search"
)

// Settings is shared by every layer of one placement run. Nested searches
// spend from the same budget: Start and Timeout are never reset below the
// top-level problem.
type Settings struct {
	Engine    physics.Engine
	Start     time.Time
	Timeout   time.Duration
	BatchSize int
	// Precision is the number of decimals severities are rounded to, at
	// least one.
	Precision int
	Rand      *rand.Rand
	// Workers bounds the parallel Inner searches of one Middle expansion.
	Workers int

	// Zero floors take the defaults. Use math.Inf(-1) to disable.
	ScalarFloor float64
	TupleFloor  float64

	Logger   *slog.Logger
	Observer search.Observer
}

var DefaultSettings = Settings{
	Timeout:     5 * time.Minute,
	BatchSize:   10,
	Precision:   2,
	Workers:     1,
	ScalarFloor: 0.01,
	TupleFloor:  1,
}

func (s Settings) withDefaults() Settings {
	if s.Engine == nil {
		s.Engine = physics.NewResolver(0)
	}
	if s.Start.IsZero() {
		s.Start = time.Now()
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultSettings.Timeout
	}
	if s.Precision <= 0 {
		s.Precision = DefaultSettings.Precision
	}
	if s.ScalarFloor == 0 {
		s.ScalarFloor = DefaultSettings.ScalarFloor
	}
	if s.TupleFloor == 0 {
		s.TupleFloor = DefaultSettings.TupleFloor
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultSettings.BatchSize
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(1))
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

func (s Settings) options(name string, restart bool) search.Options {
	return search.Options{
		Start:         s.Start,
		Timeout:       s.Timeout,
		RandomRestart: restart,
		Variant:       search.Steepest,
		Rand:          s.Rand,
		ScalarFloor:   s.ScalarFloor,
		TupleFloor:    s.TupleFloor,
		Name:          name,
		Observer:      s.Observer,
		Logger:        s.Logger,
	}
}

// solve runs a nested layer to convergence without restarts and returns its
// final state.
func solve(ctx context.Context, p search.Problem[physics.State], set Settings, name string) (physics.State, error) {
	res, err := search.Run(ctx, p, set.options(name, false))
	return res.State, err
}

func severity(eng physics.Engine, s physics.State, precision int) (physics.CollisionInfo, float64, error) {
	info, err := eng.CollisionInfo(s)
	if err != nil {
		return info, 0, err
	}
	return info, physics.Round(info.Severity, precision), nil
}
