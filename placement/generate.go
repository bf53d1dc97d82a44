package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rearrange/physics"
	"rearrange/search"
)

var ErrUnknownAlgorithm = errors.New("placement: unknown algorithm")

type Algorithm int

const (
	AlgoRandomSample Algorithm = iota
	AlgoInner
	AlgoRandomRestart
	AlgoMiddle
	AlgoOuter
)

var algorithmNames = []string{"random_sample", "inner", "random_restart", "middle", "outer"}

func Algorithms() []Algorithm {
	return []Algorithm{AlgoRandomSample, AlgoInner, AlgoRandomRestart, AlgoMiddle, AlgoOuter}
}

func (a Algorithm) String() string {
	if a >= 0 && int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

func ParseAlgorithm(s string) (Algorithm, error) {
	for i, name := range algorithmNames {
		if strings.EqualFold(s, name) {
			return Algorithm(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

func (a Algorithm) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

type Report struct {
	Algorithm      Algorithm         `json:"algorithm"`
	State          physics.State     `json:"-"`
	Collisions     int               `json:"collisions"`
	Penetration    float64           `json:"penetration"`
	OriginalsMoved int               `json:"originals_moved"`
	Movement       float64           `json:"movement"`
	Iterations     int               `json:"iterations"`
	Restarts       int               `json:"restarts"`
	Reason         search.StopReason `json:"-"`
	Elapsed        time.Duration     `json:"elapsed_ns"`
}

var tracer = otel.Tracer("rearrange/placement")

// NewProblem builds the top-level problem for alg and reports whether the
// driver should restart at local optima.
func NewProblem(ctx context.Context, s physics.State, alg Algorithm, set Settings) (search.Problem[physics.State], bool, error) {
	switch alg {
	case AlgoRandomSample:
		return NewRandomSample(s, set), true, nil
	case AlgoInner:
		return NewInner(s, set), false, nil
	case AlgoRandomRestart:
		p, err := NewRandomPotentialField(ctx, s, set)
		return p, true, err
	case AlgoMiddle:
		p, err := NewMiddle(ctx, s, set)
		return p, true, err
	case AlgoOuter:
		p, err := NewOuter(ctx, s, set)
		return p, true, err
	}
	return nil, false, fmt.Errorf("%w: %v", ErrUnknownAlgorithm, alg)
}

// Generate searches for a collision-free placement of s with alg.
func Generate(ctx context.Context, s physics.State, alg Algorithm, set Settings) (Report, error) {
	set = set.withDefaults()
	ctx, span := tracer.Start(ctx, "placement.Generate", trace.WithAttributes(
		attribute.String("algorithm", alg.String()),
		attribute.Int("bodies", len(s.Bodies)),
		attribute.Int64("timeout_ms", set.Timeout.Milliseconds()),
	))
	defer span.End()
	logger := set.Logger.With(slog.String("component", "placement"), slog.String("algorithm", alg.String()))

	fail := func(err error) (Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{Algorithm: alg}, err
	}

	p, restart, err := NewProblem(ctx, s, alg, set)
	if err != nil {
		return fail(err)
	}
	res, err := search.Run(ctx, p, set.options(alg.String(), restart))
	if err != nil {
		return fail(err)
	}
	info, err := set.Engine.CollisionInfo(res.State)
	if err != nil {
		return fail(err)
	}
	mov := res.State.Movement()
	report := Report{
		Algorithm:      alg,
		State:          res.State,
		Collisions:     info.Count,
		Penetration:    info.Severity,
		OriginalsMoved: mov.Count,
		Movement:       mov.Severity,
		Iterations:     res.Iterations,
		Restarts:       res.Restarts,
		Reason:         res.Reason,
		Elapsed:        time.Since(set.Start),
	}
	span.SetAttributes(
		attribute.Int("collisions", report.Collisions),
		attribute.Float64("penetration", report.Penetration),
		attribute.Int("originals_moved", report.OriginalsMoved),
		attribute.String("reason", report.Reason.String()),
	)
	logger.Info("placement generated",
		slog.Int("collisions", report.Collisions),
		slog.Float64("penetration", report.Penetration),
		slog.Int("originals_moved", report.OriginalsMoved),
		slog.Float64("movement", report.Movement),
		slog.Int("iterations", report.Iterations),
		slog.String("reason", report.Reason.String()),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}
