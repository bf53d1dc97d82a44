package search

import (
	"context"
	"math/rand"
)

// State is anything a problem searches over. Equal is the exact goal test.
type State[S any] interface {
	Equal(S) bool
}

// Problem is a local search problem. Successors and RandomRestart must never
// mutate the state they are given.
type Problem[S State[S]] interface {
	Initial() S
	Maximize() bool
	Lexicographic() bool
	Goal() (S, bool)

	Value(S) (Tuple, error)
	Successors(ctx context.Context, rng *rand.Rand, s S) ([]S, error)
	RandomRestart(rng *rand.Rand) (S, error)
}

// Base carries the descriptive half of a Problem and is meant to be embedded.
type Base[S State[S]] struct {
	Init  S
	Max   bool
	Lexi  bool
	GoalS *S
}

func (b *Base[S]) Initial() S          { return b.Init }
func (b *Base[S]) Maximize() bool      { return b.Max }
func (b *Base[S]) Lexicographic() bool { return b.Lexi }

func (b *Base[S]) Goal() (S, bool) {
	if b.GoalS == nil {
		var zero S
		return zero, false
	}
	return *b.GoalS, true
}

// better compares two values under the problem's polarity and mode.
func better[S State[S]](p Problem[S], ref, cand Tuple) (bool, error) {
	if p.Lexicographic() {
		return IsBetter(ref, cand, !p.Maximize())
	}
	if len(ref) == 0 || len(cand) == 0 {
		return false, ErrSizeMismatch
	}
	if p.Maximize() {
		return cand[0] > ref[0], nil
	}
	return cand[0] < ref[0], nil
}
