package search

import (
	"errors"
	"fmt"
)

var (
	ErrSizeMismatch = errors.New("search: tuple size mismatch")
	ErrEmpty        = errors.New("search: no tuples to compare")
)

// Tuple is an objective value. Scalar objectives are tuples of length 1.
type Tuple []float64

// IsBetter reports whether cand strictly beats ref, deciding on the first
// element where the two differ.
func IsBetter(ref, cand Tuple, findMin bool) (bool, error) {
	if len(ref) != len(cand) {
		return false, fmt.Errorf("%w: %d vs %d", ErrSizeMismatch, len(ref), len(cand))
	}
	return isBetter(ref, cand, findMin), nil
}

func isBetter(ref, cand Tuple, findMin bool) bool {
	if len(ref) == 0 {
		return false
	}
	switch {
	case findMin && cand[0] < ref[0]:
		return true
	case !findMin && cand[0] > ref[0]:
		return true
	case cand[0] == ref[0]:
		return isBetter(ref[1:], cand[1:], findMin)
	}
	return false
}

// Best returns the lexicographically best tuple. The result is always one of
// the inputs; among equal tuples the earliest wins.
func Best(tuples []Tuple, findMin bool) (Tuple, error) {
	if len(tuples) == 0 {
		return nil, ErrEmpty
	}
	best := tuples[0]
	for _, t := range tuples[1:] {
		better, err := IsBetter(best, t, findMin)
		if err != nil {
			return nil, err
		}
		if better {
			best = t
		}
	}
	return best, nil
}

func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	if len(t) == 1 {
		return fmt.Sprintf("%g", t[0])
	}
	s := "("
	for i, v := range t {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%g", v)
	}
	return s + ")"
}
