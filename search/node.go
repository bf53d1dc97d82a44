package search

import (
	"context"
	"fmt"
	"math/rand"
)

type Node[S State[S]] struct {
	State    S
	Value    Tuple
	Children []*Node[S]

	problem Problem[S]
}

// NewNode evaluates s right away. Successors wait for Expand.
func NewNode[S State[S]](p Problem[S], s S) (*Node[S], error) {
	v, err := p.Value(s)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return &Node[S]{State: s, Value: v, problem: p}, nil
}

// Expand regenerates the children from the held state, replacing any
// previous expansion.
func (n *Node[S]) Expand(ctx context.Context, rng *rand.Rand) ([]*Node[S], error) {
	states, err := n.problem.Successors(ctx, rng, n.State)
	if err != nil {
		return nil, fmt.Errorf("successors: %w", err)
	}
	children := make([]*Node[S], 0, len(states))
	for _, s := range states {
		c, err := NewNode(n.problem, s)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	n.Children = children
	return children, nil
}
