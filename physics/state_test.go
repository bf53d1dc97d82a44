package physics

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// table is a 10x10 surface with one obstacle, one original and one new body.
func table() State {
	s := State{Surface: Rect{Vec{-5, -5}, Vec{5, 5}}}
	bounds := s.Padded()
	s.Bodies = []Body{
		{Name: "vase", Kind: Obstacle, Shape: NewDisc(0.5), Pose: Pose{X: -2}, InitPose: Pose{X: -2}},
		{Name: "book", Kind: Original, Shape: NewBox(1, 2), Pose: Pose{X: 2}, InitPose: Pose{X: 2},
			Constraints: []Constraint{RectConstraint(bounds)}},
		{Name: "cup", Kind: New, Shape: NewDisc(0.25), Pose: Pose{Y: 3}, InitPose: Pose{Y: 3},
			Constraints: []Constraint{RectConstraint(bounds)}},
	}
	return s
}

func TestState_CloneIsIndependent(t *testing.T) {
	s := table()
	c := s.Clone()
	require.True(t, s.Equal(c))
	assert.Equal(t, s.Fingerprint(), c.Fingerprint())

	c.Bodies[1].Pose.X = 3
	c.Bodies[1].Constraints[0].Bounds.Min.X = 0
	assert.Equal(t, 2.0, s.Bodies[1].Pose.X)
	assert.Equal(t, s.Padded().Min.X, s.Bodies[1].Constraints[0].Bounds.Min.X)
	assert.False(t, s.Equal(c))
	assert.NotEqual(t, s.Fingerprint(), c.Fingerprint())
}

func TestState_Padded(t *testing.T) {
	s := table()
	pad := math.Hypot(10, 10) * PaddingRatio
	p := s.Padded()
	assert.InDelta(t, -5+pad, p.Min.X, 1e-12)
	assert.InDelta(t, -5+pad, p.Min.Y, 1e-12)
	assert.InDelta(t, 5-pad, p.Max.X, 1e-12)
	assert.InDelta(t, 5-pad, p.Max.Y, 1e-12)
}

func TestState_ReposeKeepsObstacles(t *testing.T) {
	s := table()
	rng := rand.New(rand.NewSource(3))
	r := s.Repose(rng)

	assert.Equal(t, s.Bodies[0].Pose, r.Bodies[0].Pose)
	for _, i := range r.Movable() {
		assert.True(t, s.Padded().Contains(r.Bodies[i].Pose.Pos()))
		assert.GreaterOrEqual(t, r.Bodies[i].Pose.Heading, 0.0)
		assert.Less(t, r.Bodies[i].Pose.Heading, 2*math.Pi)
	}
	assert.Equal(t, Pose{X: 2}, s.Bodies[1].Pose)
}

func TestState_Movement(t *testing.T) {
	s := table()
	assert.Equal(t, MovementInfo{}, s.Movement())

	s.Bodies[1].Pose.X = 5
	s.Bodies[2].Pose.X = 4 // news never count
	m := s.Movement()
	assert.True(t, m.Moved)
	assert.Equal(t, 1, m.Count)
	assert.InDelta(t, 3, m.Severity, 1e-12)
}

func TestState_MaxDisplacement(t *testing.T) {
	s := table()
	p := s.Padded()
	// book starts at (2, 0): the far corners are on the left
	want := Vec{2, 0}.Dist(p.Min)
	assert.InDelta(t, want, s.MaxDisplacement(1), 1e-12)
}

func TestState_Constraints(t *testing.T) {
	s := table()
	c := CircleConstraint(Vec{2, 0}, 0)
	s.AddConstraint(1, c)

	got, ok := s.Constraint(1, c.ID)
	require.True(t, ok)
	got.Radius = 1.5

	copied := s.Clone()
	again, ok := copied.Constraint(1, c.ID)
	require.True(t, ok)
	assert.Equal(t, 1.5, again.Radius)

	assert.True(t, copied.RemoveConstraint(1, c.ID))
	assert.False(t, copied.RemoveConstraint(1, c.ID))
	_, ok = s.Constraint(1, c.ID)
	assert.True(t, ok, "removing from a clone must not touch the source")
}

func TestState_Validate(t *testing.T) {
	assert.NoError(t, table().Validate())

	s := table()
	s.Bodies[2].Name = "book"
	assert.ErrorIs(t, s.Validate(), ErrDuplicateBody)

	s = table()
	s.Surface = Rect{Vec{0, 0}, Vec{0, 4}}
	assert.ErrorIs(t, s.Validate(), ErrDegenerateSurface)
}

func TestResolver_PushSeparates(t *testing.T) {
	s := table()
	// cup overlaps the vase by 0.25
	s.Bodies[2].Pose = Pose{X: -2 + 0.5}
	r := NewResolver(0.01)

	before, err := r.CollisionInfo(s)
	require.NoError(t, err)
	require.True(t, before.Colliding)
	assert.Equal(t, 1, before.Count)
	assert.InDelta(t, 0.25, before.Severity, 1e-9)
	assert.Equal(t, []string{"cup", "vase"}, before.Bodies)

	after, err := r.Push(context.Background(), s, 10)
	require.NoError(t, err)
	info, err := r.CollisionInfo(after)
	require.NoError(t, err)
	assert.False(t, info.Colliding)
	assert.Equal(t, s.Bodies[0].Pose, after.Bodies[0].Pose, "obstacles stay put")
	assert.Greater(t, after.Bodies[2].Pose.X, s.Bodies[2].Pose.X)
	assert.Equal(t, -1.5, s.Bodies[2].Pose.X, "push works on a copy")
}

func TestResolver_PushSplitsBetweenMovables(t *testing.T) {
	s := table()
	s.Bodies[2].Pose = Pose{X: 2 - 0.5 - 0.25 + 0.1} // into the book's left face
	r := NewResolver(0.01)

	after, err := r.Push(context.Background(), s, 1)
	require.NoError(t, err)
	movedBook := after.Bodies[1].Pose.X - s.Bodies[1].Pose.X
	movedCup := s.Bodies[2].Pose.X - after.Bodies[2].Pose.X
	assert.Positive(t, movedBook)
	assert.InDelta(t, movedBook, movedCup, 1e-9)
}

func TestResolver_PushProjectsConstraints(t *testing.T) {
	s := table()
	s.Bodies[1].Pose = Pose{X: 9}
	s.AddConstraint(1, RotationConstraint(0, 0))
	s.Bodies[1].Pose.Heading = 1

	after, err := NewResolver(0).Push(context.Background(), s, 1)
	require.NoError(t, err)
	assert.InDelta(t, s.Padded().Max.X, after.Bodies[1].Pose.X, 1e-12)
	assert.Zero(t, after.Bodies[1].Pose.Heading)
}

func TestResolver_IgnoresShallowContacts(t *testing.T) {
	s := table()
	s.Bodies[2].Pose = Pose{X: -2 + 0.75 - 0.005}
	info, err := NewResolver(0.01).CollisionInfo(s)
	require.NoError(t, err)
	assert.False(t, info.Colliding)
	assert.Zero(t, info.Severity)
}

func TestResolver_PushHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(0).Push(ctx, table(), 5)
	assert.ErrorIs(t, err, context.Canceled)
}
