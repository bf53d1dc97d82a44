package physics

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneFixture = `{
  "surface": {"min": [-5, -5], "max": [5, 5]},
  "obstacles": {"vase": {"shape": {"kind": "disc", "radius": 0.5}, "pose": [-2, 0, 0]}},
  "originals": {
    "plate": {"shape": {"kind": "disc", "radius": 0.75}, "pose": [0, 1, 0]},
    "book": {
      "shape": {"kind": "box", "size": [1, 2]},
      "pose": [2, 0, 1.5],
      "constraints": {"shelf": {"shape": "circular", "geometry": {"center x": 2, "center y": 0, "radius": 1}}}
    }
  },
  "news": {"cup": {"shape": {"kind": "disc", "radius": 0.25}}}
}`

func TestParseScene(t *testing.T) {
	s, err := ParseScene([]byte(sceneFixture), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	names := make([]string, len(s.Bodies))
	for i, b := range s.Bodies {
		names[i] = b.Name
	}
	assert.Equal(t, []string{"vase", "book", "plate", "cup"}, names)

	assert.Empty(t, s.Bodies[0].Constraints, "obstacles are not constrained")
	book := s.Bodies[1]
	assert.Equal(t, Original, book.Kind)
	assert.Equal(t, NewBox(1, 2), book.Shape)
	assert.Equal(t, Pose{2, 0, 1.5}, book.InitPose)
	require.Len(t, book.Constraints, 2)
	assert.Equal(t, Rectangular, book.Constraints[0].Kind)
	assert.Equal(t, s.Padded(), book.Constraints[0].Bounds)
	assert.Equal(t, Circular, book.Constraints[1].Kind)
	assert.Equal(t, 1.0, book.Constraints[1].Radius)

	cup := s.Bodies[3]
	assert.Equal(t, New, cup.Kind)
	assert.True(t, s.Padded().Contains(cup.Pose.Pos()), "missing poses are drawn on the padded surface")
}

func TestParseScene_Deterministic(t *testing.T) {
	a, err := ParseScene([]byte(sceneFixture), rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	b, err := LoadScene(strings.NewReader(sceneFixture), rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	assert.Equal(t, a.Bodies[3].Pose, b.Bodies[3].Pose)
}

func TestParseScene_Errors(t *testing.T) {
	tests := []struct {
		name  string
		scene string
		err   error
	}{
		{"flat surface", `{"surface": {"min": [0, 0], "max": [0, 3]}}`, ErrDegenerateSurface},
		{"bad shape", `{"surface": {"min": [0, 0], "max": [3, 3]}, "news": {"a": {"shape": {"kind": "cone"}}}}`, ErrInvalidShape},
		{"box without size", `{"surface": {"min": [0, 0], "max": [3, 3]}, "news": {"a": {"shape": {"kind": "box"}}}}`, ErrInvalidShape},
		{"zero radius", `{"surface": {"min": [0, 0], "max": [3, 3]}, "news": {"a": {"shape": {"kind": "disc"}}}}`, ErrInvalidShape},
		{"duplicate", `{"surface": {"min": [0, 0], "max": [3, 3]},
			"originals": {"a": {"shape": {"kind": "disc", "radius": 1}, "pose": [1, 1, 0]}},
			"news": {"a": {"shape": {"kind": "disc", "radius": 1}}}}`, ErrDuplicateBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScene([]byte(tt.scene), rand.New(rand.NewSource(1)))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := ParseScene([]byte(`{`), rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestMarshalScene(t *testing.T) {
	s, err := ParseScene([]byte(sceneFixture), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	s.Bodies[1].Pose.X = 3
	s.Bodies[3].Pose.Y = 1

	data, err := s.MarshalScene()
	require.NoError(t, err)

	back, err := ParseScene(data, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	book := back.Bodies[1]
	assert.Equal(t, 3.0, book.Pose.X)
	assert.Equal(t, 2.0, book.InitPose.X)
	assert.Equal(t, s.Bodies[3].Pose, back.Bodies[3].Pose, "placed news keep their pose")
	assert.Equal(t, s.Bodies[3].InitPose, back.Bodies[3].InitPose)
	assert.Equal(t, 1, back.Movement().Count)
}
