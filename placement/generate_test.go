package placement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	for _, a := range Algorithms() {
		got, err := ParseAlgorithm(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAlgorithm("OUTER")
	require.NoError(t, err)
	assert.Equal(t, AlgoOuter, got)

	_, err = ParseAlgorithm("annealing")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.Equal(t, "algorithm(42)", Algorithm(42).String())
}

func TestAlgorithm_JSON(t *testing.T) {
	var v struct {
		Algorithm Algorithm `json:"algorithm"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"algorithm":"random_restart"}`), &v))
	assert.Equal(t, AlgoRandomRestart, v.Algorithm)

	b, err := json.Marshal(Report{Algorithm: AlgoMiddle})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"algorithm":"middle"`)

	assert.Error(t, json.Unmarshal([]byte(`{"algorithm":"nope"}`), &v))
}

func TestGenerate(t *testing.T) {
	if testing.Short() {
		t.Skip("runs every algorithm")
	}
	for _, alg := range Algorithms() {
		t.Run(alg.String(), func(t *testing.T) {
			s := crowded()
			report, err := Generate(context.Background(), s, alg, settings())
			require.NoError(t, err)
			assert.Equal(t, alg, report.Algorithm)
			assert.Zero(t, report.Collisions)
			assert.Positive(t, report.Iterations)
			assert.Equal(t, s.Bodies[0].Pose, report.State.Bodies[0].Pose)
			if alg == AlgoOuter {
				assert.Zero(t, report.OriginalsMoved)
			}
		})
	}
}

func TestGenerate_InnerNeverRestarts(t *testing.T) {
	report, err := Generate(context.Background(), crowded(), AlgoInner, settings())
	require.NoError(t, err)
	assert.Zero(t, report.Restarts)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(context.Background(), crowded(), Algorithm(9), settings())
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Generate(ctx, crowded(), AlgoInner, settings())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_ZeroBudgetReturnsInitial(t *testing.T) {
	set := settings()
	set.Timeout = time.Nanosecond
	set.Start = time.Now().Add(-time.Second)
	s := crowded()
	report, err := Generate(context.Background(), s, AlgoInner, set)
	require.NoError(t, err)
	assert.True(t, report.State.Equal(s))
	assert.Zero(t, report.Iterations)
	assert.Equal(t, 1, report.Collisions)
}
