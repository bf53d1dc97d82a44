package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rearrange/physics"
	"rearrange/placement"
)

const cupScene = `{
  "surface": {"min": [-5, -5], "max": [5, 5]},
  "news": {"cup": {"shape": {"kind": "disc", "radius": 0.25}, "pose": [1, 1, 0]}}
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REARRANGE_CONFIG", "")
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeScene(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPlaceThenPlan(t *testing.T) {
	dir := t.TempDir()
	scene := writeScene(t, dir, "cup.json", cupScene)
	goal := filepath.Join(dir, "goal.json")

	_, err := execute(t, "place", "--scene", scene, "--algorithm", "inner", "--timeout", "10s", "--out", goal)
	require.NoError(t, err)
	data, err := os.ReadFile(goal)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cup"`)

	out, err := execute(t, "plan", "--goal", goal, "--clingo", "/nonexistent/clingo")
	require.NoError(t, err, "nothing moved, so no planner is needed")
	assert.Contains(t, out, `"body": "cup"`)
	assert.Contains(t, out, `"horizon": 0`)
}

func TestPlace_Errors(t *testing.T) {
	_, err := execute(t, "place")
	assert.Error(t, err, "scene is required")

	scene := writeScene(t, t.TempDir(), "cup.json", cupScene)
	_, err = execute(t, "place", "--scene", scene, "--algorithm", "annealing")
	assert.Error(t, err)

	_, err = execute(t, "place", "--scene", filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestTune(t *testing.T) {
	dir := t.TempDir()
	writeScene(t, dir, "cup.json", cupScene)
	out, err := execute(t, "tune", "--dir", dir, "--runs", "2", "--algorithms", "inner", "--workers", "1,x", "--timeout", "5s", "--parallel", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "--- cup.json inner workers=1 ---")
	assert.Contains(t, out, "collisions 0: 2/2 runs (100%)")
	assert.Contains(t, out, "placements found in all runs: 1")

	_, err = execute(t, "tune", "--dir", t.TempDir())
	assert.Error(t, err, "empty directory")
}

func TestParseIntList(t *testing.T) {
	assert.Equal(t, []int{1, 4, 8}, parseIntList("1, 4,x,8"))
	assert.Empty(t, parseIntList(""))
}

func TestParseAlgorithms(t *testing.T) {
	algs, err := parseAlgorithms("inner, Middle")
	require.NoError(t, err)
	assert.Equal(t, []placement.Algorithm{placement.AlgoInner, placement.AlgoMiddle}, algs)

	algs, err = parseAlgorithms("all")
	require.NoError(t, err)
	assert.Equal(t, placement.Algorithms(), algs)

	_, err = parseAlgorithms("inner,annealing")
	assert.ErrorIs(t, err, placement.ErrUnknownAlgorithm)
}

func TestPlacementKey(t *testing.T) {
	s := physics.State{Bodies: []physics.Body{
		{Name: "vase", Kind: physics.Obstacle, Pose: physics.Pose{X: 9}},
		{Name: "cup", Kind: physics.New, Pose: physics.Pose{X: 1.004, Y: -2, Heading: 0.5}},
	}}
	assert.Equal(t, "cup:1,-2,0.5;", placementKey(s, 2))
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	results := []runResult{
		{collisions: 0, moved: 1, movement: 0.5, key: "a", elapsed: 2 * time.Second},
		{collisions: 0, moved: 0, movement: 0, key: "a", elapsed: 4 * time.Second},
		{collisions: 2, moved: 1, movement: 1, key: "b", elapsed: 3 * time.Second},
	}
	printStats(&buf, "desk inner", results, 3)
	out := buf.String()
	assert.Contains(t, out, "--- desk inner ---")
	assert.Contains(t, out, "avg time: 3s")
	assert.Contains(t, out, "collisions 0: 2/3 runs (67%)")
	assert.Contains(t, out, "collisions 2: 1/3 runs (33%)")
	assert.Contains(t, out, "unique placements seen: 2")
	assert.Contains(t, out, "placements found in all runs: 0")
	assert.Contains(t, out, "top 2 placement frequencies: 2/3, 1/3")

	buf.Reset()
	printStats(&buf, "empty", nil, 3)
	assert.Contains(t, buf.String(), "no runs")
}
