package main

import (
	"fmt"
	"io"
	"maps"
	"math/rand"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rearrange/physics"
	"rearrange/placement"
)

// placementKey identifies a final placement by its rounded poses, so runs
// that land on the same arrangement count once.
func placementKey(s physics.State, precision int) string {
	var buf strings.Builder
	for _, b := range s.Bodies {
		if !b.Movable() {
			continue
		}
		fmt.Fprintf(&buf, "%s:%g,%g,%g;", b.Name,
			physics.Round(b.Pose.X, precision),
			physics.Round(b.Pose.Y, precision),
			physics.Round(b.Pose.Heading, precision))
	}
	return buf.String()
}

type runResult struct {
	collisions int
	moved      int
	movement   float64
	key        string
	elapsed    time.Duration
}

func printStats(w io.Writer, label string, results []runResult, runs int) {
	collisions := map[int]int{}
	placements := map[string]int{}
	var totalTime time.Duration
	var totalMoved int
	var totalMovement float64

	for _, r := range results {
		totalTime += r.elapsed
		collisions[r.collisions]++
		totalMoved += r.moved
		totalMovement += r.movement
		placements[r.key]++
	}

	fmt.Fprintf(w, "--- %s ---\n", label)
	if runs == 0 || len(results) == 0 {
		fmt.Fprintf(w, "  no runs\n\n")
		return
	}
	fmt.Fprintf(w, "  avg time: %v\n", totalTime/time.Duration(len(results)))

	fmt.Fprintf(w, "  collision distribution:\n")
	for _, c := range slices.Sorted(maps.Keys(collisions)) {
		n := collisions[c]
		fmt.Fprintf(w, "    collisions %d: %d/%d runs (%.0f%%)\n", c, n, runs, float64(n)/float64(runs)*100)
	}
	fmt.Fprintf(w, "  avg originals moved: %.1f\n", float64(totalMoved)/float64(len(results)))
	fmt.Fprintf(w, "  avg movement: %.2f\n", totalMovement/float64(len(results)))
	fmt.Fprintf(w, "  unique placements seen: %d\n", len(placements))

	var freqs []struct {
		key   string
		count int
	}
	for k, c := range placements {
		freqs = append(freqs, struct {
			key   string
			count int
		}{k, c})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].count != freqs[j].count {
			return freqs[i].count > freqs[j].count
		}
		return freqs[i].key < freqs[j].key
	})

	stable := 0
	for _, f := range freqs {
		if f.count == runs {
			stable++
		}
	}
	fmt.Fprintf(w, "  placements found in all runs: %d\n", stable)
	topN := min(5, len(freqs))
	fmt.Fprintf(w, "  top %d placement frequencies: ", topN)
	for i := range topN {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%d/%d", freqs[i].count, runs)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	var result []int
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err == nil {
			result = append(result, v)
		}
	}
	return result
}

func parseAlgorithms(s string) ([]placement.Algorithm, error) {
	if s == "all" {
		return placement.Algorithms(), nil
	}
	var out []placement.Algorithm
	for _, name := range strings.Split(s, ",") {
		alg, err := placement.ParseAlgorithm(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, alg)
	}
	return out, nil
}

func newTuneCmd(a *app) *cobra.Command {
	var (
		dir        string
		runs       int
		algorithms string
		workers    string
		timeout    time.Duration
		parallel   int
	)
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Compare algorithms over a directory of scenes",
		Long: `Run every algorithm and worker count on every *.json scene in a directory,
with a fixed seed per run, and print timing and outcome distributions.

Examples:
  rearrange tune --dir scenes/ --runs 5 --algorithms inner,middle --workers 1,4
  rearrange tune --dir scenes/ --algorithms all --timeout 1m --parallel 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			algs, err := parseAlgorithms(algorithms)
			if err != nil {
				return err
			}
			workerCounts := parseIntList(workers)
			if len(workerCounts) == 0 {
				return fmt.Errorf("no valid worker counts in %q", workers)
			}
			scenes, err := filepath.Glob(filepath.Join(dir, "*.json"))
			if err != nil {
				return err
			}
			if len(scenes) == 0 {
				return fmt.Errorf("no scenes in %s", dir)
			}
			slices.Sort(scenes)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scenes: %d, Algorithms: %d, Runs per config: %d\n\n", len(scenes), len(algs), runs)
			for _, path := range scenes {
				for _, alg := range algs {
					for _, wk := range workerCounts {
						results, err := a.tune(cmd, path, alg, wk, runs, timeout, parallel)
						if err != nil {
							return err
						}
						label := fmt.Sprintf("%s %s workers=%d", filepath.Base(path), alg, wk)
						printStats(out, label, results, runs)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "scenes", "Directory with scene JSON files")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of seeded runs per configuration")
	cmd.Flags().StringVar(&algorithms, "algorithms", "inner,middle,outer", "Comma-separated algorithms, or all")
	cmd.Flags().StringVar(&workers, "workers", "1", "Comma-separated middle worker counts")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Budget per run")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Runs executed concurrently")
	return cmd
}

// tune runs one configuration runs times. Run r is seeded with r*31337 for
// both the scene and the search, so configurations see the same inputs.
func (a *app) tune(cmd *cobra.Command, path string, alg placement.Algorithm, workers, runs int, timeout time.Duration, parallel int) ([]runResult, error) {
	results := make([]runResult, runs)
	ok := make([]bool, runs)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(parallel, 1))
	for run := range runs {
		g.Go(func() error {
			seed := int64(run * 31337)
			s, err := readScene(path, seed)
			if err != nil {
				return err
			}
			set := a.cfg.Settings(a.logger)
			set.Timeout = timeout
			set.Workers = workers
			set.Rand = rand.New(rand.NewSource(seed))
			rep, err := placement.Generate(ctx, s, alg, set)
			if err != nil {
				a.logger.Warn("tune run failed", "scene", path, "algorithm", alg.String(), "run", run, "error", err)
				return nil
			}
			results[run] = runResult{
				collisions: rep.Collisions,
				moved:      rep.OriginalsMoved,
				movement:   rep.Movement,
				key:        placementKey(rep.State, set.Precision),
				elapsed:    rep.Elapsed,
			}
			ok[run] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []runResult
	for i, r := range results {
		if ok[i] {
			out = append(out, r)
		}
	}
	return out, nil
}
