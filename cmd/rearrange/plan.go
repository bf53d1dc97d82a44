package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"rearrange/planning"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		goalPath string
		clingo   string
		maxSteps int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Order the moves that take a scene to a goal placement",
		Long: `Read a goal scene written by "rearrange place" and print the pick-and-place
steps that realise it. Needs clingo on PATH unless no original moved.

Examples:
  rearrange plan --goal goal.json
  rearrange plan --goal goal.json --clingo /opt/clingo/bin/clingo --max-steps 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("clingo") {
				a.cfg.Planning.Clingo = clingo
			}
			if cmd.Flags().Changed("max-steps") {
				a.cfg.Planning.MaxSteps = maxSteps
			}
			s, err := readScene(goalPath, a.cfg.Placement.Seed)
			if err != nil {
				return err
			}

			var solver planning.Solver
			if c, err := planning.NewClingo(a.cfg.Planning.Clingo); err == nil {
				solver = c
			} else {
				a.logger.Warn("planner unavailable", "error", err)
			}
			p, err := planning.GeneratePlan(cmd.Context(), s, a.cfg.PlanOptions(solver, a.logger))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&goalPath, "goal", "g", "", "Goal scene JSON file")
	cmd.Flags().StringVar(&clingo, "clingo", "clingo", "Path to the clingo binary")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Longest plan to try (default twice the originals)")
	cmd.MarkFlagRequired("goal")
	return cmd
}
