// Command rearrange places new bodies on a cluttered surface, plans the moves
// that realise a placement and tunes algorithms over a directory of scenes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"rearrange/config"
	"rearrange/physics"
	"rearrange/telemetry"
)

type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	shutdown   func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rearrange",
		Short:         "Place objects on a cluttered surface with nested local search",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("REARRANGE_CONFIG"), "Config file (YAML or JSON)")

	root.AddCommand(newPlaceCmd(a), newPlanCmd(a), newTuneCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Server.Level()}))
	slog.SetDefault(a.logger)

	tracing := telemetry.TracingConfig{ServiceName: "rearrange-cli"}
	if cfg.Server.Tracing {
		tracing.Writer = cmd.ErrOrStderr()
	}
	a.shutdown, err = telemetry.InitTracing(cmd.Context(), tracing)
	return err
}

func readScene(path string, seed int64) (physics.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return physics.State{}, err
	}
	defer f.Close()
	s, err := physics.LoadScene(f, rand.New(rand.NewSource(seed)))
	if err != nil {
		return physics.State{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
