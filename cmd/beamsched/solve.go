package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"beamsched/internal/buildinfo"
	"beamsched/internal/model"
	"beamsched/internal/opt"
	"beamsched/internal/telemetry"
)

type solveOutput struct {
	Name      string      `json:"name"`
	Horizon   int         `json:"horizon"`
	Agents    int         `json:"agents"`
	Reward    int         `json:"reward"`
	Activated []string    `json:"activated"`
	Metrics   opt.Metrics `json:"metrics"`
}

func newSolveCmd(sf *searchFlags) *cobra.Command {
	var (
		file    string
		agents  int
		horizon int
		asJSON  bool
		trace   bool
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Search one instance and print the best reward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("solve: -f is required")
			}
			inst, err := model.LoadInstance(file)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("agents") {
				inst.Agents = agents
			}
			if cmd.Flags().Changed("horizon") {
				inst.Horizon = horizon
			}
			p, err := inst.Problem()
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			cfg, err := sf.config(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if trace {
				shutdown, err := telemetry.Init(ctx, telemetry.Config{
					ServiceName:    "beamsched",
					ServiceVersion: buildinfo.Version,
					TraceExporter:  "stdout",
					Writer:         cmd.ErrOrStderr(),
				})
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(ctx) }()
			}

			res, err := opt.Search(ctx, p, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(solveOutput{
					Name:      inst.Name,
					Horizon:   p.Horizon,
					Agents:    p.Agents,
					Reward:    res.Reward,
					Activated: res.Activated,
					Metrics:   res.Metrics,
				})
			}
			fmt.Fprintf(out, "reward: %d\n", res.Reward)
			fmt.Fprintf(out, "activated: %s\n", strings.Join(res.Activated, " "))
			fmt.Fprintf(out, "ticks: %d expanded: %d peak frontier: %d in %s\n",
				res.Metrics.Ticks, res.Metrics.Expanded, res.Metrics.PeakFrontier, res.Metrics.Duration)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "instance file (YAML or JSON)")
	f.IntVar(&agents, "agents", 1, "override the instance agent count")
	f.IntVar(&horizon, "horizon", 0, "override the instance horizon")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	f.BoolVar(&trace, "trace", false, "write search spans to stderr")
	return cmd
}
