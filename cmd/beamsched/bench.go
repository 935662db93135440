package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"beamsched/internal/model"
	"beamsched/internal/opt"
)

type benchResult struct {
	file    string
	reward  int
	ticks   int
	elapsed time.Duration
}

func newBenchCmd(sf *searchFlags) *cobra.Command {
	var (
		files    []string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Search several instances concurrently and report reward and duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(files) == 0 {
				return errors.New("bench: at least one -f is required")
			}
			cfg, err := sf.config(cmd)
			if err != nil {
				return err
			}
			results := make([]benchResult, len(files))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))
			for i, file := range files {
				g.Go(func() error {
					inst, err := model.LoadInstance(file)
					if err != nil {
						return err
					}
					p, err := inst.Problem()
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					start := time.Now()
					res, err := opt.Search(ctx, p, cfg)
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					results[i] = benchResult{file: file, reward: res.Reward, ticks: res.Metrics.Ticks, elapsed: time.Since(start)}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tREWARD\tTICKS\tDURATION")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.file, r.reward, r.ticks, r.elapsed.Round(time.Microsecond))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "instance file, repeatable")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "instances searched at once")
	return cmd
}
