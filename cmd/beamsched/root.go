package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"beamsched/internal/logging"
	"beamsched/internal/opt"
)

// searchFlags are the search settings shared by solve and bench.
type searchFlags struct {
	ceiling        int
	scorer         string
	workers        int
	thrash         int
	keepDuplicates bool
	logLevel       string
}

func newRootCmd() *cobra.Command {
	var sf searchFlags
	root := &cobra.Command{
		Use:           "beamsched",
		Short:         "Plan multi-agent reward schedules with a bounded beam search",
		Long:          `beamsched reads a graph instance (YAML or JSON) and searches for the agent schedule that releases the most reward before the horizon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	def := opt.DefaultConfig()
	pf := root.PersistentFlags()
	pf.IntVar(&sf.ceiling, "ceiling", def.Ceiling, "frontier size that triggers pruning (0 searches exhaustively)")
	pf.StringVar(&sf.scorer, "scorer", "discounted", "pruning heuristic: raw, projected, discounted, visit-penalty")
	pf.IntVar(&sf.workers, "workers", def.Workers, "goroutines used per tick")
	pf.IntVar(&sf.thrash, "thrash", def.ThrashFactor, "arrival cap per node as a multiple of its degree (0 disables)")
	pf.BoolVar(&sf.keepDuplicates, "keep-duplicates", false, "do not merge branches with equal state")
	pf.StringVar(&sf.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newSolveCmd(&sf), newBenchCmd(&sf), newVersionCmd())
	return root
}

// config builds the search configuration, logging to the command's stderr.
func (sf *searchFlags) config(cmd *cobra.Command) (opt.Config, error) {
	scorer, err := opt.ScorerByName(sf.scorer)
	if err != nil {
		return opt.Config{}, err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), sf.logLevel, "text")
	return opt.Config{
		Ceiling:        sf.ceiling,
		Scorer:         scorer,
		ThrashFactor:   sf.thrash,
		KeepDuplicates: sf.keepDuplicates,
		Workers:        sf.workers,
		Logger:         log.With(slog.String("cmd", cmd.Name())),
	}, nil
}
