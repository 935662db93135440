package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beamsched/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			info := buildinfo.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "beamsched version %s", info["version"])
			if c := info["commit"]; c != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", c)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
