package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axondata/go-tangelo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Skip settings and controller setup
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			info := tangelo.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "tangelo-wrapper %s (drives %s, %s configs)\n", info.Version, info.Tool, info.ConfigFormat)
		},
	}
}
