package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/axondata/go-tangelo"
)

func newStartCmd(a *app) *cobra.Command {
	var (
		autodetect bool
		output     string
	)

	cmd := &cobra.Command{
		Use:   "start <config>",
		Short: "Start tangelo with a config file",
		Long: `Start tangelo with the given config file. A missing file is created
from the defaults. With --autodetect-port a free port is chosen and saved
into the config before launching.

A config with daemonize set to false runs tangelo in the foreground: the
command stays attached, echoes the server's output to stderr, and stops
the server on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := a.refresh(ctx); err != nil {
				return err
			}
			res := a.ctl.Execute(ctx, tangelo.StartCommand{
				Path:           path,
				AutodetectPort: autodetect,
			})
			if err := renderInstance(cmd.OutOrStdout(), formatOr(output, a), res.Instance); err != nil {
				return err
			}
			if res.Err != nil {
				return res.Err
			}
			return attach(ctx, a, res.Instance)
		},
	}

	cmd.Flags().BoolVar(&autodetect, "autodetect-port", false, "pick a free port and save it into the config")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: table, json, yaml")
	return cmd
}

func formatOr(output string, a *app) string {
	if output != "" {
		return output
	}
	return a.settings.Output
}
