package main

import (
	"github.com/spf13/cobra"

	"github.com/axondata/go-tangelo"
)

func newStopCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a tangelo instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.refresh(cmd.Context()); err != nil {
				return err
			}
			res := a.ctl.Execute(cmd.Context(), tangelo.StopCommand{ID: args[0]})
			if err := renderInstance(cmd.OutOrStdout(), formatOr(output, a), res.Instance); err != nil {
				return err
			}
			return res.Err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: table, json, yaml")
	return cmd
}
