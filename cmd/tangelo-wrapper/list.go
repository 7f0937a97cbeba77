package main

import (
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List running tangelo instances",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := a.refresh(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				output = a.settings.Output
			}
			return render(cmd.OutOrStdout(), output, instances)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: table, json, yaml")
	return cmd
}
