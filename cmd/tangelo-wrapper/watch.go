package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axondata/go-tangelo"
)

func newWatchConfigCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "watch-config <path>",
		Short: "Print a config file each time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events, cleanup, err := a.ctl.Store().Watch(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			return printConfigEvents(ctx, a, cmd, formatOr(output, a), events)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: json, yaml")
	return cmd
}

func printConfigEvents(ctx context.Context, a *app, cmd *cobra.Command, format string, events <-chan tangelo.ConfigEvent) error {
	w := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				a.logger.Error("config unreadable", "err", ev.Err)
				continue
			}
			if err := renderConfig(w, format, ev.Config); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
	}
}
