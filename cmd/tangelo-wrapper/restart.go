package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axondata/go-tangelo"
)

func newRestartCmd(a *app) *cobra.Command {
	var (
		configPath string
		daemonize  bool
		port       int
		output     string
	)

	cmd := &cobra.Command{
		Use:   "restart <id>",
		Short: "Restart a tangelo instance, optionally with edits",
		Long: `Restart a tangelo instance. Edits given by flags are saved into the
instance's config file first. Changing --daemonize on a running instance
stops it before it is started again in the new mode. An instance that ends
up running in the foreground keeps the command attached until it exits or
the command is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.refresh(ctx); err != nil {
				return err
			}

			id := args[0]
			inst, ok := a.ctl.Registry().Get(id)
			if !ok {
				return fmt.Errorf("no tangelo instance %q", id)
			}

			cfg := inst.Config
			if configPath != "" {
				loaded, err := a.ctl.Store().Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("daemonize") {
				cfg.Daemonize = daemonize
			}
			if cmd.Flags().Changed("port") {
				if port < 0 || port > tangelo.MaxPort {
					return fmt.Errorf("port %d out of range", port)
				}
				cfg.Port = port
			}

			res := a.ctl.Execute(ctx, tangelo.RestartCommand{ID: id, Config: cfg})
			if err := renderInstance(cmd.OutOrStdout(), formatOr(output, a), res.Instance); err != nil {
				return err
			}
			if res.Err != nil {
				return res.Err
			}
			return attach(ctx, a, res.Instance)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "take the new config from this file")
	cmd.Flags().BoolVar(&daemonize, "daemonize", true, "run as a daemon managed by tangelo")
	cmd.Flags().IntVar(&port, "port", 0, "listen on this port")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: table, json, yaml")
	return cmd
}
