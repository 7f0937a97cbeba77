package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/axondata/go-tangelo"
	"github.com/axondata/go-tangelo/internal/settings"
)

// app holds what every subcommand needs once flags are parsed
type app struct {
	v        *viper.Viper
	settings *settings.Settings
	logger   *log.Logger
	metrics  *tangelo.PrometheusMetricsCollector
	ctl      *tangelo.Controller
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "tangelo-wrapper",
		Short: "Manage tangelo web server instances",
		Long: `tangelo-wrapper tracks the tangelo servers running on this machine,
whether daemonized by the tangelo tool or running in the foreground, and
starts, stops and restarts them from their config files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("settings", "", "settings file (default is "+settings.Dir()+"/settings.yaml)")
	flags.String("tool", "", "tangelo command to invoke")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json, logfmt")
	flags.Duration("command-timeout", 0, "bound on each tangelo invocation (0 = none)")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		newListCmd(a),
		newStartCmd(a),
		newStopCmd(a),
		newRestartCmd(a),
		newWatchConfigCmd(a),
		newVersionCmd(),
	)

	return root
}

// flagKeys maps persistent flags to settings keys
var flagKeys = map[string]string{
	"tool":            "tool",
	"log-level":       "log_level",
	"log-format":      "log_format",
	"command-timeout": "command_timeout",
	"metrics-file":    "metrics_file",
}

func (a *app) init(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("settings")
	if err := settings.Init(a.v, file); err != nil {
		return err
	}
	if err := bindChanged(a.v, cmd.Flags()); err != nil {
		return err
	}

	s, err := settings.Load(a.v)
	if err != nil {
		return err
	}
	a.settings = s

	a.logger, err = newLogger(s)
	if err != nil {
		return err
	}
	a.metrics = tangelo.NewPrometheusMetricsCollector("tangelo_wrapper")

	env := tangelo.NewEnv(
		tangelo.WithToolPath(s.Tool),
		tangelo.WithProgramName(s.ProgramName),
		tangelo.WithDefaultConfigPaths(s.DefaultConfigPaths...),
		tangelo.WithCommandTimeout(s.CommandTimeout),
		tangelo.WithStopGrace(s.StopGrace),
		tangelo.WithConcurrency(s.Concurrency),
		tangelo.WithForegroundOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()),
		tangelo.WithLogger(a.logger),
		tangelo.WithMetrics(a.metrics),
	)
	a.ctl = tangelo.NewController(env)
	a.logger.Debug("settings loaded", "file", a.v.ConfigFileUsed(), "tool", s.Tool)
	return nil
}

// bindChanged binds the flags set on the command line, so only those
// override the settings file and environment
func bindChanged(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func (a *app) close() error {
	if a.ctl != nil {
		_ = a.ctl.Close()
	}
	if a.settings == nil || a.settings.MetricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.settings.MetricsFile, a.metrics.Registry()); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func newLogger(s *settings.Settings) (*log.Logger, error) {
	level, err := log.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil {
		return nil, err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Prefix:          "tangelo-wrapper",
		ReportTimestamp: level == log.DebugLevel,
	})
	switch strings.ToLower(s.LogFormat) {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	}
	return logger, nil
}

// refresh reconciles before an operation so ids typed by the user resolve.
// Instances that failed to reconcile are reported but do not stop the
// command.
func (a *app) refresh(ctx context.Context) ([]tangelo.InstanceSnapshot, error) {
	res := a.ctl.Execute(ctx, tangelo.RefreshCommand{})
	var merr *tangelo.MultiError
	if errors.As(res.Err, &merr) {
		for _, err := range merr.Errors {
			a.logger.Warn("instance not reconciled", "kind", tangelo.ErrorKind(err), "err", err)
		}
		return res.Instances, nil
	}
	return res.Instances, res.Err
}
