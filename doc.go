// Package tangelo tracks and controls tangelo web server instances through
// the tangelo command-line tool.
//
// The Controller is the entry point. It owns a Registry that mirrors what
// is running, a Probe that asks the tool and the process table, and a
// ConfigStore that reads and writes config files:
//
//	env := tangelo.NewEnv(tangelo.WithLogger(logger))
//	ctl := tangelo.NewController(env)
//
//	// Discover running instances
//	instances, err := ctl.Refresh(ctx)
//
//	// Launch a config on a free port
//	inst, err := ctl.Start(ctx, "/home/me/site.conf", true)
//
//	// Switch it to foreground mode; the daemon is stopped first
//	cfg := inst.Config
//	cfg.Daemonize = false
//	inst, err = ctl.Restart(ctx, inst.ID, cfg)
//
// # Daemon and Foreign Instances
//
// An instance is either a daemon the tool supervises and reports through
// `tangelo status --pids`, or a foreign process: the tool running in the
// foreground, found in the process table. Daemons are addressed by the id
// the tool assigns; foreign instances by their OS pid. Moving an instance
// between the two always passes through NotRunning.
//
// # Reconciliation
//
// Registry.Reconcile compares the tracked instances with a fresh Snapshot.
// New ids are added with their config loaded, vanished ids are removed,
// and the rest are refreshed. An instance with an open view (see
// Registry.OpenView) is kept after its process exits until the view is
// released. Every lifecycle operation ends with a reconcile, so callers
// always see observed state rather than the expected outcome.
//
// # Presentation
//
// User interfaces can drive the Controller with typed commands through
// Controller.Execute and render the returned InstanceSnapshots. The
// cmd/tangelo-wrapper program is such a front end.
package tangelo
