package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/axondata/go-tangelo"
)

// attach keeps the command running while a foreground instance it spawned
// is alive. The server's pipes end with this process, so leaving early
// would kill it. An interrupt stops the instance; the instance exiting on
// its own ends the wait with its exit status.
func attach(ctx context.Context, a *app, inst *tangelo.InstanceSnapshot) error {
	if inst == nil || inst.Mode != tangelo.ModeRunningForeign {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("running in the foreground; interrupt to stop", "id", inst.ID, "config", inst.ConfigPath)
	err := a.ctl.Wait(ctx, inst.ID)
	if ctx.Err() == nil {
		if err != nil {
			a.logger.Error("foreground instance exited", "id", inst.ID, "err", err)
		}
		return err
	}

	a.logger.Info("stopping foreground instance", "id", inst.ID)
	res := a.ctl.Execute(context.WithoutCancel(ctx), tangelo.StopCommand{ID: inst.ID})
	return res.Err
}
